// Package testutil provides a mock movie catalog server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIVersionPath is the path prefix the mock serves under, like the real API.
const APIVersionPath = "/3"

// MockMovie is a movie served by MockCatalog.
type MockMovie struct {
	ID        int64
	Title     string
	Overview  string
	Budget    int64
	Revenue   int64
	Directors []string
	Cast      []string
}

type partitionKey struct {
	region string
	year   int
}

type failure struct {
	status    int
	remaining int
}

// MockCatalog is a configurable mock of the discover, details and credits
// endpoints.
type MockCatalog struct {
	server *httptest.Server

	mu         sync.Mutex
	partitions map[partitionKey]map[int][]MockMovie
	movies     map[int64]MockMovie
	failures   map[string]*failure
	requests   map[string]int
	total      int
	remaining  int
	delay      time.Duration
}

// NewMockCatalog starts a mock catalog server.
func NewMockCatalog() *MockCatalog {
	m := &MockCatalog{
		partitions: make(map[partitionKey]map[int][]MockMovie),
		movies:     make(map[int64]MockMovie),
		failures:   make(map[string]*failure),
		requests:   make(map[string]int),
		remaining:  40,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the server root.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// BaseURL returns the API root to configure clients with.
func (m *MockCatalog) BaseURL() string {
	return m.server.URL + APIVersionPath
}

// Close shuts down the server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetPages configures the discover pages of a region and year. Movies are
// also registered for detail and credit lookups.
func (m *MockCatalog) SetPages(region string, year int, pages map[int][]MockMovie) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.partitions[partitionKey{region, year}] = pages
	for _, movies := range pages {
		for _, mv := range movies {
			m.movies[mv.ID] = mv
		}
	}
}

// FailDiscover makes the next n discover requests for a page answer with
// status.
func (m *MockCatalog) FailDiscover(region string, year, page, n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[discoverKey(region, year, page)] = &failure{status: status, remaining: n}
}

// FailMovie makes the next n detail requests for a movie answer with status.
func (m *MockCatalog) FailMovie(id int64, n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[movieKey(id)] = &failure{status: status, remaining: n}
}

// SetDelay delays every response.
func (m *MockCatalog) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetRateLimitRemaining sets the X-RateLimit-Remaining value served on
// discover responses.
func (m *MockCatalog) SetRateLimitRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

// RequestCount returns the number of requests served.
func (m *MockCatalog) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// DiscoverCount returns how often a discover page was requested.
func (m *MockCatalog) DiscoverCount(region string, year, page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[discoverKey(region, year, page)]
}

// MovieCount returns how often the details of a movie were requested.
func (m *MockCatalog) MovieCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[movieKey(id)]
}

func discoverKey(region string, year, page int) string {
	return fmt.Sprintf("discover:%s:%d:%d", region, year, page)
}

func movieKey(id int64) string {
	return fmt.Sprintf("movie:%d", id)
}

func (m *MockCatalog) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.total++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if r.URL.Query().Get("api_key") == "" && r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status_code": 7, "status_message": "Invalid API key"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, APIVersionPath)
	switch {
	case path == "/discover/movie":
		m.discover(w, r)
	case strings.HasPrefix(path, "/movie/"):
		m.movie(w, strings.TrimPrefix(path, "/movie/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"status_code": 34})
	}
}

func (m *MockCatalog) discover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	region := q.Get("region")
	year, _ := strconv.Atoi(q.Get("primary_release_year"))
	page, _ := strconv.Atoi(q.Get("page"))
	if page == 0 {
		page = 1
	}
	key := discoverKey(region, year, page)

	m.mu.Lock()
	m.requests[key]++
	if status, failed := m.consumeFailure(key); failed {
		m.mu.Unlock()
		writeJSON(w, status, map[string]any{"status_message": http.StatusText(status)})
		return
	}
	pages := m.partitions[partitionKey{region, year}]
	remaining := m.remaining
	m.mu.Unlock()

	total := 0
	count := 0
	for p, movies := range pages {
		total = max(total, p)
		count += len(movies)
	}

	results := make([]map[string]any, 0, len(pages[page]))
	for _, mv := range pages[page] {
		results = append(results, map[string]any{"id": mv.ID, "title": mv.Title})
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(10*time.Second).Unix(), 10))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":          page,
		"total_pages":   total,
		"total_results": count,
		"results":       results,
	})
}

func (m *MockCatalog) movie(w http.ResponseWriter, rest string) {
	idPart, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status_code": 34})
		return
	}

	m.mu.Lock()
	if sub == "" {
		m.requests[movieKey(id)]++
		if status, failed := m.consumeFailure(movieKey(id)); failed {
			m.mu.Unlock()
			writeJSON(w, status, map[string]any{"status_message": http.StatusText(status)})
			return
		}
	}
	mv, ok := m.movies[id]
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status_code": 34})
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                   mv.ID,
			"title":                mv.Title,
			"original_title":       mv.Title,
			"original_language":    "en",
			"overview":             mv.Overview,
			"release_date":         "",
			"runtime":              100,
			"budget":               mv.Budget,
			"revenue":              mv.Revenue,
			"genres":               []map[string]any{{"id": 18, "name": "Drama"}},
			"production_companies": []map[string]any{{"id": 1, "name": "Mock Pictures", "origin_country": ""}},
			"production_countries": []map[string]any{{"iso_3166_1": "US", "name": "United States of America"}},
		})
	case "credits":
		cast := make([]map[string]any, 0, len(mv.Cast))
		for i, name := range mv.Cast {
			cast = append(cast, map[string]any{"id": mv.ID*100 + int64(i), "name": name, "order": i})
		}
		crew := make([]map[string]any, 0, len(mv.Directors)+1)
		for i, name := range mv.Directors {
			crew = append(crew, map[string]any{"id": mv.ID*1000 + int64(i), "name": name, "job": "Director", "department": "Directing"})
		}
		crew = append(crew, map[string]any{"id": mv.ID * 10000, "name": "Mock Editor", "job": "Editor", "department": "Editing"})
		writeJSON(w, http.StatusOK, map[string]any{"id": mv.ID, "cast": cast, "crew": crew})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"status_code": 34})
	}
}

// consumeFailure must be called with m.mu held.
func (m *MockCatalog) consumeFailure(key string) (int, bool) {
	f, ok := m.failures[key]
	if !ok || f.remaining <= 0 {
		return 0, false
	}
	f.remaining--
	return f.status, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// MoviesRange builds movies with ids lo..hi. Revenue equals id*1000.
func MoviesRange(lo, hi int64) []MockMovie {
	out := make([]MockMovie, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		out = append(out, MockMovie{
			ID:        id,
			Title:     fmt.Sprintf("Movie %d", id),
			Overview:  "Line one\nline two",
			Revenue:   id * 1000,
			Directors: []string{fmt.Sprintf("Director %d", id)},
			Cast:      []string{"Lead", "Support"},
		})
	}
	return out
}
