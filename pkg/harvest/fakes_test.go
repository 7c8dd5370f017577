package harvest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Sternrassler/catalog-harvester/pkg/catalog"
)

var errUpstream = errors.New("upstream 503")

// fakeCatalog serves discover pages of movie ids. Revenue of a movie is
// revenue[id], or id*1000 when unset.
type fakeCatalog struct {
	mu           sync.Mutex
	totalResults int
	pages        map[int][]int64
	revenue      map[int64]int64
	failDiscover map[int]int
	enumErr      error
	downYear     int
	panicOnID    int64
	calls        map[int]int
}

func newFakeCatalog(pages map[int][]int64) *fakeCatalog {
	return &fakeCatalog{
		pages:        pages,
		revenue:      make(map[int64]int64),
		failDiscover: make(map[int]int),
		calls:        make(map[int]int),
	}
}

// idRange returns ids lo..hi inclusive.
func idRange(lo, hi int64) []int64 {
	out := make([]int64, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		out = append(out, id)
	}
	return out
}

func (f *fakeCatalog) Discover(ctx context.Context, q catalog.DiscoverQuery) (*catalog.DiscoverPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[q.Page]++
	if f.downYear != 0 && q.Year == f.downYear {
		return nil, errUpstream
	}
	if q.Page == 1 && f.enumErr != nil {
		return nil, f.enumErr
	}
	if f.failDiscover[q.Page] > 0 {
		f.failDiscover[q.Page]--
		return nil, errUpstream
	}

	ids := f.pages[q.Page]
	results := make([]catalog.MovieSummary, 0, len(ids))
	for _, id := range ids {
		results = append(results, catalog.MovieSummary{ID: id, Title: fmt.Sprintf("Movie %d", id)})
	}
	return &catalog.DiscoverPage{
		Page:         q.Page,
		TotalPages:   len(f.pages),
		TotalResults: f.totalResults,
		Results:      results,
	}, nil
}

func (f *fakeCatalog) MovieDetails(ctx context.Context, id int64) (*catalog.MovieDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.panicOnID != 0 && id == f.panicOnID {
		panic("decoder exploded")
	}
	rev, ok := f.revenue[id]
	if !ok {
		rev = id * 1000
	}
	return &catalog.MovieDetails{
		ID:      id,
		Title:   fmt.Sprintf("Movie %d", id),
		Revenue: rev,
	}, nil
}

func (f *fakeCatalog) MovieCredits(ctx context.Context, id int64) (*catalog.Credits, error) {
	return &catalog.Credits{
		ID:   id,
		Cast: []catalog.CastMember{{ID: id + 100000, Name: "Lead", Order: 0}},
		Crew: []catalog.CrewMember{{ID: id + 200000, Name: "Boss", Job: "Director"}},
	}, nil
}

func (f *fakeCatalog) discoverCalls(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

// memSink keeps artifacts in memory and can inject write failures.
type memSink struct {
	mu           sync.Mutex
	pages        map[Partition]map[int]Artifact
	merged       map[Partition]Merged
	failWrites   map[int]int
	failMerged   error
	mergedWrites int
}

func newMemSink() *memSink {
	return &memSink{
		pages:      make(map[Partition]map[int]Artifact),
		merged:     make(map[Partition]Merged),
		failWrites: make(map[int]int),
	}
}

func (s *memSink) WritePage(ctx context.Context, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites[a.Unit.Page] > 0 {
		s.failWrites[a.Unit.Page]--
		return errors.New("disk full")
	}
	if s.pages[a.Unit.Partition] == nil {
		s.pages[a.Unit.Partition] = make(map[int]Artifact)
	}
	s.pages[a.Unit.Partition][a.Unit.Page] = a
	return nil
}

func (s *memSink) ReadPages(ctx context.Context, p Partition, pages []int) ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.pages[p]
	if pages == nil {
		for page := range stored {
			pages = append(pages, page)
		}
		slices.Sort(pages)
	}

	out := make([]Artifact, 0, len(pages))
	for _, page := range pages {
		a, ok := stored[page]
		if !ok {
			return nil, fmt.Errorf("page %d of %s not stored", page, p)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memSink) WriteMerged(ctx context.Context, m Merged) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failMerged != nil {
		return s.failMerged
	}
	s.merged[m.Partition] = m
	s.mergedWrites++
	return nil
}

func (s *memSink) mergedFor(p Partition) (Merged, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merged[p]
	return m, ok
}

func (s *memSink) storedPages(p Partition) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages[p])
}

// recordingPublisher remembers what it was handed.
type recordingPublisher struct {
	mu   sync.Mutex
	name string
	err  error
	got  []Merged
}

func (r *recordingPublisher) Name() string { return r.name }

func (r *recordingPublisher) Publish(ctx context.Context, m Merged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
	return r.err
}

// funcFetcher adapts a function to UnitFetcher.
type funcFetcher func(ctx context.Context, u FetchUnit) Outcome

func (f funcFetcher) Fetch(ctx context.Context, u FetchUnit) Outcome { return f(ctx, u) }

func okArtifact(u FetchUnit, ids ...int64) Outcome {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, Record{ID: id, Financial: Financial{Revenue: id}})
	}
	return Outcome{Unit: u, Artifact: &Artifact{Unit: u, Records: records}}
}
