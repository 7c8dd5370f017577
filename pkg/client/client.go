// Package client provides the catalog HTTP transport with rate limiting,
// response caching, retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-harvester/pkg/cache"
	"github.com/Sternrassler/catalog-harvester/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for catalog client operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog requests by endpoint group and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint group",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// Client is the catalog HTTP client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retryPolicy policyFunc
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.themoviedb.org/3
	BaseURL string

	// APIKey is sent as the api_key query parameter.
	APIKey string

	// BearerToken is sent as an Authorization header. Either APIKey or
	// BearerToken is required.
	BearerToken string

	// UserAgent header
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Redis enables the response cache and shares rate limit state.
	// Optional.
	Redis *redis.Client

	// CachePrefixes lists the path prefixes whose GET responses may be cached.
	CachePrefixes []string

	// Retry overrides the per-class retry policies when set.
	Retry *RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		UserAgent:     "catalog-harvester/0.1.0",
		Timeout:       30 * time.Second,
		CachePrefixes: []string{"/movie/"},
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.APIKey == "" && cfg.BearerToken == "" {
		return nil, fmt.Errorf("api key or bearer token is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "catalog-client").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager, err = cache.NewManager(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("create cache manager: %w", err)
		}
	}

	policy := policyFunc(RetryConfigForErrorClass)
	if cfg.Retry != nil {
		policy = fixedPolicy(*cfg.Retry)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     base,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		cache:       cacheManager,
		retryPolicy: policy,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, caching, and retries.
// Retriable failures (5xx, 429, network) are retried and surface as an error
// once exhausted. Client errors (4xx) are returned as a response for the
// caller to inspect.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointGroup(req.URL.Path)

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Credentials and headers
	if c.config.APIKey != "" {
		q := req.URL.Query()
		if q.Get("api_key") == "" {
			q.Set("api_key", c.config.APIKey)
			req.URL.RawQuery = q.Encode()
		}
	}
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 2: Check Cache
	cacheable := c.isCacheable(req)
	cacheKey := cache.CacheKey{
		Endpoint:    c.relativePath(req.URL.Path),
		QueryParams: req.URL.Query(),
	}
	if cacheable {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("key", cacheKey.String()).Msg("Cache hit")
			catalogRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return cache.EntryToResponse(entry, req), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	// Step 3: Rate Limit
	if err := c.rateLimiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	// Step 4: Execute with retry
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retryPolicy, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &CatalogError{ErrorClass: ErrorClassNetwork, Message: "transport failure", Err: reqErr}
		}

		if err := c.rateLimiter.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		catalogRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode < 400 {
			return nil
		}

		errClass := classifyStatus(resp.StatusCode)
		catalogErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Catalog request error")

		if !shouldRetry(errClass) {
			return nil
		}

		ce := &CatalogError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
			RetryAfter: ratelimit.ParseRetryAfter(resp.Header),
		}
		drainAndClose(resp.Body)
		resp = nil
		return ce
	}, ClassOf)

	if retryErr != nil {
		if resp != nil {
			drainAndClose(resp.Body)
		}
		return nil, retryErr
	}

	// Step 5: Update Cache on success
	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("key", cacheKey.String()).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// GetJSON fetches endpoint (relative to the base URL) and decodes the JSON
// body into out. Non-2xx responses become a *CatalogError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CatalogError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

func (c *Client) isCacheable(req *http.Request) bool {
	if c.cache == nil || req.Method != http.MethodGet {
		return false
	}
	path := c.relativePath(req.URL.Path)
	for _, prefix := range c.config.CachePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// relativePath strips the base URL path, so /3/movie/1 becomes /movie/1.
func (c *Client) relativePath(p string) string {
	rel := strings.TrimPrefix(p, c.baseURL.Path)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}

// endpointGroup collapses numeric path segments to keep metric labels bounded.
func endpointGroup(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil && part != "" {
			if i == 1 {
				// leading API version segment such as /3
				continue
			}
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
