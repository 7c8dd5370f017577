package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	catalogRequestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_rate_limit_remaining",
		Help: "Requests remaining in the current catalog rate limit window",
	})

	catalogRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_waits_total",
		Help: "Total number of requests that waited for the rate limit window to reset",
	})

	catalogRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low remaining budget",
	})
)

const (
	// DefaultThrottleDelay is the pause applied in the warning band.
	DefaultThrottleDelay = 250 * time.Millisecond

	// DefaultMaxWait caps a single wait for the window reset.
	DefaultMaxWait = 60 * time.Second

	// DefaultStaleAfter is the age after which a recorded state is ignored.
	DefaultStaleAfter = 5 * time.Minute
)

// Tracker monitors the catalog request budget and gates requests. With a nil
// Redis client the state lives in process memory only.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
	maxWait  time.Duration
	stale    time.Duration

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: DefaultThrottleDelay,
		maxWait:  DefaultMaxWait,
		stale:    DefaultStaleAfter,
	}
}

// SetStaleAfter sets the age after which a recorded state no longer gates
// requests. Zero never ignores a state.
func (t *Tracker) SetStaleAfter(d time.Duration) {
	t.stale = d
}

// SetDelays overrides the throttle pause and the maximum reset wait.
func (t *Tracker) SetDelays(throttle, maxWait time.Duration) {
	t.throttle = throttle
	t.maxWait = maxWait
}

// GetState returns the current rate limit state.
// Returns a default healthy state if nothing has been observed yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return DefaultState(), nil
		}
		s := *t.local
		return &s, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return DefaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	var lastUpdate time.Time
	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as an
// HTTP date. Returns 0 when absent or unparsable.
func ParseRetryAfter(headers http.Header) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// UpdateFromResponse records the budget reported by a catalog response.
// Responses without rate limit headers leave the state untouched, except a
// 429, which empties the budget until Retry-After has elapsed.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	now := time.Now()

	if status == http.StatusTooManyRequests {
		wait := ParseRetryAfter(headers)
		if wait == 0 {
			wait = time.Second
		}
		return t.store(ctx, &RateLimitState{
			Remaining:  0,
			ResetAt:    now.Add(wait),
			LastUpdate: now,
		})
	}

	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil
	}
	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}
	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	return t.store(ctx, &RateLimitState{
		Remaining:  remain,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: now,
	})
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	state.UpdateHealth()

	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
	} else {
		lastUpdateJSON, err := json.Marshal(state.LastUpdate)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}

		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
		pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	catalogRequestsRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsWait():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Catalog rate limit exhausted - requests will wait for reset")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Catalog rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("Catalog rate limit state updated")
	}
	return nil
}

// Acquire blocks until a request may be sent. It waits for the window reset
// when the budget is exhausted and pauses briefly in the warning band.
// Returns the context error if ctx ends while waiting.
func (t *Tracker) Acquire(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}
	if t.stale > 0 && state.IsStale(t.stale) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Msg("Rate limit state is stale - treating budget as healthy")
		return nil
	}

	var wait time.Duration
	switch {
	case state.NeedsWait():
		wait = state.TimeUntilReset()
		if t.maxWait > 0 && wait > t.maxWait {
			wait = t.maxWait
		}
		catalogRateLimitWaitsTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Catalog rate limit exhausted - waiting for reset")
	case state.NeedsThrottling():
		wait = t.throttle
		catalogRateLimitThrottlesTotal.Inc()
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Catalog rate limit low - throttling request")
	default:
		return nil
	}

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
