// Package ratelimit tracks the catalog API request budget and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers, and
// Retry-After on 429 responses, so that workers slow down before the API
// starts rejecting them.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "catalog:rate_limit:remaining"
	RedisKeyResetTimestamp = "catalog:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "catalog:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical makes requests wait for the window reset
	// when fewer requests than this remain.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning throttles requests when fewer than this remain.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy marks the budget as healthy.
	RemainingThresholdHealthy = 20
)

// RateLimitState is the last observed request budget. It is shared across
// processes through Redis when Redis is configured.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, epoch seconds,
	// or now + Retry-After).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is the state assumed before any header was observed.
func DefaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  100,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowExpired reports whether the reset time has passed, after which the
// recorded budget no longer applies.
func (s *RateLimitState) WindowExpired() bool {
	return !time.Now().Before(s.ResetAt)
}

// NeedsWait returns true if requests must wait for the window reset.
func (s *RateLimitState) NeedsWait() bool {
	return !s.WindowExpired() && s.Remaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return !s.WindowExpired() && s.Remaining < RemainingThresholdWarning && !s.NeedsWait()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}
