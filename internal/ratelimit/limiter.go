// Package ratelimit provides fixed-window rate limiting keyed by client
// identity. Counter state lives in a store.Store owned by the caller, so
// several limiters can share one Redis deployment or each keep their own
// in-memory table.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow records one request for key and reports whether it may proceed.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset forgets the state for key.
	Reset(ctx context.Context, key string) error
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time

	// ResetAfter is the duration until the window ends.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (r *Result) RetryAfterSeconds() int {
	return ceilSeconds(r.RetryAfter)
}

// ResetAfterSeconds returns ResetAfter rounded up to whole seconds.
func (r *Result) ResetAfterSeconds() int {
	return ceilSeconds(r.ResetAfter)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(_ context.Context, _ string) error {
	return nil
}
