package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit/store"
)

// FixedWindowLimiter admits up to limit requests per key within a window
// that starts at the key's first request. Requests on either side of a
// window boundary are counted separately, so up to twice the limit can
// pass within one window length.
type FixedWindowLimiter struct {
	name    string
	store   store.Store
	limit   int
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a FixedWindowLimiter.
type Option func(*FixedWindowLimiter)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

// WithLogger sets the logger for the limiter.
func WithLogger(logger *zap.Logger) Option {
	return func(l *FixedWindowLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics for the limiter.
func WithMetrics(metrics *Metrics) Option {
	return func(l *FixedWindowLimiter) {
		l.metrics = metrics
	}
}

// ErrInvalidLimit is returned for a non-positive limit or window.
var ErrInvalidLimit = errors.New("rate limit and window must be positive")

// NewFixedWindowLimiter creates a limiter named name over s.
func NewFixedWindowLimiter(name string, s store.Store, limit int, window time.Duration, opts ...Option) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	if s == nil {
		s = store.NewMemoryStore()
	}

	l := &FixedWindowLimiter{
		name:   name,
		store:  s,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Name returns the limiter name used in logs and metrics.
func (l *FixedWindowLimiter) Name() string {
	return l.name
}

// Limit returns the per-window request limit.
func (l *FixedWindowLimiter) Limit() int {
	return l.limit
}

// Window returns the window length.
func (l *FixedWindowLimiter) Window() time.Duration {
	return l.window
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := l.now()

	w, err := l.store.Take(ctx, l.storeKey(key), l.limit, l.window, now)
	if err != nil {
		l.metrics.recordStoreError(l.name)
		return nil, err
	}

	remaining := l.limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	resetAfter := w.ResetAt.Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	result := &Result{
		Allowed:    w.Allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAt:    w.ResetAt,
		ResetAfter: resetAfter,
	}
	if !w.Allowed {
		result.RetryAfter = resetAfter
		l.logger.Debug("rate limit exceeded",
			zap.String("limiter", l.name),
			zap.String("key", key),
			zap.Int("limit", l.limit),
			zap.Duration("retry_after", resetAfter),
		)
	}

	l.metrics.recordDecision(l.name, w.Allowed)
	return result, nil
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.storeKey(key))
}

// storeKey scopes key to this limiter so limiters can share a store.
func (l *FixedWindowLimiter) storeKey(key string) string {
	return l.name + ":" + key
}
