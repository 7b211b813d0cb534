// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy defaults.
const (
	DefaultAttempts       = 4
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitterFactor   = 0.25
)

// Policy bounds a retried operation. Zero attempts and durations take the
// defaults; JitterFactor is clamped to [0, 1].
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.JitterFactor > 1 {
		p.JitterFactor = 1
	}
	return p
}

// Option configures a single Do call.
type Option func(*options)

type options struct {
	retryIf func(error) bool
	onRetry func(attempt int, err error, wait time.Duration)
}

// WithRetryIf limits retries to errors for which fn reports true.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// policy's attempts are spent, or ctx is done. It returns the last error
// from fn, or ctx's error if the context ended first.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error, opts ...Option) error {
	policy = policy.normalized()
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if o.retryIf != nil && !o.retryIf(err) {
			return err
		}
		if attempt == policy.Attempts-1 {
			break
		}

		wait := Backoff(attempt, policy.InitialBackoff, policy.MaxBackoff, policy.JitterFactor)
		if o.onRetry != nil {
			o.onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns the wait after the given zero-based attempt: initial
// doubled per attempt plus up to jitter of itself, capped at max.
func Backoff(attempt int, initial, max time.Duration, jitter float64) time.Duration {
	d := float64(initial) * math.Pow(2, float64(attempt))
	//nolint:gosec // jitter is not security-sensitive
	d += d * jitter * rand.Float64()
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}
