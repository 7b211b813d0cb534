package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// FailoverConfig configures a FailoverStore.
type FailoverConfig struct {
	// MaxFailures is the number of consecutive primary failures that open
	// the breaker.
	MaxFailures uint32

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	Logger *zap.Logger

	// OnStateChange is called with the new breaker state.
	OnStateChange func(state gobreaker.State)
}

// FailoverStore serves from a primary store and falls back to a secondary
// one while the primary is failing. Counters are not copied between them,
// so a failover starts fresh windows on the secondary.
type FailoverStore struct {
	primary  Store
	fallback Store
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewFailoverStore wraps primary with a circuit breaker over fallback.
func NewFailoverStore(primary, fallback Store, cfg FailoverConfig) *FailoverStore {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	s := &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit store breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(to)
			}
		},
	})

	return s
}

// Take implements Store.
func (s *FailoverStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.primary.Take(ctx, key, limit, window, now)
	})
	if err == nil {
		return res.(Window), nil
	}

	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("primary rate limit store failed, using fallback", zap.Error(err))
	}
	return s.fallback.Take(ctx, key, limit, window, now)
}

// Delete implements Store.
func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	return errors.Join(s.primary.Delete(ctx, key), s.fallback.Delete(ctx, key))
}

// Ping reports the primary's health.
func (s *FailoverStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

// State returns the breaker state.
func (s *FailoverStore) State() gobreaker.State {
	return s.cb.State()
}

// Close implements Store.
func (s *FailoverStore) Close() error {
	return errors.Join(s.primary.Close(), s.fallback.Close())
}
