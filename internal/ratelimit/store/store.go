// Package store provides the counter tables behind the fixed-window
// rate limiter. Every implementation applies one hit atomically per key.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("rate limit store is closed")

// Window is the state of one key's window after a hit.
type Window struct {
	// Count is the number of admitted hits in the current window.
	Count int

	// ResetAt is when the current window ends.
	ResetAt time.Time

	// Allowed reports whether the hit was admitted.
	Allowed bool
}

// Store holds fixed-window counters.
type Store interface {
	// Take applies one hit for key at now. If the key is absent or its
	// window has ended, the window restarts with a count of one. Otherwise
	// the count grows while it is below limit and the hit is refused once
	// it reaches limit.
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)

	// Delete forgets key.
	Delete(ctx context.Context, key string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
