package store

import (
	"context"
	"sync"
	"time"
)

// entry is one key's window. A swept entry is marked dead so a Take that
// loaded it before the sweep retries against a fresh entry.
type entry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	dead    bool
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	data          sync.Map
	now           func() time.Time
	sweepInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	closed        bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSweepInterval starts a background sweep removing keys whose window
// has ended. Without it entries live for the lifetime of the process.
func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sweepInterval = interval
	}
}

// withClock overrides the sweep clock in tests.
func withClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(s.sweepInterval)
	}
	return s
}

// Take implements Store.
func (s *MemoryStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Window{}, ErrStoreClosed
	}

	for {
		value, _ := s.data.LoadOrStore(key, &entry{})
		e := value.(*entry)

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}

		var w Window
		switch {
		case !now.Before(e.resetAt):
			e.count = 1
			e.resetAt = now.Add(window)
			w = Window{Count: e.count, ResetAt: e.resetAt, Allowed: true}
		case e.count < limit:
			e.count++
			w = Window{Count: e.count, ResetAt: e.resetAt, Allowed: true}
		default:
			w = Window{Count: e.count, ResetAt: e.resetAt, Allowed: false}
		}
		e.mu.Unlock()
		return w, nil
	}
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if value, ok := s.data.LoadAndDelete(key); ok {
		e := value.(*entry)
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	n := 0
	s.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes entries whose window has ended. Removing an ended window
// is indistinguishable from keeping it: the next hit restarts it anyway.
func (s *MemoryStore) sweep() {
	now := s.now()
	s.data.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		if !now.Before(e.resetAt) {
			e.dead = true
			s.data.CompareAndDelete(key, value)
		}
		e.mu.Unlock()
		return true
	})
}
