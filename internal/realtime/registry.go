package realtime

import (
	"sort"
	"sync"
	"time"
)

// ConnectionRecord describes one live session.
type ConnectionRecord struct {
	SocketID    string    `json:"socketId"`
	UserID      string    `json:"userId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// registry is the connection table. Insert and remove are atomic with
// respect to each other, and add reports the size including the new entry
// so the caller can apply the ceiling without a second lookup.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(s *session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	return len(r.sessions)
}

func (r *registry) remove(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return len(r.sessions), ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *registry) list() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registry) records() []ConnectionRecord {
	sessions := r.list()
	out := make([]ConnectionRecord, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.record())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
