package celebration

import (
	"sync"
	"time"

	"journeykit/core"
)

type sessionKey struct {
	user    core.UserID
	session core.SessionID
}

type entry struct {
	queue    *Queue
	lastUsed time.Time
}

// Registry owns one Queue per (user, session). Queues are created on first
// use and dropped on logout or after sitting idle.
type Registry struct {
	mu      sync.Mutex
	entries map[sessionKey]*entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{entries: map[sessionKey]*entry{}, now: time.Now}
}

// Queue returns the session's queue, creating it if needed.
func (r *Registry) Queue(user core.UserID, session core.SessionID) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{user, session}
	e, ok := r.entries[k]
	if !ok {
		e = &entry{queue: NewQueue()}
		r.entries[k] = e
	}
	e.lastUsed = r.now()
	return e.queue
}

// Peek returns the session's queue without creating one.
func (r *Registry) Peek(user core.UserID, session core.SessionID) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionKey{user, session}]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.queue, true
}

// Drop discards the session's queue and reports whether it existed.
func (r *Registry) Drop(user core.UserID, session core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{user, session}
	if _, ok := r.entries[k]; !ok {
		return false
	}
	delete(r.entries, k)
	return true
}

// Sweep drops queues unused for longer than maxIdle and returns how many it
// removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	n := 0
	for k, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, k)
			n++
		}
	}
	return n
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
