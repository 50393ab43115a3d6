// Package realtime fans domain events out to live listeners such as
// WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"journeykit/core"
)

// Filter narrows a subscription. Zero fields match everything.
type Filter struct {
	UserID    core.UserID
	SessionID core.SessionID
	Types     []core.EventType
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev core.Event) bool {
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch     chan core.Event
	filter Filter
}

// Hub broadcasts events to filtered subscribers. Slow subscribers lose
// events rather than blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe registers a listener for every event.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.SubscribeFilter(buffer, Filter{})
}

// SubscribeFilter registers a listener for events matching f.
func (h *Hub) SubscribeFilter(buffer int, f Filter) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, filter: f}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Broadcast delivers ev to every matching subscriber. It has the signature
// of an event bus handler so it can be passed to SubscribeAll directly.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
