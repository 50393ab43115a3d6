// Package celebration holds the per-session queues that surface unlocks to
// a user one at a time.
package celebration

import (
	"sort"
	"sync"

	"journeykit/core"
)

// Queue is a priority-ordered celebration queue for one user session. The
// highest-priority event is promoted to current whenever nothing is shown;
// equal priorities keep arrival order. An event id is shown at most once
// per queue. All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	current *core.CelebrationEvent
	pending []core.CelebrationEvent
	// ids of current, pending and dismissed events
	known map[string]struct{}
	// set while a dismiss callback runs; holds promotion back
	dismissing bool
}

func NewQueue() *Queue { return &Queue{known: map[string]struct{}{}} }

// Add enqueues ev and promotes it if the queue shows nothing. It reports
// false when the id was already queued or shown.
func (q *Queue) Add(ev core.CelebrationEvent) bool {
	return len(q.AddMultiple([]core.CelebrationEvent{ev})) == 1
}

// AddMultiple merges evs into pending, re-sorts once and promotes once.
// Events whose id is already known are skipped; the accepted ones are
// returned in input order.
func (q *Queue) AddMultiple(evs []core.CelebrationEvent) []core.CelebrationEvent {
	if len(evs) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.known == nil {
		q.known = map[string]struct{}{}
	}
	accepted := make([]core.CelebrationEvent, 0, len(evs))
	for _, ev := range evs {
		if ev.ID != "" {
			if _, dup := q.known[ev.ID]; dup {
				continue
			}
			q.known[ev.ID] = struct{}{}
		}
		accepted = append(accepted, ev)
	}
	if len(accepted) == 0 {
		return nil
	}
	q.pending = append(q.pending, accepted...)
	sort.SliceStable(q.pending, func(i, j int) bool { return q.pending[i].Priority > q.pending[j].Priority })
	if q.current == nil && !q.dismissing {
		q.promote()
	}
	return accepted
}

// Dismiss retires the current event, runs its callback and then promotes
// the highest-priority pending event, including any the callback queued.
// The callback runs with the queue unlocked. Dismissing an empty queue
// does nothing.
func (q *Queue) Dismiss() (core.CelebrationEvent, bool) {
	q.mu.Lock()
	if q.current == nil || q.dismissing {
		q.mu.Unlock()
		return core.CelebrationEvent{}, false
	}
	done := *q.current
	q.current = nil
	q.dismissing = true
	q.mu.Unlock()

	if done.OnDismiss != nil {
		defer q.finishDismiss()
		done.OnDismiss()
	} else {
		q.finishDismiss()
	}
	return done, true
}

func (q *Queue) finishDismiss() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dismissing = false
	if q.current == nil {
		q.promote()
	}
}

// Clear drops every event without running callbacks.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
	q.pending = nil
}

// Current returns the event being shown.
func (q *Queue) Current() (core.CelebrationEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return core.CelebrationEvent{}, false
	}
	return *q.current, true
}

// Pending returns the waiting events in the order they will be shown.
func (q *Queue) Pending() []core.CelebrationEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.CelebrationEvent(nil), q.pending...)
}

// Snapshot returns current and pending under one lock.
func (q *Queue) Snapshot() (*core.CelebrationEvent, []core.CelebrationEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var cur *core.CelebrationEvent
	if q.current != nil {
		cp := *q.current
		cur = &cp
	}
	return cur, append([]core.CelebrationEvent(nil), q.pending...)
}

// Len counts current and pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.current != nil {
		n++
	}
	return n
}

// promote moves the head of pending to current. Callers hold mu.
func (q *Queue) promote() {
	if len(q.pending) == 0 {
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &next
}
