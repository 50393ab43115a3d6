package celebration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journeykit/core"
)

func ev(id string, priority int) core.CelebrationEvent {
	return core.CelebrationEvent{ID: id, Type: core.CelebrationBadge, Priority: priority}
}

func ids(evs []core.CelebrationEvent) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.ID
	}
	return out
}

func TestAddMultiplePromotesHighest(t *testing.T) {
	q := NewQueue()
	q.AddMultiple([]core.CelebrationEvent{ev("common", 20), ev("legendary", 100), ev("rare", 60)})

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, 100, cur.Priority)
	assert.Equal(t, []string{"rare", "common"}, ids(q.Pending()))
}

func TestLaterLegendaryDoesNotPreempt(t *testing.T) {
	q := NewQueue()
	q.Add(ev("first", 20))
	q.Add(ev("common", 20))
	q.Add(ev("uncommon", 40))
	q.Add(ev("legendary", 100))

	cur, _ := q.Current()
	assert.Equal(t, "first", cur.ID)
	assert.Equal(t, []string{"legendary", "uncommon", "common"}, ids(q.Pending()))

	_, ok := q.Dismiss()
	require.True(t, ok)
	cur, _ = q.Current()
	assert.Equal(t, "legendary", cur.ID)
}

func TestEqualPrioritiesKeepArrivalOrder(t *testing.T) {
	q := NewQueue()
	q.AddMultiple([]core.CelebrationEvent{ev("a", 60), ev("b", 60)})
	q.AddMultiple([]core.CelebrationEvent{ev("c", 60), ev("d", 80)})

	var shown []string
	for q.Len() > 0 {
		d, _ := q.Dismiss()
		shown = append(shown, d.ID)
	}
	assert.Equal(t, []string{"a", "d", "b", "c"}, shown)
}

func TestDismissEmptyIsNoop(t *testing.T) {
	q := NewQueue()
	_, ok := q.Dismiss()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestDismissCallbackFollowUpOutranksPending(t *testing.T) {
	q := NewQueue()
	first := ev("first", 20)
	first.OnDismiss = func() { q.Add(ev("follow-up", 90)) }
	q.Add(first)
	q.Add(ev("second", 40))

	d, ok := q.Dismiss()
	require.True(t, ok)
	assert.Equal(t, "first", d.ID)

	// the follow-up queued by the callback outranks second
	cur, _ := q.Current()
	assert.Equal(t, "follow-up", cur.ID)
	assert.Equal(t, []string{"second"}, ids(q.Pending()))
}

func TestDismissCallbackReentrantDismissIsNoop(t *testing.T) {
	q := NewQueue()
	first := ev("first", 20)
	var inner bool
	first.OnDismiss = func() { _, inner = q.Dismiss() }
	q.Add(first)
	q.Add(ev("second", 40))

	_, ok := q.Dismiss()
	require.True(t, ok)
	assert.False(t, inner)
	cur, _ := q.Current()
	assert.Equal(t, "second", cur.ID)
}

func TestAddSkipsKnownIDs(t *testing.T) {
	q := NewQueue()
	assert.True(t, q.Add(ev("milestone:7", 90)))
	assert.False(t, q.Add(ev("milestone:7", 90)))

	got := q.AddMultiple([]core.CelebrationEvent{ev("milestone:7", 90), ev("badge", 40), ev("badge", 40)})
	assert.Equal(t, []string{"badge"}, ids(got))
	assert.Equal(t, 2, q.Len())

	// a dismissed id stays known
	d, _ := q.Dismiss()
	assert.Equal(t, "milestone:7", d.ID)
	assert.Nil(t, q.AddMultiple([]core.CelebrationEvent{ev("milestone:7", 90)}))
	assert.Equal(t, 1, q.Len())

	// events without an id are never deduplicated
	assert.True(t, q.Add(ev("", 20)))
	assert.True(t, q.Add(ev("", 20)))
	assert.Equal(t, 3, q.Len())
}

func TestClearSkipsCallbacks(t *testing.T) {
	q := NewQueue()
	called := false
	e := ev("x", 20)
	e.OnDismiss = func() { called = true }
	q.AddMultiple([]core.CelebrationEvent{e, ev("y", 40)})
	q.Clear()

	assert.False(t, called)
	_, ok := q.Current()
	assert.False(t, ok)
	assert.Empty(t, q.Pending())
}

func TestQueueConcurrentUse(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Add(ev(fmt.Sprintf("%d-%d", i, j), j%5*20))
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1000, q.Len())

	dismissed := 0
	for {
		if _, ok := q.Dismiss(); !ok {
			break
		}
		dismissed++
	}
	assert.Equal(t, 1000, dismissed)
}

func TestRegistryIsolatesSessions(t *testing.T) {
	r := NewRegistry()
	r.Queue("alice", "s1").Add(ev("a", 20))
	r.Queue("bob", "s1").Add(ev("b", 20))

	cur, _ := r.Queue("alice", "s1").Current()
	assert.Equal(t, "a", cur.ID)
	assert.Equal(t, 2, r.Len())

	_, ok := r.Peek("alice", "s2")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Drop("alice", "s1"))
	assert.False(t, r.Drop("alice", "s1"))
	assert.Zero(t, r.Queue("alice", "s1").Len())
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Queue("old", "s")
	now = now.Add(time.Hour)
	r.Queue("fresh", "s")

	assert.Equal(t, 1, r.Sweep(30*time.Minute))
	_, ok := r.Peek("old", "s")
	assert.False(t, ok)
	_, ok = r.Peek("fresh", "s")
	assert.True(t, ok)
}
