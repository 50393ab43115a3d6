package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"journeykit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewPointsAdded("bob", "spring", core.ActivityDGA, 15, 15)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != "bob" || received.Type != core.EventPointsAdded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}
}

func TestHubFilter(t *testing.T) {
	h := NewHub()
	_, alice := h.SubscribeFilter(4, Filter{UserID: "alice", Types: []core.EventType{core.EventBadgeAwarded}})

	ctx := context.Background()
	h.Broadcast(ctx, core.NewPointsAdded("alice", "spring", core.ActivityDGA, 15, 15))
	h.Broadcast(ctx, core.NewBadgeAwarded("bob", "spring", core.Badge{Key: "first_light"}))
	h.Broadcast(ctx, core.NewBadgeAwarded("alice", "spring", core.Badge{Key: "bookends"}))

	if len(alice) != 1 {
		t.Fatalf("expected 1 event, got %d", len(alice))
	}
	if ev := <-alice; ev.Badge != "bookends" {
		t.Fatalf("unexpected badge: %s", ev.Badge)
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)
	ev := core.NewPointsAdded("bob", "spring", core.ActivityDGA, 15, 15)
	h.Broadcast(context.Background(), ev)
	h.Broadcast(context.Background(), ev)
	if len(ch) != 1 || h.Dropped() != 1 {
		t.Fatalf("expected one buffered and one dropped, got %d/%d", len(ch), h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewBadgeAwarded("alice", "spring", core.Badge{Key: "first_light", Rarity: core.RarityCommon})
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Badge != "first_light" || out.SessionID != "spring" {
		t.Fatalf("unexpected event: %+v", out)
	}
}
