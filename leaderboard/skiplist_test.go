package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"journeykit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 10)
	s.Update(core.UserID("b"), 20)
	s.Update(core.UserID("c"), 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != core.UserID("b") || top[1].User != core.UserID("c") || top[2].User != core.UserID("a") {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.UserID("a"), 25)
	top = s.TopN(1)
	if top[0].User != core.UserID("a") {
		t.Fatalf("top should be a, got %#v", top)
	}
	if r, ok := s.Rank("c"); !ok || r != 3 {
		t.Fatalf("expected c third, got %d", r)
	}
	s.Remove("b")
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	if _, ok := s.Rank("b"); ok {
		t.Fatal("removed user still ranked")
	}
}

func TestSkipListTiesOrderByUser(t *testing.T) {
	s := NewSkipList()
	s.Update("zoe", 50)
	s.Update("ann", 50)
	top := s.TopN(2)
	if top[0].User != "ann" || top[1].User != "zoe" {
		t.Fatalf("unexpected order: %#v", top)
	}
}

func TestSkipListRankAndAtMatchSortedOrder(t *testing.T) {
	s := NewSkipList()
	scores := map[core.UserID]int64{}
	for i := 0; i < 300; i++ {
		u := core.UserID(fmt.Sprintf("u%03d", i%120))
		score := int64((i * 37) % 50)
		s.Update(u, score)
		scores[u] = score
		if i%7 == 0 {
			s.Remove(u)
			delete(scores, u)
		}
	}

	want := make([]Entry, 0, len(scores))
	for u, sc := range scores {
		want = append(want, Entry{User: u, Score: sc})
	}
	sort.Slice(want, func(i, j int) bool { return before(want[i], want[j]) })

	if s.Len() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), s.Len())
	}
	for i, e := range want {
		r, ok := s.Rank(e.User)
		if !ok || r != i+1 {
			t.Fatalf("rank of %s: want %d, got %d (%v)", e.User, i+1, r, ok)
		}
		got, ok := s.At(i + 1)
		if !ok || got != e {
			t.Fatalf("at %d: want %#v, got %#v", i+1, e, got)
		}
	}
	if _, ok := s.At(0); ok {
		t.Fatal("rank 0 should not exist")
	}
	if _, ok := s.At(len(want) + 1); ok {
		t.Fatal("rank past the end should not exist")
	}
}

func TestBoardsFollowPointsAddedPerSession(t *testing.T) {
	b := NewBoards()
	ctx := context.Background()
	b.Handle(ctx, core.NewPointsAdded("alice", "spring", core.ActivityDGA, 15, 15))
	b.Handle(ctx, core.NewPointsAdded("bob", "spring", core.ActivityDGA, 15, 40))
	b.Handle(ctx, core.NewPointsAdded("alice", "spring", core.ActivityDGA, 15, 30))
	b.Handle(ctx, core.NewPointsAdded("carol", "autumn", core.ActivityDGA, 15, 999))
	b.Handle(ctx, core.NewBadgeAwarded("alice", "spring", core.Badge{Key: "x", PointsReward: 1000}))

	top := b.Top("spring", 10)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %#v", top)
	}
	if top[0].User != "bob" || top[0].Rank != 1 || top[1].User != "alice" || top[1].Score != 30 {
		t.Fatalf("unexpected board: %#v", top)
	}
	pos, ok := b.Position("spring", "alice")
	if !ok || pos.Rank != 2 {
		t.Fatalf("unexpected position: %#v", pos)
	}
	if got := b.Top("winter", 5); len(got) != 0 {
		t.Fatalf("expected empty board, got %#v", got)
	}
}

func TestBoardsIgnoreStaleTotals(t *testing.T) {
	b := NewBoards()
	ctx := context.Background()
	b.Handle(ctx, core.NewPointsAdded("alice", "spring", core.ActivityDGA, 15, 45))
	// an earlier commit delivered after the later one
	b.Handle(ctx, core.NewPointsAdded("alice", "spring", core.ActivityDGA, 15, 30))

	pos, ok := b.Position("spring", "alice")
	if !ok || pos.Score != 45 {
		t.Fatalf("stale total overwrote the board: %#v", pos)
	}

	s := NewSkipList()
	if !s.Raise("bob", 10) || s.Raise("bob", 10) || s.Raise("bob", 5) || !s.Raise("bob", 11) {
		t.Fatal("raise should only accept higher scores")
	}
	if e, _ := s.Get("bob"); e.Score != 11 {
		t.Fatalf("expected 11, got %d", e.Score)
	}
}

func TestBoardsRebuild(t *testing.T) {
	b := NewBoards()
	b.Handle(context.Background(), core.NewPointsAdded("stale", "spring", core.ActivityDGA, 1, 1))
	b.Rebuild("spring", []core.UserState{
		{UserID: "alice", SessionID: "spring", TotalPoints: 70},
		{UserID: "bob", SessionID: "spring", TotalPoints: 90},
	})
	top := b.Top("spring", 5)
	if len(top) != 2 || top[0].User != "bob" {
		t.Fatalf("unexpected board: %#v", top)
	}
}
