package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"journeykit/core"
)

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	c := core.Commit{
		UserID:    "alice",
		SessionID: "spring",
		Activity:  core.PointsTransaction{ID: "t1", UserID: "alice", SessionID: "spring", Activity: core.ActivityWeeklyJournal, Points: 25},
		Grants:    []core.BadgeGrant{{Badge: core.UserBadge{UserID: "alice", SessionID: "spring", BadgeKey: "onboarded", IsNew: true}, Points: 10}},
		RewardID:  "t2",
	}
	rec, err := store.Commit(context.Background(), c)
	if err != nil || rec.Total != 35 {
		t.Fatalf("commit: receipt=%+v err=%v", rec, err)
	}
	if n, err := store.MarkSeen(context.Background(), "alice", "spring", []core.BadgeKey{"onboarded"}); err != nil || n != 1 {
		t.Fatalf("mark seen: n=%d err=%v", n, err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	// reload
	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	state, err := reloaded.GetState(context.Background(), "alice", "spring")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.TotalPoints != 35 {
		t.Fatalf("expected points 35, got %d", state.TotalPoints)
	}
	if b, ok := state.Badges["onboarded"]; !ok || !b.Seen {
		t.Fatalf("expected seen badge onboarded, got %+v", state.Badges)
	}

	// replay after reload never re-credits the badge
	c.Activity.ID, c.RewardID = "t3", "t4"
	rec, err = reloaded.Commit(context.Background(), c)
	if err != nil || rec.Total != 60 || len(rec.Awarded) != 0 {
		t.Fatalf("replay: receipt=%+v err=%v", rec, err)
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected decode error")
	}
}
