package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journeykit/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

var unlocked = time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)

func testCommit(txID string, points int, badges ...core.BadgeKey) core.Commit {
	c := core.Commit{
		UserID:    "alice",
		SessionID: "spring",
		Activity: core.PointsTransaction{
			ID: txID, UserID: "alice", SessionID: "spring",
			Activity: core.ActivityMorningJournal, Points: points,
			Modifiers: []string{"Daily Combo (+10)"}, CreatedAt: unlocked,
		},
	}
	for _, b := range badges {
		c.Grants = append(c.Grants, core.BadgeGrant{
			Badge:  core.UserBadge{UserID: "alice", SessionID: "spring", BadgeKey: b, UnlockedAt: unlocked, IsNew: true},
			Points: 25,
		})
	}
	if len(badges) > 0 {
		c.RewardID = txID + "-reward"
	}
	return c
}

func TestStore_Commit(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	rec, err := store.Commit(ctx, testCommit("t1", 20, "first_light", "bookends"))
	require.NoError(t, err)
	assert.Equal(t, int64(70), rec.Total)
	assert.Equal(t, 50, rec.BadgePoints)
	assert.Equal(t, []core.BadgeKey{"first_light", "bookends"}, rec.Awarded)
	assert.Equal(t, []string{"t1", "t1-reward"}, rec.Transactions)

	// Verify rows landed together
	n, err := client.HLen(ctx, badgesKey("alice", "spring")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	state, err := store.GetState(ctx, "alice", "spring")
	require.NoError(t, err)
	require.Len(t, state.Transactions, 2)
	assert.Equal(t, core.ActivityBadgeReward, state.Transactions[1].Activity)
	assert.Equal(t, 50, state.Transactions[1].Points)
	assert.Equal(t, "first_light,bookends", state.Transactions[1].Reference)
	assert.Equal(t, "t1-reward", state.Transactions[1].ID)
	assert.Equal(t, []string{"Daily Combo (+10)"}, state.Transactions[0].Modifiers)
}

func TestStore_CommitSkipsOwnedBadges(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.Commit(ctx, testCommit("t1", 10, "first_light"))
	require.NoError(t, err)

	// replay plus a duplicate grant inside one commit
	rec, err := store.Commit(ctx, testCommit("t2", 10, "first_light", "bookends", "bookends"))
	require.NoError(t, err)
	assert.Equal(t, []core.BadgeKey{"bookends"}, rec.Awarded)
	assert.Equal(t, 25, rec.BadgePoints)
	assert.Equal(t, int64(70), rec.Total)

	owned, err := store.OwnedBadges(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestStore_CommitConcurrentGrantOnce(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Commit(ctx, testCommit(fmt.Sprintf("t%d", i), 1, "once"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total, err := client.Get(ctx, pointsKey("alice", "spring")).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(35), total)
}

func TestStore_CommitOverflowWritesNothing(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, pointsKey("alice", "spring"), "9223372036854775000", 0).Err())

	_, err := store.Commit(ctx, testCommit("t1", 5000, "first_light"))
	require.Error(t, err)

	n, err := client.HLen(ctx, badgesKey("alice", "spring")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	l, err := client.LLen(ctx, txKey("alice", "spring")).Result()
	require.NoError(t, err)
	assert.Zero(t, l)
}

func TestStore_CommitRejectsInvalid(t *testing.T) {
	// This test doesn't need Redis connection
	store := &Store{}
	c := testCommit("", 1)
	_, err := store.Commit(context.Background(), c)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestStore_MarkSeen(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.Commit(ctx, testCommit("t1", 10, "a", "b"))
	require.NoError(t, err)

	n, err := store.MarkSeen(ctx, "alice", "spring", []core.BadgeKey{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	state, err := store.GetState(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.True(t, state.Badges["a"].Seen)
	assert.False(t, state.Badges["a"].IsNew)
	assert.False(t, state.Badges["b"].Seen)
	assert.True(t, state.Badges["a"].UnlockedAt.Equal(unlocked))

	n, err = store.MarkSeen(ctx, "alice", "spring", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_GetState_Cache(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	_, err := store.Commit(ctx, testCommit("t1", 200))
	require.NoError(t, err)

	// First get should build from keys and cache
	state1, err := store.GetState(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(200), state1.TotalPoints)

	// Check cache was created
	exists, err := client.Exists(ctx, stateKey("alice", "spring")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Modify underlying data directly (simulating external change)
	require.NoError(t, client.Set(ctx, pointsKey("alice", "spring"), 300, 0).Err())

	// Second get should return cached data (old value)
	state2, err := store.GetState(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(200), state2.TotalPoints)

	// A commit invalidates the cache
	_, err = store.Commit(ctx, testCommit("t2", 50))
	require.NoError(t, err)

	state3, err := store.GetState(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(350), state3.TotalPoints)
}

func TestStore_EmptySession(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	state, err := store.GetState(ctx, "nobody", "spring")
	require.NoError(t, err)

	assert.Equal(t, core.UserID("nobody"), state.UserID)
	assert.Zero(t, state.TotalPoints)
	assert.Empty(t, state.Badges)
	assert.True(t, time.Since(state.Updated) < time.Second)

	owned, err := store.OwnedBadges(ctx, "nobody", "spring")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, "", config.Password)
	assert.Equal(t, 0, config.DB)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
	assert.Equal(t, 5*time.Minute, config.StateTTL)
}
