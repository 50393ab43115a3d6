package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "journeykit/adapters/memory"
	"journeykit/catalog"
	"journeykit/core"
	"journeykit/points"
	"journeykit/rules"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *mem.Store) {
	t.Helper()
	cat, err := catalog.New(defs()...)
	require.NoError(t, err)
	store := mem.New()
	svc := NewService(store, NewEventBus(DispatchSync), rules.New(), cat, points.DefaultCalculator(), opts...)
	return svc, store
}

func TestRecordActivityCreditsPointsAndBadges(t *testing.T) {
	svc, _ := newTestService(t, WithTransactionIDs(seqIDs("tx")), WithNow(func() time.Time { return fixed }))
	awarded := 0
	svc.Subscribe(core.EventBadgeAwarded, func(ctx context.Context, e core.Event) { awarded++ })

	out, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snapshot()})
	require.NoError(t, err)

	// evening journal, evening streak 0, completes the daily combo
	assert.Equal(t, 20, out.Points.FinalPoints)
	assert.Equal(t, []string{"Daily Combo (+10)"}, out.Points.AppliedMultipliers)
	assert.Equal(t, "tx-1", out.Transaction.ID)
	assert.Len(t, out.NewBadges, 2)
	assert.Equal(t, 65, out.BadgePoints)
	assert.Equal(t, int64(85), out.TotalPoints)
	assert.Equal(t, 2, awarded)
	assert.False(t, out.Degraded)

	view, err := svc.Celebrations("alice", "spring")
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	assert.Equal(t, 60, view.Current.Priority)
	require.Len(t, view.Pending, 1)

	st, err := svc.State(context.Background(), "ALICE", "spring")
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, core.ActivityBadgeReward, st.Transactions[1].Activity)
	assert.Equal(t, 65, st.Transactions[1].Points)
}

func TestRecordActivityReplayNeverReawards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.RecordActivity(ctx, ActivityRequest{Context: snapshot()})
	require.NoError(t, err)

	out, err := svc.RecordActivity(ctx, ActivityRequest{Context: snapshot()})
	require.NoError(t, err)
	assert.Empty(t, out.NewBadges)
	assert.Zero(t, out.BadgePoints)
	assert.Equal(t, int64(105), out.TotalPoints)
}

// stale ownership from a concurrent request: storage refuses the duplicate
type staleOwned struct{ *mem.Store }

func (staleOwned) OwnedBadges(context.Context, core.UserID, core.SessionID) (map[core.BadgeKey]struct{}, error) {
	return map[core.BadgeKey]struct{}{}, nil
}

func TestRecordActivityTrustsStorageReceipt(t *testing.T) {
	cat, err := catalog.New(defs()...)
	require.NoError(t, err)
	store := staleOwned{mem.New()}
	svc := NewService(store, NewEventBus(DispatchSync), rules.New(), cat, points.DefaultCalculator())

	_, err = svc.RecordActivity(context.Background(), ActivityRequest{Context: snapshot()})
	require.NoError(t, err)
	require.NoError(t, svc.ClearCelebrations("alice", "spring"))

	out, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snapshot()})
	require.NoError(t, err)
	assert.Empty(t, out.NewBadges)
	assert.Empty(t, out.Celebrations)
	view, _ := svc.Celebrations("alice", "spring")
	assert.Nil(t, view.Current)
}

type brokenRules struct{}

func (brokenRules) Evaluate([]core.Badge, core.BadgeCheckContext, map[core.BadgeKey]struct{}) ([]core.Badge, error) {
	return nil, &core.InputError{Field: "condition.type", Value: "karma", Badge: "x"}
}

func TestEvaluationFailureStillCreditsActivity(t *testing.T) {
	cat, err := catalog.New(defs()...)
	require.NoError(t, err)
	svc := NewService(mem.New(), NewEventBus(DispatchSync), brokenRules{}, cat, points.DefaultCalculator())
	failed := 0
	svc.Subscribe(core.EventEvaluationFailed, func(ctx context.Context, e core.Event) { failed++ })

	out, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snapshot()})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Contains(t, out.EvaluationError, "karma")
	assert.Equal(t, int64(20), out.TotalPoints)
	assert.Empty(t, out.NewBadges)
	assert.Equal(t, 1, failed)
}

func TestRecordActivityRejectsInvalidInput(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	bad := snapshot()
	bad.Activity = "nap"
	_, err := svc.RecordActivity(ctx, ActivityRequest{Context: bad})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	reward := snapshot()
	reward.Activity = core.ActivityBadgeReward
	_, err = svc.RecordActivity(ctx, ActivityRequest{Context: reward})
	var ie *core.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "activity_type", ie.Field)

	noUser := snapshot()
	noUser.UserID = "  "
	_, err = svc.RecordActivity(ctx, ActivityRequest{Context: noUser})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	st, _ := store.GetState(ctx, "alice", "spring")
	assert.Zero(t, st.TotalPoints)
}

func TestRecordActivityMilestoneAndStreakCelebrations(t *testing.T) {
	svc, _ := newTestService(t)
	day := 14
	snap := core.BadgeCheckContext{
		UserID:       "bob",
		SessionID:    "spring",
		Activity:     core.ActivityDGA,
		Timestamp:    fixed,
		Streaks:      map[core.StreakKind]int{core.StreakGratitude: 14},
		Milestone:    &day,
		DayInJourney: 14,
	}
	out, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
	require.NoError(t, err)
	assert.Equal(t, 22, out.Points.FinalPoints)

	require.Len(t, out.Celebrations, 2)
	view, _ := svc.Celebrations("bob", "spring")
	assert.Equal(t, core.CelebrationMilestone, view.Current.Type)
	assert.Equal(t, core.CelebrationStreak, view.Pending[0].Type)
	assert.Equal(t, "Streak 14-29", view.Pending[0].Data["tier"])
}

func TestReplayedMilestoneQueuesOneCelebration(t *testing.T) {
	svc, _ := newTestService(t)
	queued := 0
	svc.Subscribe(core.EventCelebrationQueued, func(ctx context.Context, e core.Event) { queued++ })
	day := 7
	snap := core.BadgeCheckContext{
		UserID:       "dana",
		SessionID:    "spring",
		Activity:     core.ActivityDGA,
		Timestamp:    fixed,
		Streaks:      map[core.StreakKind]int{core.StreakGratitude: 7},
		Milestone:    &day,
		DayInJourney: 7,
	}

	first, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
	require.NoError(t, err)
	require.Len(t, first.Celebrations, 2)
	assert.Equal(t, "milestone:7", first.Celebrations[0].ID)

	for i := 0; i < 2; i++ {
		again, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
		require.NoError(t, err)
		assert.Empty(t, again.Celebrations)
	}
	assert.Equal(t, 2, queued)

	view, _ := svc.Celebrations("dana", "spring")
	milestones := 0
	for _, ce := range append([]core.CelebrationEvent{*view.Current}, view.Pending...) {
		if ce.Type == core.CelebrationMilestone {
			milestones++
		}
	}
	assert.Equal(t, 1, milestones)

	// a dismissed milestone is not shown again on a later activity that day
	d, ok, err := svc.Dismiss("dana", "spring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.CelebrationMilestone, d.Type)
	snap.Activity = core.ActivityVision
	later, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
	require.NoError(t, err)
	for _, ce := range later.Celebrations {
		assert.NotEqual(t, core.CelebrationMilestone, ce.Type)
	}
}

func TestEarlyBirdDerivedFromLocalTime(t *testing.T) {
	svc, _ := newTestService(t)
	snap := core.BadgeCheckContext{
		UserID:    "carol",
		SessionID: "spring",
		Activity:  core.ActivityMorningJournal,
		Timestamp: fixed,
		Timezone:  "Europe/Berlin",
	}
	// 07:00 UTC is 09:00 in Berlin
	out, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Points.FinalPoints)

	snap.Timezone = "America/Chicago"
	out, err = svc.RecordActivity(context.Background(), ActivityRequest{Context: snap})
	require.NoError(t, err)
	assert.Equal(t, 15, out.Points.FinalPoints)
}

func TestSeenAndCelebrationLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.RecordActivity(ctx, ActivityRequest{Context: snapshot()})
	require.NoError(t, err)

	unseen, err := svc.Unseen(ctx, "alice", "spring")
	require.NoError(t, err)
	assert.Len(t, unseen, 2)
	n, err := svc.MarkSeen(ctx, "alice", "spring", []core.BadgeKey{"streak_7"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	unseen, _ = svc.Unseen(ctx, "alice", "spring")
	assert.Len(t, unseen, 1)

	ev, ok, err := svc.Dismiss("alice", "spring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, ev.Priority)

	ended, err := svc.EndSession("alice", "spring")
	require.NoError(t, err)
	assert.True(t, ended)
	view, _ := svc.Celebrations("alice", "spring")
	assert.Nil(t, view.Current)
	assert.Empty(t, view.Pending)

	_, ok, err = svc.Dismiss("alice", "spring")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReloadEconomy(t *testing.T) {
	svc, _ := newTestService(t)
	econ, err := points.NewEconomy(points.DefaultTiers(), points.BasePoints{core.ActivityDGA: 40}, 10, 5, points.DefaultEarlyBirdCutoff)
	require.NoError(t, err)
	require.NoError(t, svc.ReloadEconomy(context.Background(), StaticEconomy(econ)))

	res, err := svc.Calculate(points.Input{Activity: core.ActivityDGA, BasePoints: 40})
	require.NoError(t, err)
	assert.Equal(t, 40, res.FinalPoints)
	assert.Equal(t, 40, svc.Economy().Base[core.ActivityDGA])

	_, err = svc.Calculate(points.Input{Activity: "nap"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestCatalogHidesHiddenBadges(t *testing.T) {
	svc, _ := newTestService(t)
	all := svc.Catalog(true)
	assert.Len(t, all, 3)
	hidden := defs()
	hidden[0].Hidden = true
	cat, err := catalog.New(hidden...)
	require.NoError(t, err)
	svc = NewService(mem.New(), NewEventBus(DispatchSync), rules.New(), cat, points.DefaultCalculator())
	assert.Len(t, svc.Catalog(false), 2)
}

func TestSweepSessionsDropsIdleQueues(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordActivity(context.Background(), ActivityRequest{Context: snapshot()})
	require.NoError(t, err)

	assert.Equal(t, 0, svc.SweepSessions(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, svc.SweepSessions(time.Millisecond))

	view, err := svc.Celebrations("alice", "spring")
	require.NoError(t, err)
	assert.Nil(t, view.Current)
	assert.Empty(t, view.Pending)
}
