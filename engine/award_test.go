package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journeykit/core"
	"journeykit/rules"
)

var fixed = time.Date(2026, 4, 4, 7, 0, 0, 0, time.UTC)

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func defs() []core.Badge {
	return []core.Badge{
		{Key: "streak_7", Rarity: core.RarityRare, PointsReward: 50, Condition: core.StreakCondition{Streak: core.StreakMorning, Count: 7}},
		{Key: "bookends", Rarity: core.RarityCommon, PointsReward: 15, Condition: core.ComboCondition{Activities: []core.ActivityType{core.ActivityMorningJournal, core.ActivityEveningJournal}}},
		{Key: "graduate", Rarity: core.RarityLegendary, PointsReward: 500, Condition: core.CompletionCondition{Graduate: true}},
	}
}

func snapshot() core.BadgeCheckContext {
	return core.BadgeCheckContext{
		UserID:         "alice",
		SessionID:      "spring",
		Activity:       core.ActivityEveningJournal,
		Timestamp:      fixed,
		Streaks:        map[core.StreakKind]int{core.StreakMorning: 7},
		CompletedToday: map[core.ActivityType]bool{core.ActivityMorningJournal: true, core.ActivityEveningJournal: true},
	}
}

func TestAwardBuildsRecordsAndCelebrations(t *testing.T) {
	coord := NewCoordinator(WithClock(func() time.Time { return fixed }), WithIDGenerator(seqIDs("c")))
	newly := defs()[:2]
	res := coord.Award(append(newly, newly[0]), snapshot())

	require.Len(t, res.NewBadges, 2)
	assert.Equal(t, 65, res.PointsAwarded)
	assert.Equal(t, core.UserBadge{UserID: "alice", SessionID: "spring", BadgeKey: "streak_7", UnlockedAt: fixed, IsNew: true}, res.NewBadges[0])

	require.Len(t, res.CelebrationEvents, 2)
	assert.Equal(t, "c-1", res.CelebrationEvents[0].ID)
	assert.Equal(t, 60, res.CelebrationEvents[0].Priority)
	assert.Equal(t, 20, res.CelebrationEvents[1].Priority)
	assert.Equal(t, core.CelebrationBadge, res.CelebrationEvents[1].Type)
	assert.Equal(t, "bookends", res.CelebrationEvents[1].Data["badge_key"])

	grants := res.Grants()
	assert.Equal(t, 50, grants[0].Points)
	assert.Equal(t, 15, grants[1].Points)
}

func TestAwardIsIdempotentWithUpdatedOwnership(t *testing.T) {
	engine := rules.New()
	coord := NewCoordinator()
	ctx := snapshot()
	owned := map[core.BadgeKey]struct{}{}

	newly, err := engine.Evaluate(defs(), ctx, owned)
	require.NoError(t, err)
	res := coord.Award(newly, ctx)
	require.Len(t, res.NewBadges, 2)

	for _, k := range res.Keys() {
		owned[k] = struct{}{}
	}
	again, err := engine.Evaluate(defs(), ctx, owned)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Empty(t, coord.Award(again, ctx).NewBadges)
}

func TestAwardOnlyNarrowsToInserted(t *testing.T) {
	res := NewCoordinator().Award(defs(), snapshot())
	only := res.Only([]core.BadgeKey{"graduate"})
	require.Len(t, only.NewBadges, 1)
	assert.Equal(t, 500, only.PointsAwarded)
	assert.Equal(t, 100, only.CelebrationEvents[0].Priority)
	assert.Equal(t, core.BadgeKey("graduate"), only.Badges()[0].Key)

	assert.Empty(t, res.Only(nil).NewBadges)
}
