package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConditionEveryKind(t *testing.T) {
	specs := []ConditionSpec{
		{Type: ConditionStreak, Activity: "morning", Count: 7},
		{Type: ConditionFirst, Activity: "dga"},
		{Type: ConditionCombo, Activities: []string{"morning_journal", "evening_journal"}},
		{Type: ConditionTime, Activity: "morning_journal", Before: "07:00"},
		{Type: ConditionShare, Count: 1},
		{Type: ConditionEncourage, Count: 5},
		{Type: ConditionMilestone, Number: 21},
		{Type: ConditionComeback, DaysAway: 7},
		{Type: ConditionWeekend, Complete: true},
		{Type: ConditionMood, Improvement: true, Count: 3},
		{Type: ConditionComplete},
		{Type: ConditionGraduate, Activity: "vision"},
	}
	seen := map[ConditionKind]bool{}
	for _, spec := range specs {
		c, err := DecodeCondition(spec)
		require.NoError(t, err, "kind %s", spec.Type)
		assert.Equal(t, spec.Type, c.Kind())
		assert.Equal(t, spec, c.Spec())
		seen[c.Kind()] = true
	}
	assert.Len(t, seen, 12)
}

func TestDecodeConditionRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		spec  ConditionSpec
		field string
	}{
		{"unknown kind", ConditionSpec{Type: "karma"}, "condition.type"},
		{"streak counter", ConditionSpec{Type: ConditionStreak, Activity: "lunch", Count: 3}, "condition.activity"},
		{"streak count", ConditionSpec{Type: ConditionStreak, Activity: "morning"}, "condition.count"},
		{"first activity", ConditionSpec{Type: ConditionFirst, Activity: "nap"}, "condition.activity"},
		{"combo empty", ConditionSpec{Type: ConditionCombo}, "condition.activities"},
		{"combo count", ConditionSpec{Type: ConditionCombo, Activities: []string{"dga"}, Count: 2}, "condition.count"},
		{"time window", ConditionSpec{Type: ConditionTime, Activity: "dga"}, "condition.before"},
		{"time clock", ConditionSpec{Type: ConditionTime, Activity: "dga", After: "25:00"}, "condition.after"},
		{"milestone", ConditionSpec{Type: ConditionMilestone}, "condition.number"},
		{"comeback", ConditionSpec{Type: ConditionComeback}, "condition.days_away"},
		{"mood trend", ConditionSpec{Type: ConditionMood, Improvement: true, Count: 1}, "condition.count"},
		{"graduate activity", ConditionSpec{Type: ConditionGraduate, Activity: "nap"}, "condition.activity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCondition(tc.spec)
			var ie *InputError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, tc.field, ie.Field)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestTimeConditionWindow(t *testing.T) {
	seven, _ := ParseClock("07:00")
	twentyTwo, _ := ParseClock("22:00")
	four, _ := ParseClock("04:00")

	early := TimeCondition{Activities: []ActivityType{ActivityMorningJournal}, Before: &seven}
	assert.True(t, early.Contains(Clock{Hour: 6, Minute: 59}))
	assert.False(t, early.Contains(Clock{Hour: 7}))

	late := TimeCondition{Activities: []ActivityType{ActivityEveningJournal}, After: &twentyTwo}
	assert.True(t, late.Contains(Clock{Hour: 22}))
	assert.False(t, late.Contains(Clock{Hour: 21, Minute: 59}))

	overnight := TimeCondition{Activities: []ActivityType{ActivityEveningJournal}, After: &twentyTwo, Before: &four}
	assert.True(t, overnight.Contains(Clock{Hour: 23, Minute: 30}))
	assert.True(t, overnight.Contains(Clock{Hour: 3}))
	assert.False(t, overnight.Contains(Clock{Hour: 12}))
}

func TestBadgeJSONRoundTrip(t *testing.T) {
	b := Badge{
		Key:          "early_riser",
		Name:         "Early Riser",
		Rarity:       RarityUncommon,
		Condition:    TimeCondition{Activities: []ActivityType{ActivityMorningJournal}, Before: &Clock{Hour: 7}},
		PointsReward: 25,
		SortOrder:    3,
	}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"time"`)
	assert.Contains(t, string(data), `"before":"07:00"`)

	var out Badge
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, b.Key, out.Key)
	assert.Equal(t, b.Condition.Spec(), out.Condition.Spec())

	err = json.Unmarshal([]byte(`{"key":"x","rarity":"common","condition":{"type":"nope"}}`), &out)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestContextValidate(t *testing.T) {
	ctx := BadgeCheckContext{
		UserID:    "u",
		SessionID: "s",
		Activity:  ActivityDGA,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Timezone:  "America/New_York",
	}
	require.NoError(t, ctx.Validate())

	local, err := ctx.LocalTime()
	require.NoError(t, err)
	assert.Equal(t, 4, local.Hour())

	bad := ctx
	bad.Timezone = "Mars/Olympus"
	var ie *InputError
	require.True(t, errors.As(bad.Validate(), &ie))
	assert.Equal(t, "timezone", ie.Field)

	bad = ctx
	bad.Activity = "nap"
	require.True(t, errors.As(bad.Validate(), &ie))
	assert.Equal(t, "activity_type", ie.Field)
}
