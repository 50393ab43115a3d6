package core

import (
	"time"
)

// SocialTotals holds lifetime counts of social actions.
type SocialTotals struct {
	Shares         int `json:"shares"`
	Encouragements int `json:"encouragements"`
}

// MoodEntry is one dated mood score.
type MoodEntry struct {
	Date  time.Time `json:"date"`
	Score int       `json:"score"`
}

// WeekendProgress records which weekend days had their activities completed.
type WeekendProgress struct {
	Saturday bool `json:"saturday"`
	Sunday   bool `json:"sunday"`
}

// ProgramProgress records program completion, overall and per activity.
type ProgramProgress struct {
	Complete   bool                  `json:"complete"`
	Activities map[ActivityType]bool `json:"activities,omitempty"`
}

// Completion is a past completion of an activity.
type Completion struct {
	Activity ActivityType `json:"activity"`
	At       time.Time    `json:"at"`
}

// BadgeCheckContext is the read-only snapshot badges are evaluated against.
// The calling layer assembles it from storage; absent data never satisfies
// a condition.
type BadgeCheckContext struct {
	UserID            UserID                `json:"user_id"`
	SessionID         SessionID             `json:"session_id"`
	Activity          ActivityType          `json:"activity_type"`
	Timestamp         time.Time             `json:"timestamp"`
	Timezone          string                `json:"timezone,omitempty"`
	Streaks           map[StreakKind]int    `json:"streaks,omitempty"`
	CompletedToday    map[ActivityType]bool `json:"completed_today,omitempty"`
	Totals            map[ActivityType]int  `json:"totals,omitempty"`
	Social            SocialTotals          `json:"social"`
	MoodHistory       []MoodEntry           `json:"mood_history,omitempty"`
	Milestone         *int                  `json:"milestone,omitempty"`
	DayInJourney      int                   `json:"day_in_journey"`
	LastJournalDate   *time.Time            `json:"last_journal_date,omitempty"`
	Weekend           WeekendProgress       `json:"weekend"`
	Program           ProgramProgress       `json:"program"`
	RecentCompletions []Completion          `json:"recent_completions,omitempty"`
}

// Validate rejects snapshots the engine cannot evaluate.
func (c BadgeCheckContext) Validate() error {
	if c.UserID == "" {
		return &InputError{Field: "user_id", Reason: "empty user id"}
	}
	if c.SessionID == "" {
		return &InputError{Field: "session_id", Reason: "empty session id"}
	}
	if !c.Activity.Valid() {
		return &InputError{Field: "activity_type", Value: string(c.Activity), Reason: "unknown activity type"}
	}
	if c.Timestamp.IsZero() {
		return &InputError{Field: "timestamp", Reason: "missing completion time"}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for k := range c.Streaks {
		if !k.Valid() {
			return &InputError{Field: "streaks", Value: string(k), Reason: "unknown streak counter"}
		}
	}
	return nil
}

// Location resolves the user's timezone, defaulting to UTC.
func (c BadgeCheckContext) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &InputError{Field: "timezone", Value: c.Timezone, Reason: "unknown time zone"}
	}
	return loc, nil
}

// LocalTime returns the completion time in the user's timezone.
func (c BadgeCheckContext) LocalTime() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	return c.Timestamp.In(loc), nil
}

// Streak returns the named counter and whether the snapshot carries it.
func (c BadgeCheckContext) Streak(k StreakKind) (int, bool) {
	v, ok := c.Streaks[k]
	return v, ok
}
