package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ConditionKind is the wire tag of an unlock condition.
type ConditionKind string

const (
	ConditionStreak    ConditionKind = "streak"
	ConditionFirst     ConditionKind = "first"
	ConditionCombo     ConditionKind = "combo"
	ConditionTime      ConditionKind = "time"
	ConditionShare     ConditionKind = "share"
	ConditionEncourage ConditionKind = "encourage"
	ConditionMilestone ConditionKind = "milestone"
	ConditionComeback  ConditionKind = "comeback"
	ConditionWeekend   ConditionKind = "weekend"
	ConditionMood      ConditionKind = "mood"
	ConditionComplete  ConditionKind = "complete"
	ConditionGraduate  ConditionKind = "graduate"
)

// ConditionVisitor handles every UnlockCondition variant. A new variant adds
// a method here, so every visitor fails to compile until it handles it.
type ConditionVisitor interface {
	VisitStreak(StreakCondition) bool
	VisitFirst(FirstCondition) bool
	VisitCombo(ComboCondition) bool
	VisitTime(TimeCondition) bool
	VisitShare(ShareCondition) bool
	VisitEncourage(EncourageCondition) bool
	VisitMilestone(MilestoneCondition) bool
	VisitComeback(ComebackCondition) bool
	VisitWeekend(WeekendCondition) bool
	VisitMood(MoodCondition) bool
	VisitCompletion(CompletionCondition) bool
}

// UnlockCondition is the closed set of badge unlock rules. The unexported
// marker keeps implementations inside this package.
type UnlockCondition interface {
	Kind() ConditionKind
	Accept(v ConditionVisitor) bool
	Validate() error
	Spec() ConditionSpec
	sealed()
}

// StreakCondition holds when the named streak counter reaches Count.
type StreakCondition struct {
	Streak StreakKind
	Count  int
}

func (StreakCondition) Kind() ConditionKind              { return ConditionStreak }
func (c StreakCondition) Accept(v ConditionVisitor) bool { return v.VisitStreak(c) }
func (StreakCondition) sealed()                          {}

func (c StreakCondition) Validate() error {
	if !c.Streak.Valid() {
		return &InputError{Field: "condition.activity", Value: string(c.Streak), Reason: "unknown streak counter"}
	}
	return positive("condition.count", c.Count)
}

func (c StreakCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionStreak, Activity: string(c.Streak), Count: c.Count}
}

// FirstCondition holds on the user's first-ever completion of Activity.
type FirstCondition struct {
	Activity ActivityType
}

func (FirstCondition) Kind() ConditionKind              { return ConditionFirst }
func (c FirstCondition) Accept(v ConditionVisitor) bool { return v.VisitFirst(c) }
func (FirstCondition) sealed()                          {}

func (c FirstCondition) Validate() error { return validActivity("condition.activity", c.Activity) }

func (c FirstCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionFirst, Activity: string(c.Activity)}
}

// ComboCondition holds when Count of Activities were completed today.
// A zero Count requires all of them.
type ComboCondition struct {
	Activities []ActivityType
	Count      int
}

func (ComboCondition) Kind() ConditionKind              { return ConditionCombo }
func (c ComboCondition) Accept(v ConditionVisitor) bool { return v.VisitCombo(c) }
func (ComboCondition) sealed()                          {}

func (c ComboCondition) Validate() error {
	if len(c.Activities) == 0 {
		return &InputError{Field: "condition.activities", Reason: "combo needs at least one activity"}
	}
	for _, a := range c.Activities {
		if err := validActivity("condition.activities", a); err != nil {
			return err
		}
	}
	if c.Count < 0 || c.Count > len(c.Activities) {
		return &InputError{Field: "condition.count", Value: strconv.Itoa(c.Count), Reason: "must be between 0 and the number of activities"}
	}
	return nil
}

// Required is the number of listed activities that must be done today.
func (c ComboCondition) Required() int {
	if c.Count == 0 {
		return len(c.Activities)
	}
	return c.Count
}

func (c ComboCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionCombo, Activities: activityStrings(c.Activities), Count: c.Count}
}

// TimeCondition holds when a listed activity is completed inside a local
// clock window. After is inclusive, Before exclusive; After later than
// Before wraps midnight.
type TimeCondition struct {
	Activities []ActivityType
	Before     *Clock
	After      *Clock
	Count      int
}

func (TimeCondition) Kind() ConditionKind              { return ConditionTime }
func (c TimeCondition) Accept(v ConditionVisitor) bool { return v.VisitTime(c) }
func (TimeCondition) sealed()                          {}

func (c TimeCondition) Validate() error {
	if len(c.Activities) == 0 {
		return &InputError{Field: "condition.activities", Reason: "time condition needs an activity"}
	}
	for _, a := range c.Activities {
		if err := validActivity("condition.activities", a); err != nil {
			return err
		}
	}
	if c.Before == nil && c.After == nil {
		return &InputError{Field: "condition.before", Reason: "time condition needs before or after"}
	}
	if c.Count < 0 {
		return &InputError{Field: "condition.count", Value: strconv.Itoa(c.Count), Reason: "must not be negative"}
	}
	return nil
}

// Required is the number of in-window completions needed.
func (c TimeCondition) Required() int {
	if c.Count <= 1 {
		return 1
	}
	return c.Count
}

// Contains reports whether clock falls inside the window.
func (c TimeCondition) Contains(clock Clock) bool {
	m := clock.Minutes()
	switch {
	case c.After != nil && c.Before != nil:
		a, b := c.After.Minutes(), c.Before.Minutes()
		if a <= b {
			return m >= a && m < b
		}
		return m >= a || m < b
	case c.After != nil:
		return m >= c.After.Minutes()
	case c.Before != nil:
		return m < c.Before.Minutes()
	}
	return false
}

// Lists reports whether a is one of the condition's activities.
func (c TimeCondition) Lists(a ActivityType) bool {
	for _, x := range c.Activities {
		if x == a {
			return true
		}
	}
	return false
}

func (c TimeCondition) Spec() ConditionSpec {
	spec := ConditionSpec{Type: ConditionTime, Count: c.Count}
	if len(c.Activities) == 1 {
		spec.Activity = string(c.Activities[0])
	} else {
		spec.Activities = activityStrings(c.Activities)
	}
	if c.Before != nil {
		spec.Before = c.Before.String()
	}
	if c.After != nil {
		spec.After = c.After.String()
	}
	return spec
}

// ShareCondition holds when the lifetime share count reaches Count.
type ShareCondition struct{ Count int }

func (ShareCondition) Kind() ConditionKind              { return ConditionShare }
func (c ShareCondition) Accept(v ConditionVisitor) bool { return v.VisitShare(c) }
func (ShareCondition) sealed()                          {}
func (c ShareCondition) Validate() error                { return positive("condition.count", c.Count) }
func (c ShareCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionShare, Count: c.Count}
}

// EncourageCondition holds when the lifetime encouragement count reaches Count.
type EncourageCondition struct{ Count int }

func (EncourageCondition) Kind() ConditionKind              { return ConditionEncourage }
func (c EncourageCondition) Accept(v ConditionVisitor) bool { return v.VisitEncourage(c) }
func (EncourageCondition) sealed()                          {}
func (c EncourageCondition) Validate() error                { return positive("condition.count", c.Count) }
func (c EncourageCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionEncourage, Count: c.Count}
}

// MilestoneCondition holds on the given day of the journey.
type MilestoneCondition struct{ Number int }

func (MilestoneCondition) Kind() ConditionKind              { return ConditionMilestone }
func (c MilestoneCondition) Accept(v ConditionVisitor) bool { return v.VisitMilestone(c) }
func (MilestoneCondition) sealed()                          {}
func (c MilestoneCondition) Validate() error                { return positive("condition.number", c.Number) }
func (c MilestoneCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionMilestone, Number: c.Number}
}

// ComebackCondition rewards returning after DaysAway days without a journal.
type ComebackCondition struct{ DaysAway int }

func (ComebackCondition) Kind() ConditionKind              { return ConditionComeback }
func (c ComebackCondition) Accept(v ConditionVisitor) bool { return v.VisitComeback(c) }
func (ComebackCondition) sealed()                          {}
func (c ComebackCondition) Validate() error                { return positive("condition.days_away", c.DaysAway) }
func (c ComebackCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionComeback, DaysAway: c.DaysAway}
}

// WeekendCondition holds when weekend activities are done: both days when
// Complete is set, either day otherwise.
type WeekendCondition struct{ Complete bool }

func (WeekendCondition) Kind() ConditionKind              { return ConditionWeekend }
func (c WeekendCondition) Accept(v ConditionVisitor) bool { return v.VisitWeekend(c) }
func (WeekendCondition) sealed()                          {}
func (WeekendCondition) Validate() error                  { return nil }
func (c WeekendCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionWeekend, Complete: c.Complete}
}

// MoodCondition looks at the last Count mood entries. With Improvement the
// scores must never drop and must end higher than they started.
type MoodCondition struct {
	Improvement bool
	Count       int
}

func (MoodCondition) Kind() ConditionKind              { return ConditionMood }
func (c MoodCondition) Accept(v ConditionVisitor) bool { return v.VisitMood(c) }
func (MoodCondition) sealed()                          {}

func (c MoodCondition) Validate() error {
	if c.Improvement && c.Count < 2 {
		return &InputError{Field: "condition.count", Value: strconv.Itoa(c.Count), Reason: "an improving trend needs at least 2 entries"}
	}
	return positive("condition.count", c.Count)
}

func (c MoodCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: ConditionMood, Improvement: c.Improvement, Count: c.Count}
}

// CompletionCondition holds on program completion, optionally scoped to one
// activity. Graduate only changes the wire tag.
type CompletionCondition struct {
	Graduate bool
	Activity ActivityType
}

func (c CompletionCondition) Kind() ConditionKind {
	if c.Graduate {
		return ConditionGraduate
	}
	return ConditionComplete
}
func (c CompletionCondition) Accept(v ConditionVisitor) bool { return v.VisitCompletion(c) }
func (CompletionCondition) sealed()                          {}

func (c CompletionCondition) Validate() error {
	if c.Activity == "" {
		return nil
	}
	return validActivity("condition.activity", c.Activity)
}

func (c CompletionCondition) Spec() ConditionSpec {
	return ConditionSpec{Type: c.Kind(), Activity: string(c.Activity)}
}

// ConditionSpec is the flat, tagged wire form of an UnlockCondition.
type ConditionSpec struct {
	Type        ConditionKind `json:"type" yaml:"type"`
	Activity    string        `json:"activity,omitempty" yaml:"activity,omitempty"`
	Activities  []string      `json:"activities,omitempty" yaml:"activities,omitempty"`
	Count       int           `json:"count,omitempty" yaml:"count,omitempty"`
	Before      string        `json:"before,omitempty" yaml:"before,omitempty"`
	After       string        `json:"after,omitempty" yaml:"after,omitempty"`
	Number      int           `json:"number,omitempty" yaml:"number,omitempty"`
	DaysAway    int           `json:"days_away,omitempty" yaml:"days_away,omitempty"`
	Complete    bool          `json:"complete,omitempty" yaml:"complete,omitempty"`
	Improvement bool          `json:"improvement,omitempty" yaml:"improvement,omitempty"`
}

// DecodeCondition builds and validates the variant named by spec.Type.
func DecodeCondition(spec ConditionSpec) (UnlockCondition, error) {
	var c UnlockCondition
	switch spec.Type {
	case ConditionStreak:
		c = StreakCondition{Streak: StreakKind(spec.Activity), Count: spec.Count}
	case ConditionFirst:
		c = FirstCondition{Activity: ActivityType(spec.Activity)}
	case ConditionCombo:
		c = ComboCondition{Activities: toActivities(spec.Activities), Count: spec.Count}
	case ConditionTime:
		tc := TimeCondition{Activities: toActivities(spec.Activities), Count: spec.Count}
		if spec.Activity != "" {
			tc.Activities = append([]ActivityType{ActivityType(spec.Activity)}, tc.Activities...)
		}
		if spec.Before != "" {
			clk, err := ParseClock(spec.Before)
			if err != nil {
				return nil, &InputError{Field: "condition.before", Value: spec.Before, Reason: err.Error()}
			}
			tc.Before = &clk
		}
		if spec.After != "" {
			clk, err := ParseClock(spec.After)
			if err != nil {
				return nil, &InputError{Field: "condition.after", Value: spec.After, Reason: err.Error()}
			}
			tc.After = &clk
		}
		c = tc
	case ConditionShare:
		c = ShareCondition{Count: spec.Count}
	case ConditionEncourage:
		c = EncourageCondition{Count: spec.Count}
	case ConditionMilestone:
		c = MilestoneCondition{Number: spec.Number}
	case ConditionComeback:
		c = ComebackCondition{DaysAway: spec.DaysAway}
	case ConditionWeekend:
		c = WeekendCondition{Complete: spec.Complete}
	case ConditionMood:
		c = MoodCondition{Improvement: spec.Improvement, Count: spec.Count}
	case ConditionComplete, ConditionGraduate:
		c = CompletionCondition{Graduate: spec.Type == ConditionGraduate, Activity: ActivityType(spec.Activity)}
	default:
		return nil, &InputError{Field: "condition.type", Value: string(spec.Type), Reason: "unknown condition kind"}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("clock %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("clock %q has invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("clock %q has invalid minute", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func positive(field string, n int) error {
	if n < 1 {
		return &InputError{Field: field, Value: strconv.Itoa(n), Reason: "must be at least 1"}
	}
	return nil
}

func validActivity(field string, a ActivityType) error {
	if !a.Valid() {
		return &InputError{Field: field, Value: string(a), Reason: "unknown activity type"}
	}
	return nil
}

func toActivities(in []string) []ActivityType {
	if len(in) == 0 {
		return nil
	}
	out := make([]ActivityType, len(in))
	for i, s := range in {
		out[i] = ActivityType(s)
	}
	return out
}

func activityStrings(in []ActivityType) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = string(a)
	}
	return out
}
