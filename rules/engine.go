// Package rules evaluates badge unlock conditions against a context snapshot.
package rules

import (
	"sort"
	"time"

	"journeykit/core"
)

// Engine evaluates badge definitions. It is stateless; one Engine may be
// shared by any number of goroutines.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Evaluate returns the definitions in defs whose condition holds for ctx and
// whose key is not in owned, in definition order. Every non-owned badge is
// checked on every call. A malformed context or definition aborts the call
// with a *core.InputError.
func (e *Engine) Evaluate(defs []core.Badge, ctx core.BadgeCheckContext, owned map[core.BadgeKey]struct{}) ([]core.Badge, error) {
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	ev, err := newEvaluator(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Badge
	for _, b := range defs {
		if _, ok := owned[b.Key]; ok {
			continue
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if b.Condition.Accept(ev) {
			out = append(out, b)
		}
	}
	return out, nil
}

// evaluator answers each condition variant for one snapshot.
type evaluator struct {
	ctx   core.BadgeCheckContext
	loc   *time.Location
	local time.Time
}

var _ core.ConditionVisitor = (*evaluator)(nil)

func newEvaluator(ctx core.BadgeCheckContext) (*evaluator, error) {
	loc, err := ctx.Location()
	if err != nil {
		return nil, err
	}
	return &evaluator{ctx: ctx, loc: loc, local: ctx.Timestamp.In(loc)}, nil
}

func (e *evaluator) VisitStreak(c core.StreakCondition) bool {
	v, ok := e.ctx.Streak(c.Streak)
	return ok && v >= c.Count
}

func (e *evaluator) VisitFirst(c core.FirstCondition) bool {
	return e.ctx.Totals[c.Activity] == 1
}

func (e *evaluator) VisitCombo(c core.ComboCondition) bool {
	done := 0
	seen := map[core.ActivityType]bool{}
	for _, a := range c.Activities {
		if seen[a] {
			continue
		}
		seen[a] = true
		if e.ctx.CompletedToday[a] {
			done++
		}
	}
	return done >= c.Required()
}

func (e *evaluator) VisitTime(c core.TimeCondition) bool {
	if !c.Lists(e.ctx.Activity) || !c.Contains(clockOf(e.local)) {
		return false
	}
	need := c.Required()
	if need == 1 {
		return true
	}
	// the triggering completion counts once even if the caller also listed it
	hits := 1
	for _, rc := range e.ctx.RecentCompletions {
		if rc.At.Equal(e.ctx.Timestamp) && rc.Activity == e.ctx.Activity {
			continue
		}
		if c.Lists(rc.Activity) && c.Contains(clockOf(rc.At.In(e.loc))) {
			hits++
		}
	}
	return hits >= need
}

func (e *evaluator) VisitShare(c core.ShareCondition) bool {
	return e.ctx.Social.Shares >= c.Count
}

func (e *evaluator) VisitEncourage(c core.EncourageCondition) bool {
	return e.ctx.Social.Encouragements >= c.Count
}

func (e *evaluator) VisitMilestone(c core.MilestoneCondition) bool {
	if e.ctx.Milestone != nil {
		return *e.ctx.Milestone == c.Number
	}
	return e.ctx.DayInJourney == c.Number
}

func (e *evaluator) VisitComeback(c core.ComebackCondition) bool {
	if e.ctx.LastJournalDate == nil {
		return false
	}
	return calendarDays(e.ctx.LastJournalDate.In(e.loc), e.local) >= c.DaysAway
}

func (e *evaluator) VisitWeekend(c core.WeekendCondition) bool {
	w := e.ctx.Weekend
	if c.Complete {
		return w.Saturday && w.Sunday
	}
	return w.Saturday || w.Sunday
}

func (e *evaluator) VisitMood(c core.MoodCondition) bool {
	if len(e.ctx.MoodHistory) < c.Count {
		return false
	}
	hist := append([]core.MoodEntry(nil), e.ctx.MoodHistory...)
	sort.SliceStable(hist, func(i, j int) bool { return hist[i].Date.Before(hist[j].Date) })
	last := hist[len(hist)-c.Count:]
	if !c.Improvement {
		return true
	}
	for i := 1; i < len(last); i++ {
		if last[i].Score < last[i-1].Score {
			return false
		}
	}
	return last[len(last)-1].Score > last[0].Score
}

func (e *evaluator) VisitCompletion(c core.CompletionCondition) bool {
	if c.Activity != "" {
		return e.ctx.Program.Activities[c.Activity]
	}
	return e.ctx.Program.Complete
}

func clockOf(t time.Time) core.Clock {
	return core.Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// calendarDays counts midnights crossed going from a to b, both already in
// the user's location.
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
