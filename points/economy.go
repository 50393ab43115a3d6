package points

import (
	"fmt"
	"strconv"
	"time"

	"journeykit/core"
)

// BasePoints maps each activity to the points it is worth before
// multipliers and bonuses.
type BasePoints map[core.ActivityType]int

// DefaultBasePoints returns the canonical base point table.
func DefaultBasePoints() BasePoints {
	return BasePoints{
		core.ActivityMorningJournal: 10,
		core.ActivityEveningJournal: 10,
		core.ActivityWeeklyJournal:  25,
		core.ActivityDGA:            15,
		core.ActivityVision:         20,
		core.ActivityBadgeReward:    0,
	}
}

const (
	DefaultComboBonus     = 10
	DefaultEarlyBirdBonus = 5
)

// DefaultEarlyBirdCutoff is the local time a morning journal must beat to
// count as early.
var DefaultEarlyBirdCutoff = core.Clock{Hour: 8}

// Economy is the tunable reward configuration. Build it with NewEconomy or
// DefaultEconomy; the calculator copies it so later edits have no effect.
type Economy struct {
	Tiers           *MultiplierTable
	Base            BasePoints
	ComboBonus      int
	EarlyBirdBonus  int
	EarlyBirdCutoff core.Clock
}

// DefaultEconomy returns the stock tiers, base points and bonuses.
func DefaultEconomy() Economy {
	return Economy{
		Tiers:           DefaultMultiplierTable(),
		Base:            DefaultBasePoints(),
		ComboBonus:      DefaultComboBonus,
		EarlyBirdBonus:  DefaultEarlyBirdBonus,
		EarlyBirdCutoff: DefaultEarlyBirdCutoff,
	}
}

// NewEconomy validates the pieces of an economy. Activities missing from
// base fall back to the default table so a partial override stays usable.
func NewEconomy(tiers []Tier, base BasePoints, combo, earlyBird int, cutoff core.Clock) (Economy, error) {
	table, err := NewMultiplierTable(tiers)
	if err != nil {
		return Economy{}, err
	}
	merged := DefaultBasePoints()
	for a, v := range base {
		if !a.Valid() {
			return Economy{}, &core.InputError{Field: "base_points", Value: string(a), Reason: "unknown activity type"}
		}
		if v < 0 {
			return Economy{}, &core.InputError{Field: fmt.Sprintf("base_points.%s", a), Value: strconv.Itoa(v), Reason: "must not be negative"}
		}
		merged[a] = v
	}
	if combo < 0 {
		return Economy{}, &core.InputError{Field: "combo_bonus", Value: strconv.Itoa(combo), Reason: "must not be negative"}
	}
	if earlyBird < 0 {
		return Economy{}, &core.InputError{Field: "early_bird_bonus", Value: strconv.Itoa(earlyBird), Reason: "must not be negative"}
	}
	return Economy{
		Tiers:           table,
		Base:            merged,
		ComboBonus:      combo,
		EarlyBirdBonus:  earlyBird,
		EarlyBirdCutoff: cutoff,
	}, nil
}

// Validate reports whether e is complete enough to calculate with.
func (e Economy) Validate() error {
	if e.Tiers == nil {
		return &core.InputError{Field: "tiers", Reason: "multiplier table is required"}
	}
	for _, a := range core.AllActivityTypes() {
		if _, ok := e.Base[a]; !ok {
			return &core.InputError{Field: "base_points", Value: string(a), Reason: "missing base points"}
		}
	}
	if e.ComboBonus < 0 || e.EarlyBirdBonus < 0 {
		return &core.InputError{Field: "bonus", Reason: "bonuses must not be negative"}
	}
	return nil
}

// IsEarlyBird reports whether a completion of activity at the given instant
// beats the early-bird cutoff in loc. Only morning journals qualify.
func (e Economy) IsEarlyBird(activity core.ActivityType, at time.Time, loc *time.Location) bool {
	if activity != core.ActivityMorningJournal {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	return core.Clock{Hour: local.Hour(), Minute: local.Minute()}.Minutes() < e.EarlyBirdCutoff.Minutes()
}

func (e Economy) clone() Economy {
	base := make(BasePoints, len(e.Base))
	for k, v := range e.Base {
		base[k] = v
	}
	e.Base = base
	return e
}
