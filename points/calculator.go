package points

import (
	"fmt"

	"journeykit/core"
)

// Input is one activity completion to score. BasePoints is taken as given;
// ForActivity fills it from the economy.
type Input struct {
	Activity    core.ActivityType `json:"activity_type"`
	BasePoints  int               `json:"base_points"`
	Streak      int               `json:"streak"`
	HasCombo    bool              `json:"has_combo"`
	IsEarlyBird bool              `json:"is_early_bird"`
}

// Result is the scored completion with an audit trail of the modifiers that
// applied, in application order.
type Result struct {
	BasePoints         int      `json:"base_points"`
	Multiplier         float64  `json:"multiplier"`
	Tier               string   `json:"tier"`
	BonusPoints        int      `json:"bonus_points"`
	FinalPoints        int      `json:"final_points"`
	AppliedMultipliers []string `json:"applied_multipliers"`
}

// Calculator scores activities against a fixed Economy. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	econ Economy
}

func NewCalculator(econ Economy) (*Calculator, error) {
	if err := econ.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{econ: econ.clone()}, nil
}

// DefaultCalculator returns a calculator over DefaultEconomy.
func DefaultCalculator() *Calculator {
	return &Calculator{econ: DefaultEconomy()}
}

// Economy returns a copy of the calculator's economy.
func (c *Calculator) Economy() Economy { return c.econ.clone() }

// Calculate scores in. It never fails: bonuses are added after the tier
// multiplier and the scaled base is truncated.
func (c *Calculator) Calculate(in Input) Result {
	tier := c.econ.Tiers.TierFor(in.Streak)
	scaled := tier.Multiplier.Apply(in.BasePoints)

	res := Result{
		BasePoints:         in.BasePoints,
		Multiplier:         tier.Multiplier.Float(),
		Tier:               tier.Label,
		AppliedMultipliers: []string{},
	}
	if tier.Multiplier != 100 {
		res.AppliedMultipliers = append(res.AppliedMultipliers, tier.Label)
	}
	if in.HasCombo {
		res.BonusPoints += c.econ.ComboBonus
		res.AppliedMultipliers = append(res.AppliedMultipliers, fmt.Sprintf("Daily Combo (+%d)", c.econ.ComboBonus))
	}
	if in.IsEarlyBird && in.Activity == core.ActivityMorningJournal {
		res.BonusPoints += c.econ.EarlyBirdBonus
		res.AppliedMultipliers = append(res.AppliedMultipliers, fmt.Sprintf("Early Bird (+%d)", c.econ.EarlyBirdBonus))
	}
	res.FinalPoints = scaled + res.BonusPoints
	return res
}

// ForActivity scores activity with its canonical base points.
func (c *Calculator) ForActivity(activity core.ActivityType, streak int, combo, earlyBird bool) (Result, error) {
	base, err := c.BaseFor(activity)
	if err != nil {
		return Result{}, err
	}
	return c.Calculate(Input{
		Activity:    activity,
		BasePoints:  base,
		Streak:      streak,
		HasCombo:    combo,
		IsEarlyBird: earlyBird,
	}), nil
}

// BaseFor returns the base points of activity.
func (c *Calculator) BaseFor(activity core.ActivityType) (int, error) {
	if !activity.Valid() {
		return 0, &core.InputError{Field: "activity_type", Value: string(activity), Reason: "unknown activity type"}
	}
	return c.econ.Base[activity], nil
}

// TierFor exposes the calculator's tier lookup.
func (c *Calculator) TierFor(streak int) Tier { return c.econ.Tiers.TierFor(streak) }
