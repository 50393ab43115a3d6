package config

import (
	"context"

	"journeykit/core"
	"journeykit/points"
)

// Build turns the section into a validated economy.
func (e EconomyConfig) Build() (points.Economy, error) {
	tiers := e.Tiers
	if len(tiers) == 0 {
		tiers = points.DefaultTiers()
	}
	base := make(points.BasePoints, len(e.BasePoints))
	for k, v := range e.BasePoints {
		base[core.ActivityType(k)] = v
	}
	cutoff := points.DefaultEarlyBirdCutoff
	if e.EarlyBirdCutoff != "" {
		c, err := core.ParseClock(e.EarlyBirdCutoff)
		if err != nil {
			return points.Economy{}, &core.InputError{Field: "early_bird_cutoff", Value: e.EarlyBirdCutoff, Reason: err.Error()}
		}
		cutoff = c
	}
	return points.NewEconomy(tiers, base, e.ComboBonus, e.EarlyBirdBonus, cutoff)
}

// LoadEconomy lets the config section serve as an engine.EconomySource.
func (e EconomyConfig) LoadEconomy(context.Context) (points.Economy, error) {
	return e.Build()
}
