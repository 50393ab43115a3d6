package points

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"journeykit/core"
)

// Factor is a multiplier in fixed-point hundredths: 120 means 1.2x.
// Integer factors keep floor(base x multiplier) exact.
type Factor int

// FactorOf converts a decimal multiplier such as 1.5 into a Factor.
func FactorOf(m float64) Factor { return Factor(math.Round(m * 100)) }

// Float returns the decimal multiplier.
func (f Factor) Float() float64 { return float64(f) / 100 }

// Apply scales base, truncating toward zero.
func (f Factor) Apply(base int) int { return base * int(f) / 100 }

// Factors are written as decimals ("1.5") in config files and tables.

func (f Factor) MarshalJSON() ([]byte, error) { return json.Marshal(f.Float()) }

func (f *Factor) UnmarshalJSON(data []byte) error {
	var m float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("multiplier: %w", err)
	}
	*f = FactorOf(m)
	return nil
}

func (f Factor) MarshalYAML() (any, error) { return f.Float(), nil }

func (f *Factor) UnmarshalYAML(n *yaml.Node) error {
	var m float64
	if err := n.Decode(&m); err != nil {
		return fmt.Errorf("multiplier: %w", err)
	}
	*f = FactorOf(m)
	return nil
}

// Tier is one streak range [Min, Max) of the multiplier table. A zero Max
// means the tier has no upper bound.
type Tier struct {
	Min        int    `json:"min" yaml:"min"`
	Max        int    `json:"max,omitempty" yaml:"max,omitempty"`
	Multiplier Factor `json:"multiplier" yaml:"multiplier"`
	Label      string `json:"label" yaml:"label"`
}

// Contains reports whether streak falls in the tier.
func (t Tier) Contains(streak int) bool {
	return streak >= t.Min && (t.Max == 0 || streak < t.Max)
}

// MultiplierTable maps streak lengths to multipliers. Its tiers partition
// [0, inf) with no gaps or overlaps.
type MultiplierTable struct {
	tiers []Tier
}

// DefaultTiers returns the stock streak tiers.
func DefaultTiers() []Tier {
	return []Tier{
		{Min: 0, Max: 7, Multiplier: 100, Label: "Streak 0-6"},
		{Min: 7, Max: 14, Multiplier: 120, Label: "Streak 7-13"},
		{Min: 14, Max: 30, Multiplier: 150, Label: "Streak 14-29"},
		{Min: 30, Multiplier: 200, Label: "Streak 30+"},
	}
}

// DefaultMultiplierTable returns the table built from DefaultTiers.
func DefaultMultiplierTable() *MultiplierTable {
	t, err := NewMultiplierTable(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return t
}

// NewMultiplierTable validates tiers and returns a table. Tiers may be given
// in any order.
func NewMultiplierTable(tiers []Tier) (*MultiplierTable, error) {
	if len(tiers) == 0 {
		return nil, &core.InputError{Field: "tiers", Reason: "at least one tier is required"}
	}
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	if sorted[0].Min != 0 {
		return nil, tierErr(0, "min", sorted[0].Min, "first tier must start at 0")
	}
	for i, t := range sorted {
		if t.Multiplier <= 0 {
			return nil, tierErr(i, "multiplier", int(t.Multiplier), "must be positive")
		}
		if t.Label == "" {
			return nil, &core.InputError{Field: fmt.Sprintf("tiers[%d].label", i), Reason: "must not be empty"}
		}
		last := i == len(sorted)-1
		if t.Max == 0 {
			if !last {
				return nil, tierErr(i, "max", t.Max, "only the last tier may be unbounded")
			}
			continue
		}
		if t.Max <= t.Min {
			return nil, tierErr(i, "max", t.Max, "must be greater than min")
		}
		if last {
			return nil, tierErr(i, "max", t.Max, "last tier must be unbounded")
		}
		if next := sorted[i+1].Min; next != t.Max {
			return nil, tierErr(i+1, "min", next, fmt.Sprintf("must equal previous max %d", t.Max))
		}
	}
	return &MultiplierTable{tiers: sorted}, nil
}

// TierFor returns the tier containing streak. Negative streaks are treated
// as 0.
func (m *MultiplierTable) TierFor(streak int) Tier {
	if streak < 0 {
		streak = 0
	}
	// first tier whose upper bound lies above streak
	i := sort.Search(len(m.tiers), func(i int) bool {
		t := m.tiers[i]
		return t.Max == 0 || streak < t.Max
	})
	return m.tiers[i]
}

// Tiers returns a copy of the table's tiers in ascending order.
func (m *MultiplierTable) Tiers() []Tier {
	return append([]Tier(nil), m.tiers...)
}

func tierErr(i int, field string, v int, reason string) error {
	return &core.InputError{Field: fmt.Sprintf("tiers[%d].%s", i, field), Value: strconv.Itoa(v), Reason: reason}
}
