package core

import (
	"encoding/json"
	"errors"
)

// BadgeSpec is the serialized form of a Badge used by catalogs and the API.
type BadgeSpec struct {
	Key          BadgeKey      `json:"key" yaml:"key"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description" yaml:"description"`
	Icon         string        `json:"icon" yaml:"icon"`
	Category     string        `json:"category" yaml:"category"`
	Rarity       Rarity        `json:"rarity" yaml:"rarity"`
	Condition    ConditionSpec `json:"condition" yaml:"condition"`
	PointsReward int           `json:"points_reward" yaml:"points_reward"`
	Hidden       bool          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	SortOrder    int           `json:"sort_order" yaml:"sort_order"`
}

// Build decodes the condition and validates the resulting badge.
func (s BadgeSpec) Build() (Badge, error) {
	cond, err := DecodeCondition(s.Condition)
	if err != nil {
		var ie *InputError
		if errors.As(err, &ie) {
			cp := *ie
			cp.Badge = s.Key
			return Badge{}, &cp
		}
		return Badge{}, err
	}
	b := Badge{
		Key:          s.Key,
		Name:         s.Name,
		Description:  s.Description,
		Icon:         s.Icon,
		Category:     s.Category,
		Rarity:       s.Rarity,
		Condition:    cond,
		PointsReward: s.PointsReward,
		Hidden:       s.Hidden,
		SortOrder:    s.SortOrder,
	}
	if err := b.Validate(); err != nil {
		return Badge{}, err
	}
	return b, nil
}

// Spec returns the serialized form of the badge.
func (b Badge) Spec() BadgeSpec {
	s := BadgeSpec{
		Key:          b.Key,
		Name:         b.Name,
		Description:  b.Description,
		Icon:         b.Icon,
		Category:     b.Category,
		Rarity:       b.Rarity,
		PointsReward: b.PointsReward,
		Hidden:       b.Hidden,
		SortOrder:    b.SortOrder,
	}
	if b.Condition != nil {
		s.Condition = b.Condition.Spec()
	}
	return s
}

func (b Badge) MarshalJSON() ([]byte, error) { return json.Marshal(b.Spec()) }

func (b *Badge) UnmarshalJSON(data []byte) error {
	var s BadgeSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	built, err := s.Build()
	if err != nil {
		return err
	}
	*b = built
	return nil
}
