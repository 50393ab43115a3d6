package engine

import (
	"time"

	"github.com/google/uuid"

	"journeykit/core"
)

// AwardResult is what the coordinator decided to grant. Nothing in it has
// been persisted.
type AwardResult struct {
	NewBadges         []core.UserBadge        `json:"new_badges"`
	PointsAwarded     int                     `json:"points_awarded"`
	CelebrationEvents []core.CelebrationEvent `json:"celebration_events"`

	badges []core.Badge
}

// Badges returns the definitions behind NewBadges, in the same order.
func (r AwardResult) Badges() []core.Badge { return append([]core.Badge(nil), r.badges...) }

// Keys returns the keys of the new badges.
func (r AwardResult) Keys() []core.BadgeKey {
	out := make([]core.BadgeKey, len(r.NewBadges))
	for i, b := range r.NewBadges {
		out[i] = b.BadgeKey
	}
	return out
}

// Grants renders the result as storage grants.
func (r AwardResult) Grants() []core.BadgeGrant {
	out := make([]core.BadgeGrant, len(r.NewBadges))
	for i, ub := range r.NewBadges {
		out[i] = core.BadgeGrant{Badge: ub, Points: r.badges[i].PointsReward}
	}
	return out
}

// Only narrows the result to the given keys, typically the ones storage
// actually inserted.
func (r AwardResult) Only(keys []core.BadgeKey) AwardResult {
	keep := make(map[core.BadgeKey]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	var out AwardResult
	for i, ub := range r.NewBadges {
		if !keep[ub.BadgeKey] {
			continue
		}
		out.NewBadges = append(out.NewBadges, ub)
		out.badges = append(out.badges, r.badges[i])
		out.CelebrationEvents = append(out.CelebrationEvents, r.CelebrationEvents[i])
		out.PointsAwarded += r.badges[i].PointsReward
	}
	return out
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock overrides the unlock timestamp source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator overrides celebration ids.
func WithIDGenerator(next func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newID = next }
}

// Coordinator turns newly satisfied badges into award records, a points sum
// and badge celebrations. It is pure apart from its clock and ids.
type Coordinator struct {
	now   func() time.Time
	newID func() string
}

func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Award builds one UserBadge and one celebration per distinct badge in newly.
func (c *Coordinator) Award(newly []core.Badge, ctx core.BadgeCheckContext) AwardResult {
	now := c.now()
	res := AwardResult{NewBadges: []core.UserBadge{}, CelebrationEvents: []core.CelebrationEvent{}}
	seen := make(map[core.BadgeKey]bool, len(newly))
	for _, b := range newly {
		if seen[b.Key] {
			continue
		}
		seen[b.Key] = true
		res.NewBadges = append(res.NewBadges, core.UserBadge{
			UserID:     ctx.UserID,
			SessionID:  ctx.SessionID,
			BadgeKey:   b.Key,
			UnlockedAt: now,
			IsNew:      true,
		})
		res.CelebrationEvents = append(res.CelebrationEvents, core.CelebrationEvent{
			ID:        c.newID(),
			Type:      core.CelebrationBadge,
			Priority:  b.Rarity.Priority(),
			Data:      core.BadgeCelebrationData(b),
			CreatedAt: now,
		})
		res.badges = append(res.badges, b)
		res.PointsAwarded += b.PointsReward
	}
	return res
}
