package engine

import (
	"context"

	"journeykit/core"
	"journeykit/points"
)

// Storage abstracts persistence of points and awarded badges, keyed by
// (user, session).
type Storage interface {
	// OwnedBadges returns the keys the user already holds in the session.
	OwnedBadges(ctx context.Context, user core.UserID, session core.SessionID) (map[core.BadgeKey]struct{}, error)
	// Commit persists the activity transaction and the badge grants in one
	// atomic step. Grants for badges already held are skipped and reported
	// as not awarded in the receipt.
	Commit(ctx context.Context, c core.Commit) (core.Receipt, error)
	GetState(ctx context.Context, user core.UserID, session core.SessionID) (core.UserState, error)
	// MarkSeen flags badges as seen; no keys means all of them.
	MarkSeen(ctx context.Context, user core.UserID, session core.SessionID, keys []core.BadgeKey) (int, error)
}

// RuleEngine evaluates badge definitions against a snapshot.
type RuleEngine interface {
	Evaluate(defs []core.Badge, ctx core.BadgeCheckContext, owned map[core.BadgeKey]struct{}) ([]core.Badge, error)
}

// BadgeCatalog supplies the badge definitions in force.
type BadgeCatalog interface {
	Badges() []core.Badge
}

// EconomySource loads the reward economy from outside the process, such as
// a database table operators can retune.
type EconomySource interface {
	LoadEconomy(ctx context.Context) (points.Economy, error)
}

// StaticEconomy is an EconomySource that always returns the same economy.
type StaticEconomy points.Economy

func (s StaticEconomy) LoadEconomy(context.Context) (points.Economy, error) {
	return points.Economy(s), nil
}
