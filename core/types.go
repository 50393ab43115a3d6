package core

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the gamification domain.
type UserID string

// SessionID identifies a journey session (a program run) a user takes part in.
type SessionID string

// BadgeKey is the stable identifier of a badge definition.
type BadgeKey string

// ActivityType enumerates the activities that earn points.
type ActivityType string

const (
	ActivityMorningJournal ActivityType = "morning_journal"
	ActivityEveningJournal ActivityType = "evening_journal"
	ActivityWeeklyJournal  ActivityType = "weekly_journal"
	ActivityDGA            ActivityType = "dga"
	ActivityVision         ActivityType = "vision"
	ActivityBadgeReward    ActivityType = "badge_reward"
)

// AllActivityTypes lists every activity type in canonical order.
func AllActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityMorningJournal,
		ActivityEveningJournal,
		ActivityWeeklyJournal,
		ActivityDGA,
		ActivityVision,
		ActivityBadgeReward,
	}
}

// Valid reports whether a is one of the known activity types.
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityMorningJournal, ActivityEveningJournal, ActivityWeeklyJournal,
		ActivityDGA, ActivityVision, ActivityBadgeReward:
		return true
	}
	return false
}

// ParseActivityType converts s into an ActivityType or fails with an InputError.
func ParseActivityType(s string) (ActivityType, error) {
	a := ActivityType(strings.TrimSpace(s))
	if !a.Valid() {
		return "", &InputError{Field: "activity_type", Value: s, Reason: "unknown activity type"}
	}
	return a, nil
}

// StreakKind names one of the streak counters kept by the persistence layer.
type StreakKind string

const (
	StreakMorning   StreakKind = "morning"
	StreakEvening   StreakKind = "evening"
	StreakGratitude StreakKind = "gratitude"
	StreakAll       StreakKind = "all"
	StreakWeekly    StreakKind = "weekly"
)

// Valid reports whether k is a known streak counter.
func (k StreakKind) Valid() bool {
	switch k {
	case StreakMorning, StreakEvening, StreakGratitude, StreakAll, StreakWeekly:
		return true
	}
	return false
}

// StreakKindFor returns the counter whose value drives the multiplier of a.
func StreakKindFor(a ActivityType) StreakKind {
	switch a {
	case ActivityMorningJournal:
		return StreakMorning
	case ActivityEveningJournal:
		return StreakEvening
	case ActivityDGA:
		return StreakGratitude
	case ActivityWeeklyJournal:
		return StreakWeekly
	default:
		return StreakAll
	}
}

// Rarity is a badge's five-level scarcity tier.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// AllRarities lists every rarity from most to least common.
func AllRarities() []Rarity {
	return []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}
}

// Valid reports whether r is one of the five rarities.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Priority returns the celebration priority derived from the rarity.
// Badge.Validate rejects unknown rarities, so the panic is unreachable for
// validated definitions.
func (r Rarity) Priority() int {
	switch r {
	case RarityLegendary:
		return 100
	case RarityEpic:
		return 80
	case RarityRare:
		return 60
	case RarityUncommon:
		return 40
	case RarityCommon:
		return 20
	}
	panic("core: priority requested for unvalidated rarity " + string(r))
}

// Badge is an immutable badge definition.
type Badge struct {
	Key          BadgeKey
	Name         string
	Description  string
	Icon         string
	Category     string
	Rarity       Rarity
	Condition    UnlockCondition
	PointsReward int
	Hidden       bool
	SortOrder    int
}

// Validate checks that the definition can be evaluated and awarded.
func (b Badge) Validate() error {
	if err := ValidateBadgeKey(b.Key); err != nil {
		return &InputError{Field: "badge.key", Value: string(b.Key), Reason: err.Error()}
	}
	if !b.Rarity.Valid() {
		return &InputError{Field: "badge.rarity", Value: string(b.Rarity), Reason: "unknown rarity", Badge: b.Key}
	}
	if b.PointsReward < 0 {
		return &InputError{Field: "badge.points_reward", Reason: "must not be negative", Badge: b.Key}
	}
	if b.Condition == nil {
		return &InputError{Field: "badge.condition", Reason: "missing unlock condition", Badge: b.Key}
	}
	if err := b.Condition.Validate(); err != nil {
		var ie *InputError
		if errors.As(err, &ie) && ie.Badge == "" {
			cp := *ie
			cp.Badge = b.Key
			return &cp
		}
		return err
	}
	return nil
}

// UserBadge records that a user unlocked a badge within a session.
type UserBadge struct {
	UserID     UserID    `json:"user_id"`
	SessionID  SessionID `json:"session_id"`
	BadgeKey   BadgeKey  `json:"badge_key"`
	UnlockedAt time.Time `json:"unlocked_at"`
	Showcased  bool      `json:"showcased"`
	Seen       bool      `json:"seen"`
	IsNew      bool      `json:"is_new"`
}

// PointsTransaction is one ledger row crediting points to a user.
type PointsTransaction struct {
	ID        string       `json:"id"`
	UserID    UserID       `json:"user_id"`
	SessionID SessionID    `json:"session_id"`
	Activity  ActivityType `json:"activity_type"`
	Points    int          `json:"points"`
	Reference string       `json:"reference,omitempty"`
	Modifiers []string     `json:"modifiers,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// BadgeGrant pairs a badge row with the points it credits when inserted.
type BadgeGrant struct {
	Badge  UserBadge `json:"badge"`
	Points int       `json:"points"`
}

// Commit is everything one activity completion persists. Stores must apply
// it atomically and skip grants for badges that are already owned.
type Commit struct {
	UserID    UserID            `json:"user_id"`
	SessionID SessionID         `json:"session_id"`
	Activity  PointsTransaction `json:"activity"`
	Grants    []BadgeGrant      `json:"grants,omitempty"`
	// RewardID is the id of the badge_reward row written when any grant is
	// inserted.
	RewardID string `json:"reward_id,omitempty"`
}

// Validate checks that the commit is addressed consistently.
func (c Commit) Validate() error {
	if c.UserID == "" || c.SessionID == "" {
		return &InputError{Field: "commit", Reason: "user and session are required"}
	}
	if c.Activity.UserID != c.UserID || c.Activity.SessionID != c.SessionID {
		return &InputError{Field: "commit.activity", Reason: "transaction addressed to another user or session"}
	}
	if c.Activity.ID == "" {
		return &InputError{Field: "commit.activity.id", Reason: "missing transaction id"}
	}
	if len(c.Grants) > 0 && c.RewardID == "" {
		return &InputError{Field: "commit.reward_id", Reason: "grants need a reward transaction id"}
	}
	return nil
}

// RewardTransaction is the badge_reward row crediting the inserted grants.
func (c Commit) RewardTransaction(awarded []BadgeKey, points int) PointsTransaction {
	keys := make([]string, len(awarded))
	for i, k := range awarded {
		keys[i] = string(k)
	}
	return PointsTransaction{
		ID:        c.RewardID,
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Activity:  ActivityBadgeReward,
		Points:    points,
		Reference: strings.Join(keys, ","),
		CreatedAt: c.Activity.CreatedAt,
	}
}

// BadgePoints sums the points of every grant in the commit.
func (c Commit) BadgePoints() int {
	sum := 0
	for _, g := range c.Grants {
		sum += g.Points
	}
	return sum
}

// Receipt describes what a store actually wrote for a Commit.
type Receipt struct {
	Total        int64      `json:"total"`
	Awarded      []BadgeKey `json:"awarded"`
	BadgePoints  int        `json:"badge_points"`
	Transactions []string   `json:"transactions"`
}

// UserState is a snapshot of a user's gamification state for one session.
// Implementations should return deep copies to maintain immutability guarantees.
type UserState struct {
	UserID       UserID                 `json:"user_id"`
	SessionID    SessionID              `json:"session_id"`
	TotalPoints  int64                  `json:"total_points"`
	Badges       map[BadgeKey]UserBadge `json:"badges"`
	Transactions []PointsTransaction    `json:"transactions"`
	Updated      time.Time              `json:"updated"`
}

// NewUserState returns an empty state for the given user and session.
func NewUserState(user UserID, session SessionID) UserState {
	return UserState{
		UserID:    user,
		SessionID: session,
		Badges:    map[BadgeKey]UserBadge{},
		Updated:   time.Now().UTC(),
	}
}

// Clone returns a deep copy of the state to uphold immutability.
func (s UserState) Clone() UserState {
	cp := UserState{
		UserID:       s.UserID,
		SessionID:    s.SessionID,
		TotalPoints:  s.TotalPoints,
		Badges:       make(map[BadgeKey]UserBadge, len(s.Badges)),
		Transactions: make([]PointsTransaction, len(s.Transactions)),
		Updated:      s.Updated,
	}
	for k, v := range s.Badges {
		cp.Badges[k] = v
	}
	for i, tx := range s.Transactions {
		tx.Modifiers = append([]string(nil), tx.Modifiers...)
		cp.Transactions[i] = tx
	}
	return cp
}

// MaxStateTransactions bounds the recent transactions kept on a UserState.
const MaxStateTransactions = 100

// Apply writes c into s, skipping grants for badges s already holds. On
// error s is left unchanged.
func (s *UserState) Apply(c Commit) (Receipt, error) {
	var (
		awarded []BadgeKey
		granted []UserBadge
		bonus   int
	)
	for _, g := range c.Grants {
		if _, ok := s.Badges[g.Badge.BadgeKey]; ok {
			continue
		}
		dup := false
		for _, k := range awarded {
			if k == g.Badge.BadgeKey {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		awarded = append(awarded, g.Badge.BadgeKey)
		granted = append(granted, g.Badge)
		bonus += g.Points
	}
	total, err := AddSafe(s.TotalPoints, int64(c.Activity.Points))
	if err != nil {
		return Receipt{}, err
	}
	if total, err = AddSafe(total, int64(bonus)); err != nil {
		return Receipt{}, err
	}

	if s.Badges == nil {
		s.Badges = map[BadgeKey]UserBadge{}
	}
	for _, b := range granted {
		s.Badges[b.BadgeKey] = b
	}
	rec := Receipt{Total: total, Awarded: awarded, BadgePoints: bonus, Transactions: []string{c.Activity.ID}}
	s.Transactions = append(s.Transactions, c.Activity)
	if len(awarded) > 0 {
		rtx := c.RewardTransaction(awarded, bonus)
		s.Transactions = append(s.Transactions, rtx)
		rec.Transactions = append(rec.Transactions, rtx.ID)
	}
	if n := len(s.Transactions); n > MaxStateTransactions {
		s.Transactions = append([]PointsTransaction(nil), s.Transactions[n-MaxStateTransactions:]...)
	}
	s.TotalPoints = total
	s.Updated = time.Now().UTC()
	return rec, nil
}

// MarkSeen flags the given badges as seen and reports how many changed.
// An empty key list marks every badge.
func (s *UserState) MarkSeen(keys []BadgeKey) int {
	changed := 0
	mark := func(k BadgeKey) {
		if b, ok := s.Badges[k]; ok && (!b.Seen || b.IsNew) {
			b.Seen, b.IsNew = true, false
			s.Badges[k] = b
			changed++
		}
	}
	if len(keys) == 0 {
		for k := range s.Badges {
			mark(k)
		}
	} else {
		for _, k := range keys {
			mark(k)
		}
	}
	if changed > 0 {
		s.Updated = time.Now().UTC()
	}
	return changed
}

// Unseen returns the badges not yet acknowledged, oldest unlock first.
func (s UserState) Unseen() []UserBadge {
	var out []UserBadge
	for _, b := range s.Badges {
		if !b.Seen {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].BadgeKey < out[j].BadgeKey
	})
	return out
}

// Owned returns the set of badge keys held in the state.
func (s UserState) Owned() map[BadgeKey]struct{} {
	out := make(map[BadgeKey]struct{}, len(s.Badges))
	for k := range s.Badges {
		out[k] = struct{}{}
	}
	return out
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", &InputError{Field: "user_id", Reason: "empty user id"}
	}
	return UserID(strings.ToLower(s)), nil
}

// NormalizeSessionID trims session identifiers. Session ids are case sensitive.
func NormalizeSessionID(id SessionID) (SessionID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", &InputError{Field: "session_id", Reason: "empty session id"}
	}
	return SessionID(s), nil
}

// ValidateBadgeKey ensures non-empty badge key with simple charset check.
func ValidateBadgeKey(b BadgeKey) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return errors.New("empty badge key")
	}
	// simple check: alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge key")
	}
	return nil
}
