package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventPointsAdded       EventType = "points_added"
	EventBadgeAwarded      EventType = "badge_awarded"
	EventCelebrationQueued EventType = "celebration_queued"
	EventEvaluationFailed  EventType = "evaluation_failed"
)

// Event represents an immutable domain event.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	UserID    UserID         `json:"user_id"`
	SessionID SessionID      `json:"session_id,omitempty"`
	Activity  ActivityType   `json:"activity_type,omitempty"`
	Delta     int64          `json:"delta,omitempty"`
	Total     int64          `json:"total,omitempty"`
	Badge     BadgeKey       `json:"badge,omitempty"`
	Rarity    Rarity         `json:"rarity,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewPointsAdded(user UserID, session SessionID, activity ActivityType, delta int64, total int64) Event {
	return Event{Type: EventPointsAdded, Time: time.Now().UTC(), UserID: user, SessionID: session, Activity: activity, Delta: delta, Total: total}
}

func NewBadgeAwarded(user UserID, session SessionID, badge Badge) Event {
	return Event{Type: EventBadgeAwarded, Time: time.Now().UTC(), UserID: user, SessionID: session, Badge: badge.Key, Rarity: badge.Rarity, Delta: int64(badge.PointsReward)}
}

func NewCelebrationQueued(user UserID, session SessionID, ev CelebrationEvent) Event {
	return Event{Type: EventCelebrationQueued, Time: time.Now().UTC(), UserID: user, SessionID: session,
		Metadata: map[string]any{"celebration_id": ev.ID, "celebration_type": ev.Type, "priority": ev.Priority}}
}

func NewEvaluationFailed(user UserID, session SessionID, activity ActivityType, err error) Event {
	return Event{Type: EventEvaluationFailed, Time: time.Now().UTC(), UserID: user, SessionID: session, Activity: activity, Error: err.Error()}
}

// CelebrationType classifies celebration events.
type CelebrationType string

const (
	CelebrationBadge         CelebrationType = "badge"
	CelebrationMilestone     CelebrationType = "milestone"
	CelebrationStreak        CelebrationType = "streak"
	CelebrationFeatureUnlock CelebrationType = "feature_unlock"
	CelebrationShare         CelebrationType = "share"
	CelebrationAchievement   CelebrationType = "achievement"
)

const (
	PriorityMilestone = 90
	PriorityStreak    = 50
)

// CelebrationEvent is a queued, one-at-a-time notification shown to a user.
// It is never persisted.
type CelebrationEvent struct {
	ID        string          `json:"id"`
	Type      CelebrationType `json:"type"`
	Priority  int             `json:"priority"`
	Data      map[string]any  `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	OnDismiss func()          `json:"-"`
}

// NewCelebration builds an event with a fresh id.
func NewCelebration(typ CelebrationType, priority int, data map[string]any) CelebrationEvent {
	return CelebrationEvent{ID: uuid.NewString(), Type: typ, Priority: priority, Data: data, CreatedAt: time.Now().UTC()}
}

// BadgeCelebrationData is the payload of a badge celebration.
func BadgeCelebrationData(b Badge) map[string]any {
	return map[string]any{
		"badge_key":     string(b.Key),
		"name":          b.Name,
		"description":   b.Description,
		"icon":          b.Icon,
		"category":      b.Category,
		"rarity":        string(b.Rarity),
		"points_reward": b.PointsReward,
	}
}
