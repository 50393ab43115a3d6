package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"journeykit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(e core.Event)

func (f HookFunc) OnEvent(e core.Event) { f(e) }

// Bridge fans one event out to several hooks.
type Bridge struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *Bridge { return &Bridge{hooks: hooks} }

func (b *Bridge) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Handle lets a Hook subscribe to an engine event bus.
func Handle(h Hook) func(context.Context, core.Event) {
	return func(_ context.Context, e core.Event) { h.OnEvent(e) }
}

// DAU tracks daily active users.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := dayKey(e.Time)
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// Metrics keeps running journey KPIs: engagement by day, week and month,
// points by activity, badge unlocks by key and rarity, queued celebrations
// and evaluation failures.
type Metrics struct {
	mu sync.RWMutex

	dailyActive   map[string]map[core.UserID]struct{}
	weeklyActive  map[string]map[core.UserID]struct{}
	monthlyActive map[string]map[core.UserID]struct{}

	pointsByDay      map[string]int64
	pointsByActivity map[core.ActivityType]int64
	activitiesByDay  map[string]int64

	badgesByDay    map[string]int64
	badgesByKey    map[core.BadgeKey]int64
	badgesByRarity map[core.Rarity]int64
	badgeHolders   map[core.BadgeKey]map[core.UserID]struct{}

	celebrationsByType map[string]int64
	failuresByDay      map[string]int64

	// last 24 hours
	window struct {
		points       int64
		badges       int64
		celebrations int64
		start        time.Time
	}
	now func() time.Time
}

func NewMetrics() *Metrics {
	m := &Metrics{
		dailyActive:        make(map[string]map[core.UserID]struct{}),
		weeklyActive:       make(map[string]map[core.UserID]struct{}),
		monthlyActive:      make(map[string]map[core.UserID]struct{}),
		pointsByDay:        make(map[string]int64),
		pointsByActivity:   make(map[core.ActivityType]int64),
		activitiesByDay:    make(map[string]int64),
		badgesByDay:        make(map[string]int64),
		badgesByKey:        make(map[core.BadgeKey]int64),
		badgesByRarity:     make(map[core.Rarity]int64),
		badgeHolders:       make(map[core.BadgeKey]map[core.UserID]struct{}),
		celebrationsByType: make(map[string]int64),
		failuresByDay:      make(map[string]int64),
		now:                time.Now,
	}
	m.window.start = m.now()
	return m
}

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Sub(m.window.start) > 24*time.Hour {
		m.window.points, m.window.badges, m.window.celebrations = 0, 0, 0
		m.window.start = m.now()
	}

	day := dayKey(e.Time)
	m.trackEngagement(e.UserID, day, weekKey(e.Time), monthKey(e.Time))

	switch e.Type {
	case core.EventPointsAdded:
		m.activitiesByDay[day]++
		if e.Delta > 0 {
			m.pointsByDay[day] += e.Delta
			m.pointsByActivity[e.Activity] += e.Delta
			m.window.points += e.Delta
		}
	case core.EventBadgeAwarded:
		m.badgesByDay[day]++
		m.badgesByKey[e.Badge]++
		if e.Rarity != "" {
			m.badgesByRarity[e.Rarity]++
		}
		if m.badgeHolders[e.Badge] == nil {
			m.badgeHolders[e.Badge] = make(map[core.UserID]struct{})
		}
		m.badgeHolders[e.Badge][e.UserID] = struct{}{}
		m.window.badges++
	case core.EventCelebrationQueued:
		typ := fmt.Sprint(e.Metadata["celebration_type"])
		m.celebrationsByType[typ]++
		m.window.celebrations++
	case core.EventEvaluationFailed:
		m.failuresByDay[day]++
	}
}

func (m *Metrics) trackEngagement(user core.UserID, day, week, month string) {
	addUser(m.dailyActive, day, user)
	addUser(m.weeklyActive, week, user)
	addUser(m.monthlyActive, month, user)
}

func addUser(set map[string]map[core.UserID]struct{}, key string, user core.UserID) {
	if set[key] == nil {
		set[key] = make(map[core.UserID]struct{})
	}
	set[key][user] = struct{}{}
}

func (m *Metrics) DailyActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActive[day])
}

func (m *Metrics) WeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActive[week])
}

func (m *Metrics) MonthlyActiveUsers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActive[month])
}

// PointsAwarded returns the activity points credited on day. Badge rewards
// are not included.
func (m *Metrics) PointsAwarded(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByDay[day]
}

func (m *Metrics) Activities(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activitiesByDay[day]
}

func (m *Metrics) PointsByActivity(a core.ActivityType) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByActivity[a]
}

func (m *Metrics) BadgesAwarded(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badgesByDay[day]
}

func (m *Metrics) BadgesByRarity(r core.Rarity) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badgesByRarity[r]
}

// BadgeHolders returns how many distinct users unlocked key in any session.
func (m *Metrics) BadgeHolders(key core.BadgeKey) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.badgeHolders[key])
}

func (m *Metrics) EvaluationFailures(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failuresByDay[day]
}

// WindowStats returns the counters of the current 24 hour window.
type WindowStats struct {
	Points       int64     `json:"points"`
	Badges       int64     `json:"badges"`
	Celebrations int64     `json:"celebrations"`
	Since        time.Time `json:"since"`
}

func (m *Metrics) Window() WindowStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return WindowStats{
		Points:       m.window.points,
		Badges:       m.window.badges,
		Celebrations: m.window.celebrations,
		Since:        m.window.start,
	}
}

// BadgeCount pairs a badge with how often it was unlocked.
type BadgeCount struct {
	Badge core.BadgeKey `json:"badge"`
	Count int64         `json:"count"`
}

// TopBadges returns the most unlocked badges, ties broken by key.
func (m *Metrics) TopBadges(limit int) []BadgeCount {
	m.mu.RLock()
	out := make([]BadgeCount, 0, len(m.badgesByKey))
	for k, n := range m.badgesByKey {
		out = append(out, BadgeCount{Badge: k, Count: n})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Badge < out[j].Badge
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }
