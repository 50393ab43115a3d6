package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"journeykit/core"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is one rollup of journey KPIs.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // 2026-03-07, 2026-W10 or 2026-03
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActiveUsers        int   `json:"active_users"`
	Activities         int64 `json:"activities"`
	PointsAwarded      int64 `json:"points_awarded"`
	BadgesAwarded      int64 `json:"badges_awarded"`
	EvaluationFailures int64 `json:"evaluation_failures"`

	CreatedAt time.Time `json:"created_at"`
}

// Aggregator periodically rolls Metrics up by day, ISO week and month.
type Aggregator struct {
	mu sync.RWMutex

	metrics *Metrics
	rollups map[AggregationPeriod]map[string]*AggregatedData

	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewAggregator(metrics *Metrics, interval time.Duration, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		metrics: metrics,
		rollups: map[AggregationPeriod]map[string]*AggregatedData{
			PeriodDaily:   {},
			PeriodWeekly:  {},
			PeriodMonthly: {},
		},
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// OnEvent forwards events to the underlying metrics.
func (a *Aggregator) OnEvent(e core.Event) { a.metrics.OnEvent(e) }

// AggregateNow rolls up the periods containing the current time.
func (a *Aggregator) AggregateNow() { a.AggregateAt(a.now()) }

// AggregateAt rolls up the day, week and month containing at.
func (a *Aggregator) AggregateAt(at time.Time) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)

	daily := a.rollup(PeriodDaily, dayKey(at), day, day.AddDate(0, 0, 1), at)
	daily.ActiveUsers = a.metrics.DailyActiveUsers(daily.Key)

	weekly := a.rollup(PeriodWeekly, weekKey(at), weekStart, weekStart.AddDate(0, 0, 7), at)
	weekly.ActiveUsers = a.metrics.WeeklyActiveUsers(weekly.Key)

	monthly := a.rollup(PeriodMonthly, monthKey(at), monthStart, monthStart.AddDate(0, 1, 0), at)
	monthly.ActiveUsers = a.metrics.MonthlyActiveUsers(monthly.Key)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range []*AggregatedData{daily, weekly, monthly} {
		a.rollups[d.Period][d.Key] = d
	}
}

// rollup sums the daily counters over [start, end).
func (a *Aggregator) rollup(p AggregationPeriod, key string, start, end, now time.Time) *AggregatedData {
	d := &AggregatedData{Period: p, Key: key, StartTime: start, EndTime: end, CreatedAt: now}
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		k := dayKey(day)
		d.Activities += a.metrics.Activities(k)
		d.PointsAwarded += a.metrics.PointsAwarded(k)
		d.BadgesAwarded += a.metrics.BadgesAwarded(k)
		d.EvaluationFailures += a.metrics.EvaluationFailures(k)
	}
	return d
}

// Get returns the rollup for a period and key.
func (a *Aggregator) Get(period AggregationPeriod, key string) (*AggregatedData, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.rollups[period][key]
	return d, ok
}

// All returns every rollup of period ordered by key.
func (a *Aggregator) All(period AggregationPeriod) []*AggregatedData {
	a.mu.RLock()
	out := make([]*AggregatedData, 0, len(a.rollups[period]))
	for _, d := range a.rollups[period] {
		out = append(out, d)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start aggregates immediately and then on every interval until ctx ends.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.AggregateNow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.AggregateNow()
			a.log.Debug("analytics aggregated", "period_count", len(a.All(PeriodDaily)))
		}
	}
}

// ExportJSON renders every rollup of period as indented JSON.
func (a *Aggregator) ExportJSON(period AggregationPeriod) ([]byte, error) {
	switch period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		return nil, fmt.Errorf("unknown aggregation period %q", period)
	}
	return json.MarshalIndent(a.All(period), "", "  ")
}
