package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"journeykit/celebration"
	"journeykit/core"
	"journeykit/points"
)

// ActivityRequest is one completed activity together with the snapshot the
// caller assembled from storage. HasCombo and IsEarlyBird force the bonus
// on; when false they are derived from the snapshot.
type ActivityRequest struct {
	Context     core.BadgeCheckContext `json:"context"`
	HasCombo    bool                   `json:"has_combo,omitempty"`
	IsEarlyBird bool                   `json:"is_early_bird,omitempty"`
	Reference   string                 `json:"reference,omitempty"`
}

// ActivityOutcome reports what RecordActivity credited and queued.
type ActivityOutcome struct {
	Points          points.Result           `json:"points"`
	Transaction     core.PointsTransaction  `json:"transaction"`
	NewBadges       []core.UserBadge        `json:"new_badges"`
	BadgePoints     int                     `json:"badge_points"`
	TotalPoints     int64                   `json:"total_points"`
	Celebrations    []core.CelebrationEvent `json:"celebrations"`
	Degraded        bool                    `json:"degraded,omitempty"`
	EvaluationError string                  `json:"evaluation_error,omitempty"`
}

// CelebrationView is a session's queue as a client sees it.
type CelebrationView struct {
	Current *core.CelebrationEvent  `json:"current"`
	Pending []core.CelebrationEvent `json:"pending"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithCoordinator(c *Coordinator) ServiceOption { return func(s *Service) { s.coord = c } }

// WithQueues shares a celebration registry with other components.
func WithQueues(r *celebration.Registry) ServiceOption { return func(s *Service) { s.queues = r } }

// WithTransactionIDs overrides ledger row ids.
func WithTransactionIDs(next func() string) ServiceOption { return func(s *Service) { s.newID = next } }

// WithNow overrides the transaction timestamp source.
func WithNow(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

// Service wires storage, rules, the points economy, the award coordinator
// and the per-session celebration queues into one API.
type Service struct {
	storage Storage
	bus     *EventBus
	rules   RuleEngine
	catalog BadgeCatalog
	calc    atomic.Pointer[points.Calculator]
	coord   *Coordinator
	queues  *celebration.Registry
	log     *slog.Logger
	newID   func() string
	now     func() time.Time
}

func NewService(storage Storage, bus *EventBus, rules RuleEngine, catalog BadgeCatalog, calc *points.Calculator, opts ...ServiceOption) *Service {
	if storage == nil || bus == nil || rules == nil || catalog == nil || calc == nil {
		panic("NewService requires non-nil storage, bus, rules, catalog and calculator")
	}
	s := &Service{
		storage: storage,
		bus:     bus,
		rules:   rules,
		catalog: catalog,
		coord:   NewCoordinator(),
		queues:  celebration.NewRegistry(),
		log:     slog.Default(),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.calc.Store(calc)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// RecordActivity scores one completion, evaluates badges, commits the
// activity and any new badges atomically and queues celebrations.
//
// Invalid input fails before anything is written. A badge evaluation
// failure never blocks the activity credit: the outcome is marked Degraded,
// an evaluation_failed event is published and no badges are awarded.
func (s *Service) RecordActivity(ctx context.Context, req ActivityRequest) (ActivityOutcome, error) {
	snap := req.Context
	user, err := core.NormalizeUserID(snap.UserID)
	if err != nil {
		return ActivityOutcome{}, err
	}
	session, err := core.NormalizeSessionID(snap.SessionID)
	if err != nil {
		return ActivityOutcome{}, err
	}
	snap.UserID, snap.SessionID = user, session
	if err := snap.Validate(); err != nil {
		return ActivityOutcome{}, err
	}
	if snap.Activity == core.ActivityBadgeReward {
		return ActivityOutcome{}, &core.InputError{Field: "activity_type", Value: string(snap.Activity), Reason: "badge rewards are credited by the engine"}
	}
	loc, err := snap.Location()
	if err != nil {
		return ActivityOutcome{}, err
	}

	calc := s.calc.Load()
	streak := snap.Streaks[core.StreakKindFor(snap.Activity)]
	combo := req.HasCombo || completesCombo(snap)
	early := req.IsEarlyBird || calc.Economy().IsEarlyBird(snap.Activity, snap.Timestamp, loc)
	res, err := calc.ForActivity(snap.Activity, streak, combo, early)
	if err != nil {
		return ActivityOutcome{}, err
	}

	owned, err := s.storage.OwnedBadges(ctx, user, session)
	if err != nil {
		return ActivityOutcome{}, fmt.Errorf("load owned badges: %w", err)
	}

	out := ActivityOutcome{Points: res}
	newly, err := s.rules.Evaluate(s.catalog.Badges(), snap, owned)
	if err != nil {
		s.log.Error("badge evaluation failed",
			"user", user, "session", session, "activity", snap.Activity, "error", err)
		s.bus.Publish(ctx, core.NewEvaluationFailed(user, session, snap.Activity, err))
		out.Degraded = true
		out.EvaluationError = err.Error()
		newly = nil
	}
	award := s.coord.Award(newly, snap)

	tx := core.PointsTransaction{
		ID:        s.newID(),
		UserID:    user,
		SessionID: session,
		Activity:  snap.Activity,
		Points:    res.FinalPoints,
		Reference: req.Reference,
		Modifiers: res.AppliedMultipliers,
		CreatedAt: s.now(),
	}
	commit := core.Commit{UserID: user, SessionID: session, Activity: tx, Grants: award.Grants()}
	if len(commit.Grants) > 0 {
		commit.RewardID = s.newID()
	}
	receipt, err := s.storage.Commit(ctx, commit)
	if err != nil {
		return ActivityOutcome{}, fmt.Errorf("commit activity: %w", err)
	}
	inserted := award.Only(receipt.Awarded)

	out.Transaction = tx
	out.NewBadges = inserted.NewBadges
	if out.NewBadges == nil {
		out.NewBadges = []core.UserBadge{}
	}
	out.BadgePoints = receipt.BadgePoints
	out.TotalPoints = receipt.Total
	queued := s.queues.Queue(user, session).AddMultiple(
		append(inserted.CelebrationEvents, s.extraCelebrations(calc, snap, streak, loc)...))
	out.Celebrations = queued
	if out.Celebrations == nil {
		out.Celebrations = []core.CelebrationEvent{}
	}

	s.bus.Publish(ctx, core.NewPointsAdded(user, session, snap.Activity, int64(res.FinalPoints), receipt.Total))
	for _, b := range inserted.Badges() {
		s.bus.Publish(ctx, core.NewBadgeAwarded(user, session, b))
	}
	for _, ce := range out.Celebrations {
		s.bus.Publish(ctx, core.NewCelebrationQueued(user, session, ce))
	}
	s.log.Debug("activity recorded",
		"user", user, "session", session, "activity", snap.Activity,
		"points", res.FinalPoints, "badges", len(out.NewBadges), "total", receipt.Total)
	return out, nil
}

// completesCombo reports whether this completion pairs a morning and an
// evening journal on the same day.
func completesCombo(snap core.BadgeCheckContext) bool {
	switch snap.Activity {
	case core.ActivityMorningJournal:
		return snap.CompletedToday[core.ActivityEveningJournal]
	case core.ActivityEveningJournal:
		return snap.CompletedToday[core.ActivityMorningJournal]
	}
	return false
}

// extraCelebrations builds the milestone and streak tier-up events. Their
// ids are derived from the snapshot so a replayed or repeated activity maps
// onto the same event, which the session queue shows only once.
func (s *Service) extraCelebrations(calc *points.Calculator, snap core.BadgeCheckContext, streak int, loc *time.Location) []core.CelebrationEvent {
	var out []core.CelebrationEvent
	if snap.Milestone != nil {
		ev := core.NewCelebration(core.CelebrationMilestone, core.PriorityMilestone, map[string]any{
			"milestone":      *snap.Milestone,
			"day_in_journey": snap.DayInJourney,
		})
		ev.ID = milestoneCelebrationID(*snap.Milestone)
		out = append(out, ev)
	}
	if tier := calc.TierFor(streak); tier.Min > 0 && streak == tier.Min {
		kind := core.StreakKindFor(snap.Activity)
		ev := core.NewCelebration(core.CelebrationStreak, core.PriorityStreak, map[string]any{
			"streak":     streak,
			"streak_of":  string(kind),
			"tier":       tier.Label,
			"multiplier": tier.Multiplier.Float(),
		})
		ev.ID = streakCelebrationID(kind, tier.Min, snap.Timestamp.In(loc))
		out = append(out, ev)
	}
	return out
}

func milestoneCelebrationID(n int) string {
	return fmt.Sprintf("milestone:%d", n)
}

// streakCelebrationID is scoped to the local day so a streak that breaks
// and reaches the tier again later is celebrated again.
func streakCelebrationID(kind core.StreakKind, tierMin int, day time.Time) string {
	return fmt.Sprintf("streak:%s:%d:%s", kind, tierMin, day.Format(time.DateOnly))
}

// Calculate previews the points for in without recording anything.
func (s *Service) Calculate(in points.Input) (points.Result, error) {
	if !in.Activity.Valid() {
		return points.Result{}, &core.InputError{Field: "activity_type", Value: string(in.Activity), Reason: "unknown activity type"}
	}
	return s.calc.Load().Calculate(in), nil
}

// Economy returns the economy currently in force.
func (s *Service) Economy() points.Economy { return s.calc.Load().Economy() }

// ReloadEconomy swaps in the economy src returns. In-flight calls finish
// with the economy they started with.
func (s *Service) ReloadEconomy(ctx context.Context, src EconomySource) error {
	econ, err := src.LoadEconomy(ctx)
	if err != nil {
		return fmt.Errorf("load economy: %w", err)
	}
	calc, err := points.NewCalculator(econ)
	if err != nil {
		return fmt.Errorf("load economy: %w", err)
	}
	s.calc.Store(calc)
	s.log.Info("economy reloaded", "tiers", len(econ.Tiers.Tiers()))
	return nil
}

// Catalog lists badge definitions; hidden ones only when includeHidden.
func (s *Service) Catalog(includeHidden bool) []core.Badge {
	all := s.catalog.Badges()
	if includeHidden {
		return all
	}
	out := make([]core.Badge, 0, len(all))
	for _, b := range all {
		if !b.Hidden {
			out = append(out, b)
		}
	}
	return out
}

func (s *Service) State(ctx context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	user, session, err := normalize(user, session)
	if err != nil {
		return core.UserState{}, err
	}
	return s.storage.GetState(ctx, user, session)
}

// Unseen returns badges the client has not acknowledged yet.
func (s *Service) Unseen(ctx context.Context, user core.UserID, session core.SessionID) ([]core.UserBadge, error) {
	st, err := s.State(ctx, user, session)
	if err != nil {
		return nil, err
	}
	out := st.Unseen()
	if out == nil {
		out = []core.UserBadge{}
	}
	return out, nil
}

func (s *Service) MarkSeen(ctx context.Context, user core.UserID, session core.SessionID, keys []core.BadgeKey) (int, error) {
	user, session, err := normalize(user, session)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := core.ValidateBadgeKey(k); err != nil {
			return 0, &core.InputError{Field: "badges", Value: string(k), Reason: err.Error()}
		}
	}
	return s.storage.MarkSeen(ctx, user, session, keys)
}

// Celebrations returns the session's queue without creating one.
func (s *Service) Celebrations(user core.UserID, session core.SessionID) (CelebrationView, error) {
	user, session, err := normalize(user, session)
	if err != nil {
		return CelebrationView{}, err
	}
	view := CelebrationView{Pending: []core.CelebrationEvent{}}
	if q, ok := s.queues.Peek(user, session); ok {
		cur, pending := q.Snapshot()
		view.Current = cur
		if pending != nil {
			view.Pending = pending
		}
	}
	return view, nil
}

// Dismiss retires the session's current celebration.
func (s *Service) Dismiss(user core.UserID, session core.SessionID) (core.CelebrationEvent, bool, error) {
	user, session, err := normalize(user, session)
	if err != nil {
		return core.CelebrationEvent{}, false, err
	}
	q, ok := s.queues.Peek(user, session)
	if !ok {
		return core.CelebrationEvent{}, false, nil
	}
	ev, ok := q.Dismiss()
	return ev, ok, nil
}

func (s *Service) ClearCelebrations(user core.UserID, session core.SessionID) error {
	user, session, err := normalize(user, session)
	if err != nil {
		return err
	}
	if q, ok := s.queues.Peek(user, session); ok {
		q.Clear()
	}
	return nil
}

// EndSession discards the session's celebration queue, as on logout.
func (s *Service) EndSession(user core.UserID, session core.SessionID) (bool, error) {
	user, session, err := normalize(user, session)
	if err != nil {
		return false, err
	}
	return s.queues.Drop(user, session), nil
}

// SweepSessions drops celebration queues idle for longer than maxIdle.
func (s *Service) SweepSessions(maxIdle time.Duration) int {
	n := s.queues.Sweep(maxIdle)
	if n > 0 {
		s.log.Info("idle celebration queues dropped", "count", n)
	}
	return n
}

func (s *Service) Close() { s.bus.Close() }

func normalize(user core.UserID, session core.SessionID) (core.UserID, core.SessionID, error) {
	u, err := core.NormalizeUserID(user)
	if err != nil {
		return "", "", err
	}
	sess, err := core.NormalizeSessionID(session)
	if err != nil {
		return "", "", err
	}
	return u, sess, nil
}
