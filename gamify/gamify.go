// Package gamify assembles a ready-to-use journeykit engine from options.
package gamify

import (
	"context"
	"log/slog"

	mem "journeykit/adapters/memory"
	"journeykit/catalog"
	"journeykit/core"
	"journeykit/engine"
	"journeykit/leaderboard"
	"journeykit/points"
	"journeykit/realtime"
	"journeykit/rules"
)

// Option configures the builder.
type Option func(*config)

type config struct {
	storage  engine.Storage
	mode     engine.DispatchMode
	rules    engine.RuleEngine
	catalog  engine.BadgeCatalog
	calc     *points.Calculator
	hub      *realtime.Hub
	boards   *leaderboard.Boards
	log      *slog.Logger
	handlers []func(context.Context, core.Event)
	extra    []engine.ServiceOption
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithRuleEngine sets the rule engine.
func WithRuleEngine(r engine.RuleEngine) Option { return func(c *config) { c.rules = r } }

// WithCatalog sets the badge definitions.
func WithCatalog(cat engine.BadgeCatalog) Option { return func(c *config) { c.catalog = cat } }

// WithCalculator sets the points calculator, and with it the economy.
func WithCalculator(calc *points.Calculator) Option { return func(c *config) { c.calc = calc } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboards keeps per-session boards current from points_added events.
func WithLeaderboards(b *leaderboard.Boards) Option { return func(c *config) { c.boards = b } }

// WithEventHandlers subscribes handlers, such as analytics or webhook
// sinks, to every event.
func WithEventHandlers(hs ...func(context.Context, core.Event)) Option {
	return func(c *config) { c.handlers = append(c.handlers, hs...) }
}

// WithLogger sets the logger for the service and the event bus.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

// WithServiceOptions passes options through to engine.NewService.
func WithServiceOptions(opts ...engine.ServiceOption) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

// New builds a configured Service. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: rules.New
//   - catalog: catalog.Default
//   - calculator: points.DefaultCalculator
//   - dispatch: async
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.rules == nil {
		cfg.rules = rules.New()
	}
	if cfg.catalog == nil {
		cfg.catalog = catalog.Default()
	}
	if cfg.calc == nil {
		cfg.calc = points.DefaultCalculator()
	}

	bus := engine.NewEventBus(cfg.mode)
	svcOpts := cfg.extra
	if cfg.log != nil {
		bus.SetLogger(cfg.log)
		svcOpts = append([]engine.ServiceOption{engine.WithLogger(cfg.log)}, svcOpts...)
	}
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	if cfg.boards != nil {
		bus.SubscribeAll(cfg.boards.Handle)
	}
	for _, h := range cfg.handlers {
		bus.SubscribeAll(h)
	}
	return engine.NewService(cfg.storage, bus, cfg.rules, cfg.catalog, cfg.calc, svcOpts...)
}
