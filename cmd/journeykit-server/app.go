package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"journeykit/adapters/jsonfile"
	mem "journeykit/adapters/memory"
	redisAdapter "journeykit/adapters/redis"
	sqlxAdapter "journeykit/adapters/sqlx"
	"journeykit/analytics"
	"journeykit/api/httpapi"
	"journeykit/catalog"
	"journeykit/config"
	"journeykit/core"
	"journeykit/engine"
	"journeykit/gamify"
	"journeykit/integrations/webhook"
	"journeykit/leaderboard"
	"journeykit/points"
	"journeykit/realtime"
)

// configFileEnv names a JSON or YAML file loaded before the environment.
const configFileEnv = "JOURNEYKIT_CONFIG_FILE"

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Hub       *realtime.Hub
	Boards    *leaderboard.Boards
	Analytics *analytics.Service
	Service   *engine.Service
	Handler   http.Handler
	Server    *http.Server
	Metrics   *MetricsServer
}

// MetricsServer serves the analytics snapshot on its own listener. Server
// is nil when metrics are disabled.
type MetricsServer struct {
	*http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv(configFileEnv); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		cfg.LoadSecretsFromEnv(ctx)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration after secrets: %w", err)
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBoards() *leaderboard.Boards {
	return leaderboard.NewBoards()
}

func provideAnalytics(logger *slog.Logger) *analytics.Service {
	return analytics.NewService(analytics.DefaultConfig(), logger)
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, func(), error) {
	return setupStorage(ctx, cfg)
}

func provideCatalog(cfg *config.Config) (engine.BadgeCatalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// provideCalculator builds the points economy from the config file or, for
// source "sql", from the economy tables of the SQL store.
func provideCalculator(ctx context.Context, cfg *config.Config, storage engine.Storage) (*points.Calculator, error) {
	var src engine.EconomySource = cfg.Economy
	if cfg.Economy.Source == config.EconomyFromSQL {
		sqlSrc, ok := storage.(engine.EconomySource)
		if !ok {
			return nil, errors.New("economy source sql requires the sql storage adapter")
		}
		src = sqlSrc
	}
	econ, err := src.LoadEconomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load economy: %w", err)
	}
	return points.NewCalculator(econ)
}

func provideService(
	cfg *config.Config,
	logger *slog.Logger,
	hub *realtime.Hub,
	boards *leaderboard.Boards,
	stats *analytics.Service,
	storage engine.Storage,
	badges engine.BadgeCatalog,
	calc *points.Calculator,
) *engine.Service {
	handlers := []func(context.Context, core.Event){stats.Handle}
	if len(cfg.Webhook.Endpoints) > 0 {
		events := make([]core.EventType, len(cfg.Webhook.Events))
		for i, e := range cfg.Webhook.Events {
			events[i] = core.EventType(e)
		}
		sink := webhook.New(cfg.Webhook.Endpoints,
			webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
			webhook.WithEvents(events...),
			webhook.WithSecret(cfg.Webhook.Secret),
			webhook.WithRetries(cfg.Webhook.MaxRetries, webhook.DefaultBackoff),
			webhook.WithLogger(logger),
		)
		handlers = append(handlers, sink.Handle)
	}
	return gamify.New(
		gamify.WithStorage(storage),
		gamify.WithCatalog(badges),
		gamify.WithCalculator(calc),
		gamify.WithRealtime(hub),
		gamify.WithLeaderboards(boards),
		gamify.WithEventHandlers(handlers...),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithLogger(logger),
	)
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, boards *leaderboard.Boards, logger *slog.Logger, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Leaderboards:     boards,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, stats *analytics.Service) *MetricsServer {
	if !cfg.Metrics.Enabled {
		return &MetricsServer{}
	}
	r := chi.NewRouter()
	r.Get(cfg.Metrics.Path, stats.Handler().ServeHTTP)
	return &MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	attrs := convertAttributes(cfg.Logging.Attributes)
	attrs = append(attrs, slog.String("service", "journeykit"), slog.String("environment", string(cfg.Environment)))
	handler = handler.WithAttrs(attrs)

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs)+2)
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by the configuration and
// a cleanup func that releases its connections.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), noop, nil
	case "redis":
		s, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "sql":
		s, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("sql storage: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("file storage: %w", err)
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
