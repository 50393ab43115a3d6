package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"journeykit/core"
)

// Config holds configuration for the analytics service.
type Config struct {
	AggregationInterval time.Duration    `json:"aggregation_interval"`
	ExportInterval      time.Duration    `json:"export_interval"`
	Exporters           []ExporterConfig `json:"exporters"`
}

// ExporterConfig holds configuration for individual exporters
type ExporterConfig struct {
	Type      string `json:"type"` // "http" or "log"
	Endpoint  string `json:"endpoint,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// DefaultConfig aggregates hourly and logs daily rollups every six hours.
func DefaultConfig() Config {
	return Config{
		AggregationInterval: time.Hour,
		ExportInterval:      6 * time.Hour,
		Exporters:           []ExporterConfig{{Type: "log"}},
	}
}

// Service bundles metrics, rollups and exporters behind one event handler.
type Service struct {
	metrics    *Metrics
	aggregator *Aggregator
	exporter   *ExportManager
	cfg        Config
	log        *slog.Logger
}

// NewService builds the analytics pipeline described by cfg. Unknown
// exporter types are skipped with a warning.
func NewService(cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.AggregationInterval <= 0 {
		cfg.AggregationInterval = time.Hour
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 6 * time.Hour
	}
	metrics := NewMetrics()

	var exporters []Exporter
	for _, ec := range cfg.Exporters {
		switch ec.Type {
		case "http":
			exporters = append(exporters, NewHTTPExporter(ec.Endpoint, ec.APIKey, ec.BatchSize))
		case "log":
			exporters = append(exporters, NewLogExporter(log))
		default:
			log.Warn("unknown analytics exporter", "type", ec.Type)
		}
	}

	return &Service{
		metrics:    metrics,
		aggregator: NewAggregator(metrics, cfg.AggregationInterval, log),
		exporter:   NewExportManager(exporters...),
		cfg:        cfg,
		log:        log,
	}
}

// Handle is an engine event handler; subscribe it to every event type.
func (s *Service) Handle(_ context.Context, e core.Event) { s.metrics.OnEvent(e) }

func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) Aggregator() *Aggregator { return s.aggregator }

// Start runs aggregation and periodic export until ctx ends, then flushes
// the exporters.
func (s *Service) Start(ctx context.Context) {
	go s.aggregator.Start(ctx)

	ticker := time.NewTicker(s.cfg.ExportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.exporter.Close(); err != nil {
				s.log.Error("analytics exporter close failed", "error", err)
			}
			return
		case <-ticker.C:
			s.Export(ctx)
		}
	}
}

// Export ships the current daily rollups.
func (s *Service) Export(ctx context.Context) {
	s.aggregator.AggregateNow()
	if err := s.exporter.ExportData(ctx, s.aggregator.All(PeriodDaily)); err != nil {
		s.log.Error("analytics export failed", "error", err)
	}
}

// Snapshot is the live KPI view served by Handler.
type Snapshot struct {
	Window      WindowStats     `json:"window"`
	Today       *AggregatedData `json:"today"`
	ThisWeek    *AggregatedData `json:"this_week"`
	ThisMonth   *AggregatedData `json:"this_month"`
	TopBadges   []BadgeCount    `json:"top_badges"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (s *Service) Snapshot() Snapshot {
	now := s.aggregator.now().UTC()
	s.aggregator.AggregateAt(now)
	today, _ := s.aggregator.Get(PeriodDaily, dayKey(now))
	week, _ := s.aggregator.Get(PeriodWeekly, weekKey(now))
	month, _ := s.aggregator.Get(PeriodMonthly, monthKey(now))
	return Snapshot{
		Window:      s.metrics.Window(),
		Today:       today,
		ThisWeek:    week,
		ThisMonth:   month,
		TopBadges:   s.metrics.TopBadges(10),
		GeneratedAt: now,
	}
}

// Handler serves Snapshot as JSON.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
			s.log.Error("encode analytics snapshot", "error", err)
		}
	})
}
