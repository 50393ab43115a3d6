package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Exporter ships rollups to an external sink.
type Exporter interface {
	Export(ctx context.Context, data *AggregatedData) error
	Flush(ctx context.Context) error
	Close() error
}

// HTTPExporter batches rollups and POSTs them as a JSON array.
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	batchSize  int

	mu     sync.Mutex
	buffer []*AggregatedData
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer:    make([]*AggregatedData, 0, batchSize),
		batchSize: batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, data *AggregatedData) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, data)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()

	if full {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return nil
	}

	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("marshal analytics data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send analytics data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("analytics export failed with status %d: %s", resp.StatusCode, string(body))
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// LogExporter writes each rollup as a structured log line.
type LogExporter struct {
	log *slog.Logger
}

func NewLogExporter(log *slog.Logger) *LogExporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogExporter{log: log}
}

func (e *LogExporter) Export(ctx context.Context, d *AggregatedData) error {
	e.log.InfoContext(ctx, "analytics rollup",
		"period", d.Period,
		"key", d.Key,
		"active_users", d.ActiveUsers,
		"activities", d.Activities,
		"points_awarded", d.PointsAwarded,
		"badges_awarded", d.BadgesAwarded,
		"evaluation_failures", d.EvaluationFailures,
	)
	return nil
}

func (e *LogExporter) Flush(context.Context) error { return nil }

func (e *LogExporter) Close() error { return nil }

// ExportManager distributes rollups to every exporter.
type ExportManager struct {
	exporters []Exporter
}

func NewExportManager(exporters ...Exporter) *ExportManager {
	return &ExportManager{exporters: exporters}
}

// ExportData sends data to all exporters and flushes them. One failing
// exporter does not stop the others; their errors are joined.
func (em *ExportManager) ExportData(ctx context.Context, data []*AggregatedData) error {
	var errs []error
	for _, exporter := range em.exporters {
		for _, d := range data {
			if err := exporter.Export(ctx, d); err != nil {
				errs = append(errs, fmt.Errorf("export via %T: %w", exporter, err))
				break
			}
		}
	}
	if err := em.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Flush flushes all exporters
func (em *ExportManager) Flush(ctx context.Context) error {
	var errs []error
	for _, exporter := range em.exporters {
		if err := exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %T: %w", exporter, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (em *ExportManager) Close() error {
	var errs []error
	for _, exporter := range em.exporters {
		if err := exporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
