package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "journeykit/adapters/memory"
	"journeykit/analytics"
	"journeykit/config"
	"journeykit/core"
	"journeykit/engine"
	"journeykit/integrations/webhook"
	"journeykit/leaderboard"
	"journeykit/realtime"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestSetupStorage(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	s, cleanup, err := setupStorage(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, mem.New(), s)

	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "journeys.json")
	s, cleanup, err = setupStorage(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, s)

	cfg.Storage.Adapter = "etcd"
	_, _, err = setupStorage(ctx, cfg)
	assert.ErrorContains(t, err, "unknown storage adapter")
}

func TestProvideCalculator(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	calc, err := provideCalculator(ctx, cfg, mem.New())
	require.NoError(t, err)
	res, err := calc.ForActivity(core.ActivityMorningJournal, 14, false, false)
	require.NoError(t, err)
	assert.Equal(t, 15, res.FinalPoints)

	cfg.Economy.Source = config.EconomyFromSQL
	_, err = provideCalculator(ctx, cfg, mem.New())
	assert.ErrorContains(t, err, "requires the sql storage adapter")
}

func TestProvideMetricsServer(t *testing.T) {
	cfg := config.DefaultConfig()
	stats := analytics.NewService(analytics.DefaultConfig(), slog.Default())

	assert.Nil(t, provideMetricsServer(cfg, stats).Server)

	cfg.Metrics.Enabled = true
	ms := provideMetricsServer(cfg, stats)
	require.NotNil(t, ms.Server)
	assert.Equal(t, ":9090", ms.Addr)

	rec := httptest.NewRecorder()
	ms.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "top_badges")
}

func TestProvideServiceFansOutEvents(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get(webhook.HeaderEvent))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.DefaultConfig()
	cfg.Webhook.Endpoints = []string{hook.URL}
	cfg.Webhook.Events = []string{string(core.EventBadgeAwarded)}

	logger := slog.Default()
	stats := analytics.NewService(analytics.DefaultConfig(), logger)
	badges, err := provideCatalog(cfg)
	require.NoError(t, err)
	calc, err := provideCalculator(context.Background(), cfg, mem.New())
	require.NoError(t, err)

	svc := provideService(cfg, logger, realtime.NewHub(), leaderboard.NewBoards(), stats, mem.New(), badges, calc)
	defer svc.Close()

	_, err = svc.RecordActivity(context.Background(), engine.ActivityRequest{Context: core.BadgeCheckContext{
		UserID:    "alice",
		SessionID: "spring",
		Activity:  core.ActivityMorningJournal,
		Timestamp: time.Date(2026, 3, 7, 9, 30, 0, 0, time.UTC),
		Totals:    map[core.ActivityType]int{core.ActivityMorningJournal: 1},
	}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	for _, typ := range seen {
		assert.Equal(t, string(core.EventBadgeAwarded), typ)
	}
	mu.Unlock()

	require.Eventually(t, func() bool {
		for _, b := range stats.Metrics().TopBadges(10) {
			if b.Badge == "first_light" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
