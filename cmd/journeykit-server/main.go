package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer cleanup()

	cfg := app.Config
	log := app.Logger
	log.Info("starting journeykit server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"economy_source", cfg.Economy.Source,
		"webhooks", len(cfg.Webhook.Endpoints),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if app.Metrics.Server != nil {
		g.Go(func() error {
			log.Info("serving analytics", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
			if err := app.Metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		sweepSessions(gctx, app)
		return nil
	})

	g.Go(func() error {
		app.Analytics.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
		if app.Metrics.Server != nil {
			if err := app.Metrics.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		app.Service.Close()
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// sweepSessions drops celebration queues of sessions idle longer than the
// configured TTL.
func sweepSessions(ctx context.Context, app *App) {
	cfg := app.Config.Celebration
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.Service.SweepSessions(cfg.SessionIdleTTL); n > 0 {
				app.Logger.Debug("swept idle sessions", "count", n)
			}
		}
	}
}
