// Package main provides the snapshot worker entry point.
// It records every connected user's portfolio valuation once a day at 00:00 UTC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koinlytics-backend/internal/app"
	"github.com/koinlytics-backend/internal/config"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	// one-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		if _, err := application.Snapshots.CreateDailySnapshots(ctx); err != nil {
			logger.WithError(err).Error("Failed to create snapshots")
			application.Close()
			os.Exit(1)
		}
		return
	}

	logger.Info("Starting snapshot scheduler...")
	runScheduler(ctx, application.Snapshots, logger)
	logger.Info("Worker stopped")
}

// runScheduler runs the snapshot job at 00:00 UTC daily until ctx ends
func runScheduler(ctx context.Context, snapshots *service.SnapshotService, logger *logging.Logger) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		wait := next.Sub(now)

		logger.WithFields(map[string]interface{}{
			"next_run": next.Format(time.RFC3339),
			"wait":     wait.String(),
		}).Info("Waiting for next snapshot time")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := snapshots.CreateDailySnapshots(ctx); err != nil {
				logger.WithError(err).Error("Failed to create daily snapshots")
			}
		}
	}
}
