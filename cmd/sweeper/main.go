// Package main is the entry point for the retention sweeper worker. It takes
// a Postgres advisory lock so only one replica sweeps, then runs the warning
// pass and the delete pass on a fixed interval.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"talentsphere/internal/config"
	"talentsphere/internal/db"
	"talentsphere/internal/dispatch"
	notifcore "talentsphere/internal/notifications/core"
	"talentsphere/internal/scheduler"
	"talentsphere/internal/sweeper"
	"talentsphere/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("sweeper starting",
		"environment", cfg.Environment,
		"interval", cfg.Cleanup.Interval.String(),
		"grace_period_days", cfg.Cleanup.GracePeriodDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	clock := types.RealClock{}
	appLogger := types.NewSlogLogger(logger)

	// The lock lives on this session; hold the connection until shutdown.
	lockConn, err := db.WaitForAdvisoryLock(ctx, pool, db.LockKeySweeper, appLogger)
	if err != nil {
		return err
	}
	defer lockConn.Release()

	postingRepo := db.NewPostingRepository(pool)
	notificationRepo := db.NewNotificationRepository(pool)
	queueRepo := db.NewQueueRepository(pool)
	preferenceRepo := db.NewPreferenceRepository(pool)
	logRepo := db.NewDeliveryLogRepository(pool)

	resolver := notifcore.NewResolver(appLogger)
	publisher := dispatch.NewPublisher(
		notificationRepo, queueRepo, preferenceRepo, logRepo, resolver, clock, appLogger)

	sweep := sweeper.New(postingRepo, publisher, clock, appLogger, sweeper.Config{
		GracePeriodDays: cfg.Cleanup.GracePeriodDays,
		WarningWindow:   cfg.Cleanup.WarningWindow,
	})

	runner := scheduler.NewRunner("sweeper", cfg.Cleanup.Interval, func(ctx context.Context) error {
		// Warnings go out before deletion so owners always hear about a
		// posting before it disappears.
		if _, err := sweep.WarnExpiring(ctx); err != nil {
			appLogger.Error("expiry warning pass failed", "error", err.Error())
		}
		_, err := sweep.Run(ctx)
		return err
	}, appLogger)

	runner.Start(ctx)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	runner.Stop()
	return nil
}

// newLogger builds a JSON slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
