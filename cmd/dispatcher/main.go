// Package main is the entry point for the delivery dispatcher worker. It
// takes a Postgres advisory lock so only one replica dispatches, then drains
// the queue on a fixed interval: reclaim stuck work, requeue due retries,
// send.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"talentsphere/internal/config"
	"talentsphere/internal/db"
	"talentsphere/internal/dispatch"
	"talentsphere/internal/external"
	notifcore "talentsphere/internal/notifications/core"
	"talentsphere/internal/notifications/digest"
	"talentsphere/internal/notifications/email"
	"talentsphere/internal/scheduler"
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
	logger.Info("dispatcher starting",
		"environment", cfg.Environment,
		"interval", cfg.Dispatcher.Interval.String(),
		"batch_size", cfg.Dispatcher.BatchSize,
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

	lockConn, err := db.WaitForAdvisoryLock(ctx, pool, db.LockKeyDispatcher, appLogger)
	if err != nil {
		return err
	}
	defer lockConn.Release()

	dispatcher := buildDispatcher(pool, cfg, clock, appLogger, logger)

	runner := scheduler.NewRunner("dispatcher", cfg.Dispatcher.Interval, func(ctx context.Context) error {
		if _, err := dispatcher.ReclaimStuck(ctx); err != nil {
			appLogger.Error("stuck entry reclaim failed", "error", err.Error())
		}
		_, err := dispatcher.DispatchPending(ctx)
		return err
	}, appLogger)

	runner.Start(ctx)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	runner.Stop()
	return nil
}

func buildDispatcher(pool db.DBTX, cfg *config.Config, clock types.Clock, appLogger types.Logger, logger *slog.Logger) *dispatch.Dispatcher {
	queueRepo := db.NewQueueRepository(pool)
	notificationRepo := db.NewNotificationRepository(pool)
	preferenceRepo := db.NewPreferenceRepository(pool)
	logRepo := db.NewDeliveryLogRepository(pool)
	userRepo := db.NewUserRepository(pool)

	channel := email.NewChannel(email.ChannelConfig{
		Provider:    newEmailProvider(cfg, logger),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Logger:      appLogger,
	})
	generator := digest.NewGenerator(notificationRepo, appLogger)

	return dispatch.NewDispatcher(
		queueRepo, notificationRepo, preferenceRepo, logRepo, userRepo, channel, generator,
		clock, appLogger, dispatch.Config{
			BatchSize:   cfg.Dispatcher.BatchSize,
			MaxAttempts: cfg.Dispatcher.MaxAttempts,
			RetryPolicy: notifcore.RetryPolicy{
				MaxAttempts:   cfg.Dispatcher.MaxAttempts,
				BaseDelay:     cfg.Dispatcher.RetryBaseDelay,
				MaxDelay:      cfg.Dispatcher.RetryMaxDelay,
				BackoffFactor: 2.0,
			},
			StuckThreshold: cfg.Dispatcher.StuckThreshold,
		})
}

func newEmailProvider(cfg *config.Config, logger *slog.Logger) external.EmailProvider {
	if cfg.Email.APIKey == "" {
		logger.Warn("no email API key configured, using stub provider")
		return external.NewStubEmailProvider(logger)
	}
	return external.NewMailerClient(
		&http.Client{Timeout: cfg.Email.SendTimeout},
		external.MailerClientConfig{
			APIKey:  cfg.Email.APIKey,
			BaseURL: cfg.Email.BaseURL,
			Logger:  logger,
		},
	)
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
