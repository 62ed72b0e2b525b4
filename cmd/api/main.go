// Package main is the entry point for the TalentSphere background-service
// API: the admin cleanup surface and the user notification/preference
// endpoints. Delivery and sweeping run in their own worker binaries; this
// process only serves HTTP.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/go-chi/chi/v5"

	"talentsphere/internal/api/handlers"
	"talentsphere/internal/config"
	"talentsphere/internal/core"
	"talentsphere/internal/db"
	"talentsphere/internal/dispatch"
	notifcore "talentsphere/internal/notifications/core"
	"talentsphere/internal/notifications/digest"
	"talentsphere/internal/notifications/email"
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
	logger.Info("api starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
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

	notificationRepo := db.NewNotificationRepository(pool)
	preferenceRepo := db.NewPreferenceRepository(pool)
	queueRepo := db.NewQueueRepository(pool)
	logRepo := db.NewDeliveryLogRepository(pool)
	userRepo := db.NewUserRepository(pool)
	postingRepo := db.NewPostingRepository(pool)

	resolver := notifcore.NewResolver(appLogger)
	publisher := dispatch.NewPublisher(
		notificationRepo, queueRepo, preferenceRepo, logRepo, resolver, clock, appLogger)

	channel := email.NewChannel(email.ChannelConfig{
		Provider:    newEmailProvider(cfg, logger),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Logger:      appLogger,
	})
	generator := digest.NewGenerator(notificationRepo, appLogger)
	dispatcher := dispatch.NewDispatcher(
		queueRepo, notificationRepo, preferenceRepo, logRepo, userRepo, channel, generator,
		clock, appLogger, dispatch.Config{
			BatchSize:      cfg.Dispatcher.BatchSize,
			MaxAttempts:    cfg.Dispatcher.MaxAttempts,
			RetryPolicy:    retryPolicy(cfg),
			StuckThreshold: cfg.Dispatcher.StuckThreshold,
		})

	sweep := sweeper.New(postingRepo, publisher, clock, appLogger, sweeper.Config{
		GracePeriodDays: cfg.Cleanup.GracePeriodDays,
		WarningWindow:   cfg.Cleanup.WarningWindow,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = db.NewAuthTokenRepository(pool)
	srv.HealthHandler = core.NewHealthHandler(
		core.PingChecker{CheckName: "database", Ping: pool.Ping},
	)
	srv.CleanupHealthHandler = handlers.NewCleanupHealthHandler(sweep)
	srv.EmailEventsHandler = handlers.NewEmailEventsHandler(logRepo, logger)

	cleanupHandler := handlers.NewCleanupHandler(sweep, logger)
	notificationHandler := handlers.NewNotificationHandler(
		notificationRepo, logRepo, publisher, dispatcher, logger)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceRepo, logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		func(r chi.Router) { cleanupHandler.Mount(r) },
		func(r chi.Router) { notificationHandler.Mount(r) },
		func(r chi.Router) { preferenceHandler.Mount(r) },
	)
	srv.MountRoutes()

	return serveHTTP(ctx, srv.Handler(), cfg, logger)
}

func serveHTTP(ctx context.Context, handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
