package main

import (
	"log/slog"
	"net/http"
	"os"

	"talentsphere/internal/config"
	"talentsphere/internal/external"
	notifcore "talentsphere/internal/notifications/core"
)

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

// newEmailProvider selects the real mail client when an API key is
// configured and the logging stub otherwise.
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

// retryPolicy maps dispatcher configuration onto the delivery retry policy.
func retryPolicy(cfg *config.Config) notifcore.RetryPolicy {
	return notifcore.RetryPolicy{
		MaxAttempts:   cfg.Dispatcher.MaxAttempts,
		BaseDelay:     cfg.Dispatcher.RetryBaseDelay,
		MaxDelay:      cfg.Dispatcher.RetryMaxDelay,
		BackoffFactor: 2.0,
	}
}
