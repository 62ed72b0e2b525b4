// Package config defines the global configuration structure for the
// TalentSphere background core. Configuration is loaded once at process
// initialization and is immutable thereafter, following 12-Factor principles:
// values come from the OS environment, optionally seeded from a dotenv file in
// local development. Any missing required value or invalid format aborts
// startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"talentsphere-core"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server     ServerConfig
	Database   DatabaseConfig
	Email      EmailConfig
	Cleanup    CleanupConfig
	Dispatcher DispatcherConfig
	Digest     DigestConfig
	Security   SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL               string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
// An empty APIKey selects the stub provider (development and tests).
type EmailConfig struct {
	APIKey      string        `envconfig:"EMAIL_API_KEY"`
	BaseURL     string        `envconfig:"EMAIL_API_BASE_URL"`
	FromAddress string        `envconfig:"EMAIL_FROM_ADDRESS" default:"notifications@talentsphere.io"`
	FromName    string        `envconfig:"EMAIL_FROM_NAME" default:"TalentSphere"`
	SendTimeout time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// CleanupConfig tunes the retention sweeper.
type CleanupConfig struct {
	GracePeriodDays int           `envconfig:"CLEANUP_GRACE_PERIOD_DAYS" default:"30" validate:"min=1"`
	Interval        time.Duration `envconfig:"CLEANUP_INTERVAL" default:"6h"`
	WarningWindow   time.Duration `envconfig:"CLEANUP_WARNING_WINDOW" default:"72h"`
}

// DispatcherConfig tunes the delivery dispatcher loop.
type DispatcherConfig struct {
	Interval        time.Duration `envconfig:"DISPATCH_INTERVAL" default:"1m"`
	BatchSize       int           `envconfig:"DISPATCH_BATCH_SIZE" default:"100" validate:"min=1"`
	MaxAttempts     int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	RetryBaseDelay  time.Duration `envconfig:"DISPATCH_RETRY_BASE_DELAY" default:"1m"`
	RetryMaxDelay   time.Duration `envconfig:"DISPATCH_RETRY_MAX_DELAY" default:"30m"`
	StuckThreshold  time.Duration `envconfig:"DISPATCH_STUCK_THRESHOLD" default:"5m"`
}

// DigestConfig tunes the digest runner loop.
type DigestConfig struct {
	Interval  time.Duration `envconfig:"DIGEST_INTERVAL" default:"15m"`
	BatchSize int           `envconfig:"DIGEST_BATCH_SIZE" default:"100" validate:"min=1"`
}

// SecurityConfig holds the admin bearer key guarding cleanup endpoints.
type SecurityConfig struct {
	AdminAPIKey string `envconfig:"ADMIN_API_KEY" validate:"required,min=16"`
}
