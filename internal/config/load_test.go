package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/talentsphere_test")
	t.Setenv("ADMIN_API_KEY", "0123456789abcdef0123")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "talentsphere-core", cfg.Service)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Cleanup.GracePeriodDays)
	assert.Equal(t, 6*time.Hour, cfg.Cleanup.Interval)
	assert.Equal(t, 72*time.Hour, cfg.Cleanup.WarningWindow)
	assert.Equal(t, time.Minute, cfg.Dispatcher.Interval)
	assert.Equal(t, 100, cfg.Dispatcher.BatchSize)
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Dispatcher.RetryBaseDelay)
	assert.Equal(t, 30*time.Minute, cfg.Dispatcher.RetryMaxDelay)
	assert.Equal(t, 15*time.Minute, cfg.Digest.Interval)
	assert.Equal(t, "notifications@talentsphere.io", cfg.Email.FromAddress)
	assert.Empty(t, cfg.Email.APIKey)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("CLEANUP_GRACE_PERIOD_DAYS", "7")
	t.Setenv("DISPATCH_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, 7, cfg.Cleanup.GracePeriodDays)
	assert.Equal(t, 25, cfg.Dispatcher.BatchSize)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ADMIN_API_KEY", "0123456789abcdef0123")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsShortAdminKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/talentsphere_test")
	t.Setenv("ADMIN_API_KEY", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production") // must be one of local/dev/staging/prod

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsInvertedRetryDelays(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISPATCH_RETRY_BASE_DELAY", "1h")
	t.Setenv("DISPATCH_RETRY_MAX_DELAY", "1m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_RETRY_BASE_DELAY")
}
