package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the configuration from the environment. In local development
// a .env file (if present) seeds variables that are not already set; OS
// environment always wins. The populated struct is validated before return so
// every caller can treat a non-nil Config as fully usable.
func Load() (*Config, error) {
	// Best-effort dotenv: absence is normal outside local dev.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct-tag validation plus cross-field checks that tags
// cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if cfg.Dispatcher.RetryBaseDelay > cfg.Dispatcher.RetryMaxDelay {
		return fmt.Errorf("validating config: DISPATCH_RETRY_BASE_DELAY (%s) exceeds DISPATCH_RETRY_MAX_DELAY (%s)",
			cfg.Dispatcher.RetryBaseDelay, cfg.Dispatcher.RetryMaxDelay)
	}

	return nil
}
