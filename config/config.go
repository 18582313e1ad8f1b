// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL           string
	HTTPAddr              string
	JWTSecret             string
	DefaultClaimDays      int
	OutboxPollInterval    time.Duration
	OutboxMaxAttempts     int
	BucketMonitorInterval time.Duration
	ShutdownTimeout       time.Duration
}

var ErrMissing = errors.New("config: required variable not set")

// Load reads the environment. Unset optional variables take their defaults;
// set but malformed ones are an error.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL: getenv("DATABASE_URL"),
		HTTPAddr:    getenv("HTTP_ADDR"),
		JWTSecret:   getenv("JWT_SECRET"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	var err error
	if cfg.DefaultClaimDays, err = intVar(getenv, "DEFAULT_CLAIM_DAYS", 3); err != nil {
		return Config{}, err
	}
	if cfg.DefaultClaimDays < 1 {
		return Config{}, fmt.Errorf("config: DEFAULT_CLAIM_DAYS must be at least 1, got %d", cfg.DefaultClaimDays)
	}
	if cfg.OutboxMaxAttempts, err = intVar(getenv, "OUTBOX_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = durationVar(getenv, "OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BucketMonitorInterval, err = durationVar(getenv, "BUCKET_MONITOR_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationVar(getenv, "SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireServer checks what the API process cannot start without.
func (c Config) RequireServer() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL", ErrMissing)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissing)
	}
	return nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, raw)
	}
	return v, nil
}
