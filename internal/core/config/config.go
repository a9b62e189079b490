package config

import (
	"fmt"
	"time"

	"github.com/apssouza22/keyfetch/internal/infra/cache"
	"github.com/apssouza22/keyfetch/internal/infra/storage/postgres"
	"github.com/apssouza22/keyfetch/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig    `yaml:"server"`
	Keyservers KeyserverConfig `yaml:"keyservers"`
	Cache      cache.Config    `yaml:"cache"`
	Database   postgres.Config `yaml:"database"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// KeyserverConfig holds the endpoint pool and retry tuning. Durations are
// strings ("100ms", "40s") parsed at construction time.
type KeyserverConfig struct {
	Endpoints          []string `yaml:"endpoints"`
	ResolutionTimeout  string   `yaml:"resolution_timeout"`
	RetryCount         int      `yaml:"retry_count"`
	InitialDelay       string   `yaml:"initial_delay"`
	MaxDelay           string   `yaml:"max_delay"`
	MinLoggableTimeout string   `yaml:"min_loggable_timeout"`
}

// RetryConfig converts the YAML keyserver section into a scheduler config.
// Empty fields fall back to the scheduler defaults.
func (c KeyserverConfig) RetryConfig() (retry.Config, error) {
	cfg := retry.Config{
		Endpoints:  c.Endpoints,
		RetryCount: c.RetryCount,
	}

	var err error
	if cfg.KeyResolutionTimeout, err = parseDuration(c.ResolutionTimeout, "resolution_timeout"); err != nil {
		return retry.Config{}, err
	}
	if cfg.Backoff.InitialDelay, err = parseDuration(c.InitialDelay, "initial_delay"); err != nil {
		return retry.Config{}, err
	}
	if cfg.Backoff.MaxDelay, err = parseDuration(c.MaxDelay, "max_delay"); err != nil {
		return retry.Config{}, err
	}
	if cfg.MinLoggableTimeout, err = parseDuration(c.MinLoggableTimeout, "min_loggable_timeout"); err != nil {
		return retry.Config{}, err
	}
	if (cfg.Backoff.InitialDelay == 0) != (cfg.Backoff.MaxDelay == 0) {
		return retry.Config{}, fmt.Errorf("initial_delay and max_delay must be set together")
	}
	if cfg.Backoff == (retry.BackoffPolicy{}) {
		cfg.Backoff = retry.DefaultBackoffPolicy
	}
	return cfg, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
