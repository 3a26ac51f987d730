package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"xui-sync/internal/constants"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "xui_sync")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("HTTP_LISTEN", ":8080")
	v.SetDefault("SYNC_INTERVAL_MINUTES", constants.DefaultSyncInterval)
	v.SetDefault("SYNC_TIMEOUT_SECONDS", constants.DefaultSyncTimeout)
	v.SetDefault("SYNC_WORKERS", constants.DefaultWorkerCount)
	v.SetDefault("SYNC_MAX_ATTEMPTS", constants.DefaultMaxAttempts)
	v.SetDefault("SYNC_RETRY_WAIT_SEC", constants.DefaultRetryWait)

	// Define environment variables
	v.BindEnv("DB_HOST")
	v.BindEnv("DB_PORT")
	v.BindEnv("DB_USER")
	v.BindEnv("DB_PASSWORD")
	v.BindEnv("DB_NAME")
	v.BindEnv("REDIS_HOST")
	v.BindEnv("REDIS_PORT")
	v.BindEnv("REDIS_PASSWORD")
	v.BindEnv("HTTP_LISTEN")

	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     strings.TrimSpace(v.GetString("DB_HOST")),
			Port:     v.GetInt("DB_PORT"),
			User:     strings.TrimSpace(v.GetString("DB_USER")),
			Password: v.GetString("DB_PASSWORD"),
			Name:     strings.TrimSpace(v.GetString("DB_NAME")),
		},
		Redis: RedisConfig{
			Host:     strings.TrimSpace(v.GetString("REDIS_HOST")),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		HTTP: HTTPConfig{
			Listen: v.GetString("HTTP_LISTEN"),
		},
		Sync: SyncConfig{
			IntervalMinutes: v.GetInt("SYNC_INTERVAL_MINUTES"),
			TimeoutSeconds:  v.GetInt("SYNC_TIMEOUT_SECONDS"),
			Workers:         v.GetInt("SYNC_WORKERS"),
			MaxAttempts:     v.GetInt("SYNC_MAX_ATTEMPTS"),
			RetryWaitSec:    v.GetInt("SYNC_RETRY_WAIT_SEC"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Database.User == "" {
		return errors.New("DB_USER is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("DB_PASSWORD is required")
	}
	if cfg.Database.Name == "" {
		return errors.New("DB_NAME is required")
	}
	if cfg.Sync.Workers <= 0 {
		return errors.New("SYNC_WORKERS must be positive")
	}
	if cfg.Sync.MaxAttempts <= 0 {
		return errors.New("SYNC_MAX_ATTEMPTS must be positive")
	}
	return nil
}
