package config

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Sync     SyncConfig     `mapstructure:"sync"`
	LogLevel string         `mapstructure:"log_level"`
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// HTTPConfig holds the admin API listener settings
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// SyncConfig holds the reconciliation scheduler settings
type SyncConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	Workers         int `mapstructure:"workers"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	RetryWaitSec    int `mapstructure:"retry_wait_sec"`
}
