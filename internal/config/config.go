// Package config provides configuration management for the value backtest service.
package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `mapstructure:"app" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Backtest      BacktestConfig      `mapstructure:"backtest" validate:"required"`
	DataIngestion DataIngestionConfig `mapstructure:"data_ingestion" validate:"required"`
	Metrics       MetricsConfig       `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	DefaultMarket         string `mapstructure:"default_market" validate:"required,market"`
	DefaultLookbackYears  int    `mapstructure:"default_lookback_years" validate:"required,gt=0"`
	DefaultHoldingMonths  int    `mapstructure:"default_holding_months" validate:"required,gt=0"`
	MaxConcurrentRuns     int    `mapstructure:"max_concurrent_runs" validate:"required,gt=0"`
	StaleRunTimeoutHours  int    `mapstructure:"stale_run_timeout_hours" validate:"required,gt=0"`
	ProviderCacheTTLHours int    `mapstructure:"provider_cache_ttl_hours" validate:"required,gt=0"`
}

// DataIngestionConfig represents data ingestion configuration
type DataIngestionConfig struct {
	Sources  []DataSourceConfig `mapstructure:"sources" validate:"required,min=1"`
	Schedule ScheduleConfig     `mapstructure:"schedule" validate:"required"`
}

// DataSourceConfig represents a single external data source
type DataSourceConfig struct {
	Name            string  `mapstructure:"name" validate:"required"`
	Enabled         bool    `mapstructure:"enabled"`
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url" validate:"omitempty,url"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec" validate:"omitempty,gt=0"`
	MaxRetries      int     `mapstructure:"max_retries" validate:"omitempty,gte=0"`
	BatchSize       int     `mapstructure:"batch_size" validate:"omitempty,gt=0"`
	BatchCooldownS  int     `mapstructure:"batch_cooldown_seconds" validate:"omitempty,gte=0"`
}

// ScheduleConfig represents data ingestion and maintenance scheduling
type ScheduleConfig struct {
	DailySync      string `mapstructure:"daily_sync" validate:"required"`
	StaleRunSweep  string `mapstructure:"stale_run_sweep" validate:"required"`
	ScoreRecompute string `mapstructure:"score_recompute" validate:"required"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Source returns the data source configuration by name, or nil.
func (c *Config) Source(name string) *DataSourceConfig {
	for i := range c.DataIngestion.Sources {
		if c.DataIngestion.Sources[i].Name == name {
			return &c.DataIngestion.Sources[i]
		}
	}
	return nil
}
