// Package config provides configuration management for the value backtest service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "VALUE_BACKTEST"

// Load reads and parses the configuration from file and environment variables.
// Environment variable placeholders in the YAML file (${VAR_NAME}) are expanded.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing config file is not an error; defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "value-backtest")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backtest.default_market", "ALL")
	v.SetDefault("backtest.default_lookback_years", 5)
	v.SetDefault("backtest.default_holding_months", 12)
	v.SetDefault("backtest.max_concurrent_runs", 4)
	v.SetDefault("backtest.stale_run_timeout_hours", 2)
	v.SetDefault("backtest.provider_cache_ttl_hours", 6)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}
