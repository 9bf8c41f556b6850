// Package config provides configuration management for the value backtest service.
package config

import (
	"os"
	"strings"
	"testing"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	expansionConfigPath   = "testdata/expansion_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"

	expectedNoErrorMsg           = "expected no error, got %v"
	expectedNoErrorLoadingConfig = "expected no error loading config, got %v"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.App.Name != "value-backtest" {
		t.Errorf("expected app name 'value-backtest', got '%s'", cfg.App.Name)
	}

	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got '%s'", cfg.App.Environment)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("expected database port 5432, got %d", cfg.Database.Port)
	}

	if cfg.Backtest.DefaultMarket != "ALL" {
		t.Errorf("expected default market 'ALL', got '%s'", cfg.Backtest.DefaultMarket)
	}

	if len(cfg.DataIngestion.Sources) != 2 {
		t.Fatalf("expected 2 data sources, got %d", len(cfg.DataIngestion.Sources))
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigExpandsEnvironmentPlaceholders tests ${VAR} expansion
func TestLoadConfigExpandsEnvironmentPlaceholders(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "expanded_secret_value")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.Database.Password != "expanded_secret_value" {
		t.Errorf("expected expanded password, got '%s'", cfg.Database.Password)
	}
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateInvalidEnvironment tests validation of invalid environment
func TestValidateInvalidEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.App.Environment = "invalid"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
}

// TestValidateInvalidMarket tests validation of an unknown market filter
func TestValidateInvalidMarket(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	cfg.Backtest.DefaultMarket = "NASDAQ"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for unknown market")
	}

	if !strings.Contains(strings.ToLower(err.Error()), "market") {
		t.Errorf("expected market validation error, got: %v", err)
	}
}

// TestValidateRequiresEnabledSource tests the cross-field source check
func TestValidateRequiresEnabledSource(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	for i := range cfg.DataIngestion.Sources {
		cfg.DataIngestion.Sources[i].Enabled = false
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when no data source is enabled")
	}
}

// TestGetDatabaseDSN tests DSN generation
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	dsn := cfg.GetDatabaseDSN()
	if !strings.HasPrefix(dsn, "postgres://") {
		t.Errorf("expected DSN to start with 'postgres://', got '%s'", dsn)
	}

	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("expected DSN to carry ssl mode, got '%s'", dsn)
	}
}

// TestSourceLookup tests named data source lookup
func TestSourceLookup(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	krx := cfg.Source("krx")
	if krx == nil {
		t.Fatal("expected krx source to resolve")
	}
	if !krx.Enabled {
		t.Error("expected krx source to be enabled")
	}

	if cfg.Source("bloomberg") != nil {
		t.Error("expected unknown source to resolve to nil")
	}
}

// TestIsDevelopment tests environment check function
func TestIsDevelopment(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "development"},
	}

	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return true")
	}

	if cfg.IsProduction() {
		t.Error("expected IsProduction() to return false")
	}
}

// TestIsProduction tests production environment check
func TestIsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}

	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to return true")
	}

	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false")
	}
}
