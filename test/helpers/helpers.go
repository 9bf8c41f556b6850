// Package helpers provides shared setup for integration tests that
// need a real PostgreSQL instance.
package helpers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/value-backtest/internal/config"
	"github.com/yourusername/value-backtest/internal/database"
)

// SetupTestDB connects to the test database and bootstraps the schema.
// Connection parameters come from TEST_DB_* environment variables with
// local defaults.
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Host:           envOr("TEST_DB_HOST", "localhost"),
		Port:           envIntOr("TEST_DB_PORT", 5432),
		Name:           envOr("TEST_DB_NAME", "value_backtest_test"),
		User:           envOr("TEST_DB_USER", "test"),
		Password:       envOr("TEST_DB_PASSWORD", "test"),
		SSLMode:        "disable",
		MaxConnections: 5,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.NewDB(ctx, cfg)
	require.NoError(t, err, "failed to connect to test database")

	require.NoError(t, db.EnsureSchema(ctx), "failed to bootstrap schema")

	return db
}

// TeardownTestDB truncates all tables and closes the connection.
func TeardownTestDB(t *testing.T, db *database.DB) {
	t.Helper()

	tables := []string{
		"backtest_recommendations",
		"backtest_runs",
		"value_scores",
		"historical_financial_metrics",
		"historical_stock_prices",
		"stocks",
	}

	ctx := context.Background()
	for _, table := range tables {
		if _, err := db.GetPool().Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Logf("Warning: failed to truncate table %s: %v", table, err)
		}
	}

	db.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
