package database

import (
	"context"
	"fmt"

	"github.com/yourusername/value-backtest/internal/config"
)

// schema holds the DDL for all tables the backtester persists to.
// Statements are idempotent so bootstrap can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		code        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		market      TEXT NOT NULL,
		sector      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS historical_stock_prices (
		stock_code  TEXT NOT NULL,
		date        DATE NOT NULL,
		open        DOUBLE PRECISION NOT NULL,
		high        DOUBLE PRECISION NOT NULL,
		low         DOUBLE PRECISION NOT NULL,
		close       DOUBLE PRECISION NOT NULL,
		volume      BIGINT NOT NULL,
		PRIMARY KEY (stock_code, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prices_code_date
		ON historical_stock_prices (stock_code, date DESC)`,
	`CREATE TABLE IF NOT EXISTS historical_financial_metrics (
		stock_code                  TEXT NOT NULL,
		snapshot_date               DATE NOT NULL,
		report_date                 DATE NOT NULL,
		per                         DOUBLE PRECISION,
		pbr                         DOUBLE PRECISION,
		psr                         DOUBLE PRECISION,
		ev_ebitda                   DOUBLE PRECISION,
		roe                         DOUBLE PRECISION,
		roa                         DOUBLE PRECISION,
		operating_margin            DOUBLE PRECISION,
		net_profit_growth           DOUBLE PRECISION,
		debt_ratio                  DOUBLE PRECISION,
		current_ratio               DOUBLE PRECISION,
		interest_coverage           DOUBLE PRECISION,
		operating_cash_flow         DOUBLE PRECISION,
		dividend_yield              DOUBLE PRECISION,
		dividend_payout_ratio       DOUBLE PRECISION,
		consecutive_dividend_years  INTEGER,
		market_cap                  DOUBLE PRECISION,
		PRIMARY KEY (stock_code, snapshot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS value_scores (
		stock_code          TEXT NOT NULL,
		date                DATE NOT NULL,
		total_score         DOUBLE PRECISION NOT NULL,
		valuation_score     DOUBLE PRECISION NOT NULL,
		profitability_score DOUBLE PRECISION NOT NULL,
		stability_score     DOUBLE PRECISION NOT NULL,
		dividend_score      DOUBLE PRECISION NOT NULL,
		upside_potential    DOUBLE PRECISION,
		summary             TEXT NOT NULL DEFAULT '',
		strengths           TEXT[] NOT NULL DEFAULT '{}',
		risks               TEXT[] NOT NULL DEFAULT '{}',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (stock_code, date)
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		id                      UUID PRIMARY KEY,
		name                    TEXT NOT NULL,
		strategy_type           TEXT,
		market                  TEXT NOT NULL,
		simulation_date         DATE NOT NULL,
		lookback_years          INTEGER NOT NULL,
		holding_period_months   INTEGER NOT NULL,
		status                  TEXT NOT NULL DEFAULT 'pending',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at              TIMESTAMPTZ,
		completed_at            TIMESTAMPTZ,
		error_message           TEXT,
		total_recommendations   INTEGER,
		avg_return_pct          DOUBLE PRECISION,
		median_return_pct       DOUBLE PRECISION,
		win_rate_pct            DOUBLE PRECISION,
		best_return_pct         DOUBLE PRECISION,
		worst_return_pct        DOUBLE PRECISION,
		market_index_return_pct DOUBLE PRECISION,
		alpha_pct               DOUBLE PRECISION,
		volatility_pct          DOUBLE PRECISION,
		sharpe_ratio            DOUBLE PRECISION,
		max_drawdown_pct        DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_recommendations (
		id                   UUID PRIMARY KEY,
		run_id               UUID NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		stock_code           TEXT NOT NULL,
		stock_name           TEXT NOT NULL,
		rank                 INTEGER NOT NULL,
		value_score          DOUBLE PRECISION,
		upside_pct           DOUBLE PRECISION,
		confidence           DOUBLE PRECISION,
		rationale            TEXT,
		price_at_rec         DOUBLE PRECISION NOT NULL,
		per_at_rec           DOUBLE PRECISION,
		pbr_at_rec           DOUBLE PRECISION,
		roe_at_rec           DOUBLE PRECISION,
		debt_ratio_at_rec    DOUBLE PRECISION,
		market_cap_at_rec    DOUBLE PRECISION,
		price_after_holding  DOUBLE PRECISION,
		actual_return_pct    DOUBLE PRECISION,
		exceeded_prediction  DOUBLE PRECISION,
		max_price_during     DOUBLE PRECISION,
		min_price_during     DOUBLE PRECISION,
		max_return_pct       DOUBLE PRECISION,
		max_drawdown_pct     DOUBLE PRECISION,
		sector               TEXT,
		notes                TEXT,
		UNIQUE (run_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_run
		ON backtest_recommendations (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendations_stock
		ON backtest_recommendations (stock_code)`,
}

// Initialize creates a connection pool and bootstraps the schema.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema applies the DDL statements for all persisted entities.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
