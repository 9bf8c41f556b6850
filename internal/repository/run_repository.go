package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

const errScanRun = "failed to scan backtest run: %w"

const runColumns = `
	id, name, strategy_type, market, simulation_date, lookback_years,
	holding_period_months, status, created_at, started_at, completed_at,
	error_message, total_recommendations, avg_return_pct, median_return_pct,
	win_rate_pct, best_return_pct, worst_return_pct, market_index_return_pct,
	alpha_pct, volatility_pct, sharpe_ratio, max_drawdown_pct
`

// PostgresRunRepository implements RunRepository for PostgreSQL
type PostgresRunRepository struct {
	db *database.DB
}

// NewPostgresRunRepository creates a new run repository
func NewPostgresRunRepository(db *database.DB) RunRepository {
	return &PostgresRunRepository{db: db}
}

// Create inserts a new pending backtest run
func (r *PostgresRunRepository) Create(ctx context.Context, run *models.BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			id, name, strategy_type, market, simulation_date,
			lookback_years, holding_period_months, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		run.ID, run.Name, run.StrategyType, run.Market, run.SimulationDate,
		run.LookbackYears, run.HoldingPeriodMonths, run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create backtest run: %w", err)
	}

	return nil
}

// CreateBatch inserts a series of runs within one transaction
func (r *PostgresRunRepository) CreateBatch(ctx context.Context, runs []*models.BacktestRun) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO backtest_runs (
				id, name, strategy_type, market, simulation_date,
				lookback_years, holding_period_months, status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, run := range runs {
			_, err := tx.Exec(ctx, query,
				run.ID, run.Name, run.StrategyType, run.Market, run.SimulationDate,
				run.LookbackYears, run.HoldingPeriodMonths, run.Status,
			)
			if err != nil {
				return fmt.Errorf("failed to create backtest run within transaction: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a run by ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE id = $1`

	run, err := scanRun(r.db.GetPool().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}

	return run, nil
}

// List retrieves runs matching the filter, newest simulation date
// first. A non-positive limit returns everything that matches.
func (r *PostgresRunRepository) List(ctx context.Context, filter RunFilter) ([]*models.BacktestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR strategy_type = $2)
		  AND ($3::text IS NULL OR market = $3)
		ORDER BY simulation_date DESC, created_at DESC
		LIMIT CASE WHEN $4 > 0 THEN $4 END OFFSET $5
	`

	rows, err := r.db.GetPool().Query(ctx, query,
		filter.Status, filter.StrategyType, filter.Market, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanRun, err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// MarkRunning performs the pending -> running compare-and-swap. Exactly
// one caller can win; everyone else gets ErrRunNotPending.
func (r *PostgresRunRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE backtest_runs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		id, models.RunStatusRunning, startedAt, models.RunStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return models.ErrRunNotPending
	}

	return nil
}

// UpdateResults writes aggregate statistics and terminal status
func (r *PostgresRunRepository) UpdateResults(ctx context.Context, run *models.BacktestRun) error {
	query := `
		UPDATE backtest_runs SET
			status = $2,
			completed_at = $3,
			error_message = $4,
			total_recommendations = $5,
			avg_return_pct = $6,
			median_return_pct = $7,
			win_rate_pct = $8,
			best_return_pct = $9,
			worst_return_pct = $10,
			market_index_return_pct = $11,
			alpha_pct = $12,
			volatility_pct = $13,
			sharpe_ratio = $14,
			max_drawdown_pct = $15
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		run.ID, run.Status, run.CompletedAt, run.ErrorMessage,
		run.TotalRecommendations, run.AvgReturnPct, run.MedianReturnPct,
		run.WinRatePct, run.BestReturnPct, run.WorstReturnPct,
		run.MarketIndexReturnPct, run.AlphaPct, run.VolatilityPct,
		run.SharpeRatio, run.MaxDrawdownPct,
	)
	if err != nil {
		return fmt.Errorf("failed to update backtest run results: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// MarkFailed records a terminal failure with its error message
func (r *PostgresRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error {
	query := `
		UPDATE backtest_runs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query, id, models.RunStatusFailed, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// FailStale sweeps runs stuck in running since before cutoff
func (r *PostgresRunRepository) FailStale(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	query := `
		UPDATE backtest_runs
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE status = $3 AND started_at < $4
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		models.RunStatusFailed, errMsg, models.RunStatusRunning, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale runs: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// Delete removes a run; its recommendations cascade
func (r *PostgresRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM backtest_runs WHERE id = $1`

	tag, err := r.db.GetPool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func scanRun(row pgx.Row) (*models.BacktestRun, error) {
	run := &models.BacktestRun{}
	err := row.Scan(
		&run.ID, &run.Name, &run.StrategyType, &run.Market, &run.SimulationDate,
		&run.LookbackYears, &run.HoldingPeriodMonths, &run.Status, &run.CreatedAt,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
		&run.TotalRecommendations, &run.AvgReturnPct, &run.MedianReturnPct,
		&run.WinRatePct, &run.BestReturnPct, &run.WorstReturnPct,
		&run.MarketIndexReturnPct, &run.AlphaPct, &run.VolatilityPct,
		&run.SharpeRatio, &run.MaxDrawdownPct,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
