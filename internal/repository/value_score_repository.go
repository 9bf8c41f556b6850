package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

// PostgresValueScoreRepository implements ValueScoreRepository for PostgreSQL
type PostgresValueScoreRepository struct {
	db *database.DB
}

// NewPostgresValueScoreRepository creates a new value score repository
func NewPostgresValueScoreRepository(db *database.DB) ValueScoreRepository {
	return &PostgresValueScoreRepository{db: db}
}

// Upsert writes a score keyed by (stock, date), recomputing in place
// when a row for that date already exists
func (r *PostgresValueScoreRepository) Upsert(ctx context.Context, score *models.ValueScore) error {
	query := `
		INSERT INTO value_scores (
			stock_code, date, total_score, valuation_score, profitability_score,
			stability_score, dividend_score, upside_potential, summary, strengths, risks
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stock_code, date) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			valuation_score = EXCLUDED.valuation_score,
			profitability_score = EXCLUDED.profitability_score,
			stability_score = EXCLUDED.stability_score,
			dividend_score = EXCLUDED.dividend_score,
			upside_potential = EXCLUDED.upside_potential,
			summary = EXCLUDED.summary,
			strengths = EXCLUDED.strengths,
			risks = EXCLUDED.risks,
			updated_at = NOW()
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		score.StockCode, score.Date, score.TotalScore, score.ValuationScore,
		score.ProfitabilityScore, score.StabilityScore, score.DividendScore,
		score.UpsidePotential, score.Summary, score.Strengths, score.Risks,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert value score: %w", err)
	}

	return nil
}

// GetByStockAndDate retrieves the score computed for a stock on a date
func (r *PostgresValueScoreRepository) GetByStockAndDate(ctx context.Context, stockCode string, date time.Time) (*models.ValueScore, error) {
	query := `
		SELECT stock_code, date, total_score, valuation_score, profitability_score,
		       stability_score, dividend_score, upside_potential, summary, strengths, risks,
		       created_at, updated_at
		FROM value_scores
		WHERE stock_code = $1 AND date = $2
	`

	return r.scanOne(r.db.GetPool().QueryRow(ctx, query, stockCode, date))
}

// GetLatest retrieves the most recent score for a stock
func (r *PostgresValueScoreRepository) GetLatest(ctx context.Context, stockCode string) (*models.ValueScore, error) {
	query := `
		SELECT stock_code, date, total_score, valuation_score, profitability_score,
		       stability_score, dividend_score, upside_potential, summary, strengths, risks,
		       created_at, updated_at
		FROM value_scores
		WHERE stock_code = $1
		ORDER BY date DESC
		LIMIT 1
	`

	return r.scanOne(r.db.GetPool().QueryRow(ctx, query, stockCode))
}

func (r *PostgresValueScoreRepository) scanOne(row pgx.Row) (*models.ValueScore, error) {
	score := &models.ValueScore{}
	err := row.Scan(
		&score.StockCode, &score.Date, &score.TotalScore, &score.ValuationScore,
		&score.ProfitabilityScore, &score.StabilityScore, &score.DividendScore,
		&score.UpsidePotential, &score.Summary, &score.Strengths, &score.Risks,
		&score.CreatedAt, &score.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan value score: %w", err)
	}

	return score, nil
}
