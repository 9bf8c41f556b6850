package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

const errScanRecommendation = "failed to scan recommendation: %w"

const recommendationColumns = `
	id, run_id, stock_code, stock_name, rank, value_score, upside_pct,
	confidence, rationale, price_at_rec, per_at_rec, pbr_at_rec, roe_at_rec,
	debt_ratio_at_rec, market_cap_at_rec, price_after_holding,
	actual_return_pct, exceeded_prediction, max_price_during,
	min_price_during, max_return_pct, max_drawdown_pct, sector, notes
`

// PostgresRecommendationRepository implements RecommendationRepository
// for PostgreSQL
type PostgresRecommendationRepository struct {
	db *database.DB
}

// NewPostgresRecommendationRepository creates a new recommendation repository
func NewPostgresRecommendationRepository(db *database.DB) RecommendationRepository {
	return &PostgresRecommendationRepository{db: db}
}

// InsertBatch writes all recommendations for a run in one transaction
func (r *PostgresRecommendationRepository) InsertBatch(ctx context.Context, recs []*models.BacktestRecommendation) error {
	if len(recs) == 0 {
		return nil
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO backtest_recommendations (
				id, run_id, stock_code, stock_name, rank, value_score,
				upside_pct, confidence, rationale, price_at_rec, per_at_rec,
				pbr_at_rec, roe_at_rec, debt_ratio_at_rec, market_cap_at_rec,
				sector, notes
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`
		for _, rec := range recs {
			_, err := tx.Exec(ctx, query,
				rec.ID, rec.RunID, rec.StockCode, rec.StockName, rec.Rank,
				rec.ValueScore, rec.UpsidePct, rec.Confidence, rec.Rationale,
				rec.PriceAtRec, rec.PERAtRec, rec.PBRAtRec, rec.ROEAtRec,
				rec.DebtRatioAtRec, rec.MarketCapAtRec, rec.Sector, rec.Notes,
			)
			if err != nil {
				return fmt.Errorf("failed to insert recommendation: %w", err)
			}
		}
		return nil
	})
}

// GetByRunID retrieves a run's recommendations in rank order
func (r *PostgresRecommendationRepository) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.BacktestRecommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM backtest_recommendations
		WHERE run_id = $1
		ORDER BY rank ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*models.BacktestRecommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanRecommendation, err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// UpdateOutcome writes the holding-period outcome fields
func (r *PostgresRecommendationRepository) UpdateOutcome(ctx context.Context, rec *models.BacktestRecommendation) error {
	query := `
		UPDATE backtest_recommendations SET
			price_after_holding = $2,
			actual_return_pct = $3,
			exceeded_prediction = $4,
			max_price_during = $5,
			min_price_during = $6,
			max_return_pct = $7,
			max_drawdown_pct = $8
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		rec.ID, rec.PriceAfterHolding, rec.ActualReturnPct,
		rec.ExceededPrediction, rec.MaxPriceDuring, rec.MinPriceDuring,
		rec.MaxReturnPct, rec.MaxDrawdownPct,
	)
	if err != nil {
		return fmt.Errorf("failed to update recommendation outcome: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// FrequencyByStock aggregates evaluated recommendations across all runs,
// keeping stocks picked at least minOccurrences times
func (r *PostgresRecommendationRepository) FrequencyByStock(ctx context.Context, minOccurrences int) ([]*StockFrequency, error) {
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	query := `
		SELECT stock_code, stock_name, COUNT(*) AS appearances,
		       AVG(actual_return_pct), AVG(value_score)
		FROM backtest_recommendations
		WHERE actual_return_pct IS NOT NULL
		GROUP BY stock_code, stock_name
		HAVING COUNT(*) >= $1
		ORDER BY appearances DESC, stock_code ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock frequencies: %w", err)
	}
	defer rows.Close()

	var freqs []*StockFrequency
	for rows.Next() {
		f := &StockFrequency{}
		if err := rows.Scan(&f.StockCode, &f.StockName, &f.Appearances, &f.AvgReturnPct, &f.AvgValueScore); err != nil {
			return nil, fmt.Errorf("failed to scan stock frequency: %w", err)
		}
		freqs = append(freqs, f)
	}

	return freqs, rows.Err()
}

func scanRecommendation(row pgx.Row) (*models.BacktestRecommendation, error) {
	rec := &models.BacktestRecommendation{}
	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.StockCode, &rec.StockName, &rec.Rank,
		&rec.ValueScore, &rec.UpsidePct, &rec.Confidence, &rec.Rationale,
		&rec.PriceAtRec, &rec.PERAtRec, &rec.PBRAtRec, &rec.ROEAtRec,
		&rec.DebtRatioAtRec, &rec.MarketCapAtRec, &rec.PriceAfterHolding,
		&rec.ActualReturnPct, &rec.ExceededPrediction, &rec.MaxPriceDuring,
		&rec.MinPriceDuring, &rec.MaxReturnPct, &rec.MaxDrawdownPct,
		&rec.Sector, &rec.Notes,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
