package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/value-backtest/internal/models"
)

// StockRepository defines the interface for stock universe data access
type StockRepository interface {
	Upsert(ctx context.Context, stock *models.Stock) error
	GetByCode(ctx context.Context, code string) (*models.Stock, error)
	// GetByMarket returns stocks in one market, or all stocks when
	// market is empty or "ALL".
	GetByMarket(ctx context.Context, market string) ([]*models.Stock, error)
}

// PriceRepository defines the interface for historical price data access
type PriceRepository interface {
	InsertBatch(ctx context.Context, prices []*models.HistoricalStockPrice) (int, error)
	// GetOnOrBefore returns the closest price row dated on or before the
	// given date, or models.ErrNotFound.
	GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error)
	GetRange(ctx context.Context, stockCode string, start, end time.Time) ([]*models.HistoricalStockPrice, error)
	LatestDate(ctx context.Context, stockCode string) (time.Time, error)
}

// FundamentalsRepository defines the interface for point-in-time
// financial metric snapshots
type FundamentalsRepository interface {
	Upsert(ctx context.Context, metrics *models.HistoricalFinancialMetrics) error
	// GetOnOrBefore returns the closest snapshot dated on or before the
	// given date, or models.ErrNotFound.
	GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error)
}

// ValueScoreRepository defines the interface for persisted composite scores
type ValueScoreRepository interface {
	// Upsert inserts or recomputes in place, keyed by (stock, date).
	Upsert(ctx context.Context, score *models.ValueScore) error
	GetByStockAndDate(ctx context.Context, stockCode string, date time.Time) (*models.ValueScore, error)
	GetLatest(ctx context.Context, stockCode string) (*models.ValueScore, error)
}

// RunFilter narrows List queries over backtest runs
type RunFilter struct {
	Status       *models.RunStatus
	StrategyType *string
	Market       *string
	Limit        int
	Offset       int
}

// RunRepository defines the interface for backtest run persistence
type RunRepository interface {
	Create(ctx context.Context, run *models.BacktestRun) error
	CreateBatch(ctx context.Context, runs []*models.BacktestRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error)
	List(ctx context.Context, filter RunFilter) ([]*models.BacktestRun, error)
	// MarkRunning atomically transitions pending -> running and stamps
	// started_at. Returns models.ErrRunNotPending if the run is in any
	// other state, models.ErrNotFound if it does not exist.
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	// UpdateResults writes the aggregate fields and terminal status.
	UpdateResults(ctx context.Context, run *models.BacktestRun) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error
	// FailStale marks runs stuck in running since before cutoff as
	// failed and returns how many were swept.
	FailStale(ctx context.Context, cutoff time.Time, errMsg string) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StockFrequency is one row of the recurring-stock analysis
type StockFrequency struct {
	StockCode     string   `json:"stock_code"`
	StockName     string   `json:"stock_name"`
	Appearances   int      `json:"appearances"`
	AvgReturnPct  *float64 `json:"avg_return_pct"`
	AvgValueScore *float64 `json:"avg_value_score"`
}

// RecommendationRepository defines the interface for per-run picks
type RecommendationRepository interface {
	InsertBatch(ctx context.Context, recs []*models.BacktestRecommendation) error
	GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.BacktestRecommendation, error)
	// UpdateOutcome writes the holding-period outcome fields.
	UpdateOutcome(ctx context.Context, rec *models.BacktestRecommendation) error
	// FrequencyByStock aggregates recommendations with a resolved actual
	// return, grouped by stock, keeping groups with at least
	// minOccurrences rows, ordered by occurrence count descending.
	FrequencyByStock(ctx context.Context, minOccurrences int) ([]*StockFrequency, error)
}
