package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

const errScanPrice = "failed to scan price: %w"

// PostgresPriceRepository implements PriceRepository for PostgreSQL
type PostgresPriceRepository struct {
	db *database.DB
}

// NewPostgresPriceRepository creates a new price repository
func NewPostgresPriceRepository(db *database.DB) PriceRepository {
	return &PostgresPriceRepository{db: db}
}

// InsertBatch inserts daily price rows, skipping rows that already
// exist for the same (stock, date). Returns the number inserted.
func (r *PostgresPriceRepository) InsertBatch(ctx context.Context, prices []*models.HistoricalStockPrice) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO historical_stock_prices (stock_code, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stock_code, date) DO NOTHING
	`

	inserted := 0
	for _, p := range prices {
		tag, err := r.db.GetPool().Exec(ctx, query,
			p.StockCode, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert price for %s: %w", p.StockCode, err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// GetOnOrBefore retrieves the closest price on or before the given date
func (r *PostgresPriceRepository) GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error) {
	query := `
		SELECT stock_code, date, open, high, low, close, volume
		FROM historical_stock_prices
		WHERE stock_code = $1 AND date <= $2
		ORDER BY date DESC
		LIMIT 1
	`

	price := &models.HistoricalStockPrice{}
	err := r.db.GetPool().QueryRow(ctx, query, stockCode, date).Scan(
		&price.StockCode, &price.Date, &price.Open, &price.High, &price.Low, &price.Close, &price.Volume,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price on or before date: %w", err)
	}

	return price, nil
}

// GetRange retrieves all price rows between start and end inclusive
func (r *PostgresPriceRepository) GetRange(ctx context.Context, stockCode string, start, end time.Time) ([]*models.HistoricalStockPrice, error) {
	query := `
		SELECT stock_code, date, open, high, low, close, volume
		FROM historical_stock_prices
		WHERE stock_code = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, stockCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var prices []*models.HistoricalStockPrice
	for rows.Next() {
		price := &models.HistoricalStockPrice{}
		err := rows.Scan(
			&price.StockCode, &price.Date, &price.Open, &price.High, &price.Low, &price.Close, &price.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanPrice, err)
		}
		prices = append(prices, price)
	}

	return prices, rows.Err()
}

// LatestDate returns the most recent stored trading day for a stock
func (r *PostgresPriceRepository) LatestDate(ctx context.Context, stockCode string) (time.Time, error) {
	query := `SELECT MAX(date) FROM historical_stock_prices WHERE stock_code = $1`

	var latest *time.Time
	err := r.db.GetPool().QueryRow(ctx, query, stockCode).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest price date: %w", err)
	}
	if latest == nil {
		return time.Time{}, models.ErrNotFound
	}

	return *latest, nil
}
