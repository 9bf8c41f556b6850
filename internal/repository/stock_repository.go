package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

const errScanStock = "failed to scan stock: %w"

// PostgresStockRepository implements StockRepository for PostgreSQL
type PostgresStockRepository struct {
	db *database.DB
}

// NewPostgresStockRepository creates a new stock repository
func NewPostgresStockRepository(db *database.DB) StockRepository {
	return &PostgresStockRepository{db: db}
}

// Upsert inserts or refreshes a stock listing
func (r *PostgresStockRepository) Upsert(ctx context.Context, stock *models.Stock) error {
	query := `
		INSERT INTO stocks (code, name, market, sector)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			sector = EXCLUDED.sector,
			updated_at = NOW()
	`

	_, err := r.db.GetPool().Exec(ctx, query, stock.Code, stock.Name, stock.Market, stock.Sector)
	if err != nil {
		return fmt.Errorf("failed to upsert stock: %w", err)
	}

	return nil
}

// GetByCode retrieves a stock by its code
func (r *PostgresStockRepository) GetByCode(ctx context.Context, code string) (*models.Stock, error) {
	query := `
		SELECT code, name, market, sector, created_at, updated_at
		FROM stocks WHERE code = $1
	`

	stock := &models.Stock{}
	err := r.db.GetPool().QueryRow(ctx, query, code).Scan(
		&stock.Code, &stock.Name, &stock.Market, &stock.Sector, &stock.CreatedAt, &stock.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}

	return stock, nil
}

// GetByMarket retrieves stocks filtered by market; empty or ALL returns everything
func (r *PostgresStockRepository) GetByMarket(ctx context.Context, market string) ([]*models.Stock, error) {
	query := `
		SELECT code, name, market, sector, created_at, updated_at
		FROM stocks
		WHERE ($1 = '' OR $1 = 'ALL' OR market = $1)
		ORDER BY code ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, market)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks by market: %w", err)
	}
	defer rows.Close()

	var stocks []*models.Stock
	for rows.Next() {
		stock := &models.Stock{}
		err := rows.Scan(
			&stock.Code, &stock.Name, &stock.Market, &stock.Sector, &stock.CreatedAt, &stock.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf(errScanStock, err)
		}
		stocks = append(stocks, stock)
	}

	return stocks, rows.Err()
}
