package repository

import (
	"fmt"

	"github.com/yourusername/value-backtest/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Stock          StockRepository
	Price          PriceRepository
	Fundamentals   FundamentalsRepository
	ValueScore     ValueScoreRepository
	Run            RunRepository
	Recommendation RecommendationRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Stock:          NewPostgresStockRepository(db),
		Price:          NewPostgresPriceRepository(db),
		Fundamentals:   NewPostgresFundamentalsRepository(db),
		ValueScore:     NewPostgresValueScoreRepository(db),
		Run:            NewPostgresRunRepository(db),
		Recommendation: NewPostgresRecommendationRepository(db),
	}, nil
}
