package history

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

// WindowReturn describes how a stock moved over a holding window, all
// percentages relative to the window's starting close.
type WindowReturn struct {
	StartPrice     float64 `json:"start_price"`
	EndPrice       float64 `json:"end_price"`
	ReturnPct      float64 `json:"return_pct"`
	MaxPrice       float64 `json:"max_price"`
	MinPrice       float64 `json:"min_price"`
	MaxReturnPct   float64 `json:"max_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Provider answers point-in-time questions about stored market history.
// Every method answers using only rows dated on or before the requested
// date; anything later would leak future knowledge into a simulation.
// A data gap is reported as models.ErrNotFound, never as a zero value.
type Provider interface {
	PriceOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error)
	FundamentalsOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error)
	ReturnOverWindow(ctx context.Context, stockCode string, start, end time.Time) (*WindowReturn, error)
}

// RepositoryProvider serves the Provider contract straight from the
// price and fundamentals repositories.
type RepositoryProvider struct {
	prices       repository.PriceRepository
	fundamentals repository.FundamentalsRepository
}

// NewRepositoryProvider creates a repository-backed provider
func NewRepositoryProvider(prices repository.PriceRepository, fundamentals repository.FundamentalsRepository) *RepositoryProvider {
	return &RepositoryProvider{prices: prices, fundamentals: fundamentals}
}

// PriceOnOrBefore returns the closest trading day on or before date.
func (p *RepositoryProvider) PriceOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error) {
	return p.prices.GetOnOrBefore(ctx, stockCode, date)
}

// FundamentalsOnOrBefore returns the closest snapshot on or before date.
func (p *RepositoryProvider) FundamentalsOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error) {
	return p.fundamentals.GetOnOrBefore(ctx, stockCode, date)
}

// ReturnOverWindow measures the move from the closest close on or
// before start to the closest close on or before end, with the intra-
// window extremes taken from highs and lows between the two dates.
func (p *RepositoryProvider) ReturnOverWindow(ctx context.Context, stockCode string, start, end time.Time) (*WindowReturn, error) {
	startPrice, err := p.prices.GetOnOrBefore(ctx, stockCode, start)
	if err != nil {
		return nil, err
	}

	endPrice, err := p.prices.GetOnOrBefore(ctx, stockCode, end)
	if err != nil {
		return nil, err
	}

	window, err := p.prices.GetRange(ctx, stockCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load price window for %s: %w", stockCode, err)
	}
	if len(window) == 0 {
		return nil, models.ErrNotFound
	}

	maxPrice := window[0].High
	minPrice := window[0].Low
	for _, row := range window[1:] {
		if row.High > maxPrice {
			maxPrice = row.High
		}
		if row.Low < minPrice {
			minPrice = row.Low
		}
	}

	startClose := startPrice.Close
	return &WindowReturn{
		StartPrice:     startClose,
		EndPrice:       endPrice.Close,
		ReturnPct:      (endPrice.Close - startClose) / startClose * 100,
		MaxPrice:       maxPrice,
		MinPrice:       minPrice,
		MaxReturnPct:   (maxPrice - startClose) / startClose * 100,
		MaxDrawdownPct: (minPrice - startClose) / startClose * 100,
	}, nil
}
