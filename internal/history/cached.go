package history

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/yourusername/value-backtest/internal/models"
)

// CachedProvider memoizes point-in-time lookups. History never changes
// once ingested, so cached answers stay correct for the TTL; caching
// matters because one run asks the same questions for hundreds of
// candidates.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps a provider with an in-memory TTL cache
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func priceKey(stockCode string, date time.Time) string {
	return fmt.Sprintf("price:%s:%s", stockCode, date.Format("2006-01-02"))
}

func fundamentalsKey(stockCode string, date time.Time) string {
	return fmt.Sprintf("fund:%s:%s", stockCode, date.Format("2006-01-02"))
}

func windowKey(stockCode string, start, end time.Time) string {
	return fmt.Sprintf("window:%s:%s:%s", stockCode, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// PriceOnOrBefore returns the closest trading day on or before date,
// serving repeat lookups from the cache.
func (p *CachedProvider) PriceOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error) {
	key := priceKey(stockCode, date)
	if v, ok := p.cache.Get(key); ok {
		return v.(*models.HistoricalStockPrice), nil
	}

	price, err := p.inner.PriceOnOrBefore(ctx, stockCode, date)
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, price)
	return price, nil
}

// FundamentalsOnOrBefore returns the closest snapshot on or before date,
// serving repeat lookups from the cache.
func (p *CachedProvider) FundamentalsOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error) {
	key := fundamentalsKey(stockCode, date)
	if v, ok := p.cache.Get(key); ok {
		return v.(*models.HistoricalFinancialMetrics), nil
	}

	metrics, err := p.inner.FundamentalsOnOrBefore(ctx, stockCode, date)
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, metrics)
	return metrics, nil
}

// ReturnOverWindow measures a holding window, serving repeat lookups
// from the cache.
func (p *CachedProvider) ReturnOverWindow(ctx context.Context, stockCode string, start, end time.Time) (*WindowReturn, error) {
	key := windowKey(stockCode, start, end)
	if v, ok := p.cache.Get(key); ok {
		return v.(*WindowReturn), nil
	}

	window, err := p.inner.ReturnOverWindow(ctx, stockCode, start, end)
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, window)
	return window, nil
}
