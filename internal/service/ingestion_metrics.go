package service

import (
	"sync"
	"time"

	"github.com/yourusername/value-backtest/internal/metrics"
)

// IngestionTotals is a point-in-time copy of ingestion counters
type IngestionTotals struct {
	StartTime           time.Time
	Duration            time.Duration
	StocksUpserted      int
	PriceRowsInserted   int
	FundamentalsFetched int
	Skipped             int
	Errors              int
}

// IngestionReport tracks statistics for one ingestion pass
type IngestionReport struct {
	mu     sync.RWMutex
	totals IngestionTotals
}

// NewIngestionReport creates a new report tracker
func NewIngestionReport() *IngestionReport {
	return &IngestionReport{
		totals: IngestionTotals{StartTime: time.Now()},
	}
}

// RecordStock increments the upserted stock count
func (r *IngestionReport) RecordStock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.StocksUpserted++
	metrics.RecordIngestedRows("stocks", 1)
}

// RecordPriceRows adds to the inserted price row count
func (r *IngestionReport) RecordPriceRows(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.PriceRowsInserted += n
	metrics.RecordIngestedRows("prices", n)
}

// RecordFundamentals increments the fetched snapshot count
func (r *IngestionReport) RecordFundamentals() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.FundamentalsFetched++
	metrics.RecordIngestedRows("fundamentals", 1)
}

// RecordSkip increments the skipped count (no data at the source)
func (r *IngestionReport) RecordSkip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Skipped++
}

// RecordError increments the error count
func (r *IngestionReport) RecordError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Errors++
	metrics.RecordIngestionError()
}

// Finish stamps the total duration
func (r *IngestionReport) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Duration = time.Since(r.totals.StartTime)
}

// merge folds another report's counters into this one
func (r *IngestionReport) merge(other *IngestionReport) {
	if other == nil {
		return
	}
	snap := other.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.StocksUpserted += snap.StocksUpserted
	r.totals.PriceRowsInserted += snap.PriceRowsInserted
	r.totals.FundamentalsFetched += snap.FundamentalsFetched
	r.totals.Skipped += snap.Skipped
	r.totals.Errors += snap.Errors
}

// Snapshot returns a copy safe to read after concurrent recording
func (r *IngestionReport) Snapshot() IngestionTotals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals
}
