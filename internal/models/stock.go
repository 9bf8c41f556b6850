package models

import (
	"time"
)

// Market identifiers understood by the screener and the backtester.
const (
	MarketKOSPI  = "KOSPI"
	MarketKOSDAQ = "KOSDAQ"
	MarketAll    = "ALL"
)

// Benchmark index codes used for market comparison. The index series are
// stored alongside ordinary stocks in the historical price table.
const (
	IndexKOSPI  = "KS11"
	IndexKOSDAQ = "KQ11"
)

// Stock represents a listed company in the tradable universe
type Stock struct {
	Code      string    `db:"code" json:"code" validate:"required"`
	Name      string    `db:"name" json:"name" validate:"required"`
	Market    string    `db:"market" json:"market" validate:"required,oneof=KOSPI KOSDAQ"`
	Sector    *string   `db:"sector" json:"sector"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BenchmarkIndexCode returns the index proxy for a market filter.
// KOSDAQ gets its own index; everything else falls back to KOSPI.
func BenchmarkIndexCode(market string) string {
	if market == MarketKOSDAQ {
		return IndexKOSDAQ
	}
	return IndexKOSPI
}
