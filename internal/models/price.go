package models

import (
	"time"
)

// HistoricalStockPrice is one trading day of OHLCV data for a stock or an
// index proxy. One row per (stock, date).
type HistoricalStockPrice struct {
	StockCode string    `db:"stock_code" json:"stock_code" validate:"required"`
	Date      time.Time `db:"date" json:"date" validate:"required"`
	Open      float64   `db:"open" json:"open"`
	High      float64   `db:"high" json:"high"`
	Low       float64   `db:"low" json:"low"`
	Close     float64   `db:"close" json:"close"`
	Volume    int64     `db:"volume" json:"volume"`
}

// HistoricalFinancialMetrics is a point-in-time snapshot of a company's
// fundamental ratios. SnapshotDate is when the figures became available;
// ReportDate is the underlying report period end.
type HistoricalFinancialMetrics struct {
	StockCode    string    `db:"stock_code" json:"stock_code" validate:"required"`
	SnapshotDate time.Time `db:"snapshot_date" json:"snapshot_date" validate:"required"`
	ReportDate   time.Time `db:"report_date" json:"report_date"`

	// Valuation
	PER      *float64 `db:"per" json:"per"`
	PBR      *float64 `db:"pbr" json:"pbr"`
	PSR      *float64 `db:"psr" json:"psr"`
	EVEBITDA *float64 `db:"ev_ebitda" json:"ev_ebitda"`

	// Profitability
	ROE             *float64 `db:"roe" json:"roe"`
	ROA             *float64 `db:"roa" json:"roa"`
	OperatingMargin *float64 `db:"operating_margin" json:"operating_margin"`
	NetProfitGrowth *float64 `db:"net_profit_growth" json:"net_profit_growth"`

	// Stability
	DebtRatio         *float64 `db:"debt_ratio" json:"debt_ratio"`
	CurrentRatio      *float64 `db:"current_ratio" json:"current_ratio"`
	InterestCoverage  *float64 `db:"interest_coverage" json:"interest_coverage"`
	OperatingCashFlow *float64 `db:"operating_cash_flow" json:"operating_cash_flow"`

	// Dividend
	DividendYield            *float64 `db:"dividend_yield" json:"dividend_yield"`
	DividendPayoutRatio      *float64 `db:"dividend_payout_ratio" json:"dividend_payout_ratio"`
	ConsecutiveDividendYears *int     `db:"consecutive_dividend_years" json:"consecutive_dividend_years"`

	MarketCap *float64 `db:"market_cap" json:"market_cap"`
}
