// Package datasource fetches market data from external providers and
// normalizes it into the shapes the rest of the system stores.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// StockData is a normalized listing entry from any universe provider.
type StockData struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Market string  `json:"market"`
	Sector *string `json:"sector"`
}

// PriceData is one normalized trading day. Prices stay decimal until
// they are converted for storage so provider strings round-trip
// exactly.
type PriceData struct {
	StockCode string          `json:"stock_code"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// FundamentalsData is a normalized point-in-time ratio snapshot.
type FundamentalsData struct {
	StockCode    string    `json:"stock_code"`
	SnapshotDate time.Time `json:"snapshot_date"`
	ReportDate   time.Time `json:"report_date"`

	PER      *float64 `json:"per"`
	PBR      *float64 `json:"pbr"`
	PSR      *float64 `json:"psr"`
	EVEBITDA *float64 `json:"ev_ebitda"`

	ROE             *float64 `json:"roe"`
	ROA             *float64 `json:"roa"`
	OperatingMargin *float64 `json:"operating_margin"`
	NetProfitGrowth *float64 `json:"net_profit_growth"`

	DebtRatio         *float64 `json:"debt_ratio"`
	CurrentRatio      *float64 `json:"current_ratio"`
	InterestCoverage  *float64 `json:"interest_coverage"`
	OperatingCashFlow *float64 `json:"operating_cash_flow"`

	DividendYield            *float64 `json:"dividend_yield"`
	DividendPayoutRatio      *float64 `json:"dividend_payout_ratio"`
	ConsecutiveDividendYears *int     `json:"consecutive_dividend_years"`

	MarketCap *float64 `json:"market_cap"`
}

// UniverseSource lists the tradable universe.
type UniverseSource interface {
	FetchStocks(ctx context.Context, market string) ([]StockData, error)
	Name() string
	IsEnabled() bool
}

// PriceSource fetches daily OHLCV history for one stock or index code.
type PriceSource interface {
	FetchDailyPrices(ctx context.Context, stockCode string, startDate, endDate time.Time) ([]PriceData, error)
	Name() string
	IsEnabled() bool
}

// FundamentalsSource fetches financial ratio snapshots.
type FundamentalsSource interface {
	FetchFundamentals(ctx context.Context, stockCode string, asOf time.Time) (*FundamentalsData, error)
	Name() string
	IsEnabled() bool
}

// SourceError carries which provider failed and a coarse error code so
// ingestion can decide between retrying and giving up.
type SourceError struct {
	Source  string
	Code    string
	Message string
	Err     error
}

func (e SourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// Error codes shared by all providers.
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeDisabled             = "source_disabled"
)

// ErrSourceDisabled is returned when a disabled source is asked to
// fetch.
var ErrSourceDisabled = errors.New("data source is disabled")

// NewSourceError creates a provider error with code and context
func NewSourceError(source, code, message string, err error) SourceError {
	return SourceError{Source: source, Code: code, Message: message, Err: err}
}
