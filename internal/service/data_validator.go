package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/datasource"
	"github.com/yourusername/value-backtest/internal/models"
)

// KRX short codes are six digits; listings sometimes arrive without
// leading zeros.
const stockCodeLength = 6

// DataValidator checks fetched market data before it reaches storage.
// Each Validate method returns the list of violations; an empty list
// means the row is storable.
type DataValidator struct {
	log *logrus.Logger
}

// NewDataValidator creates a new data validator
func NewDataValidator(log *logrus.Logger) *DataValidator {
	if log == nil {
		log = logrus.New()
	}
	return &DataValidator{log: log}
}

// ValidateListing validates a universe listing entry
func (v *DataValidator) ValidateListing(listing *datasource.StockData) []string {
	var errors []string

	if listing.Code == "" {
		errors = append(errors, "stock code is required")
	} else if len(listing.Code) != stockCodeLength {
		errors = append(errors, fmt.Sprintf("stock code must be %d characters, got %q", stockCodeLength, listing.Code))
	}

	if listing.Name == "" {
		errors = append(errors, "stock name is required")
	}

	if listing.Market != models.MarketKOSPI && listing.Market != models.MarketKOSDAQ {
		errors = append(errors, fmt.Sprintf("unknown market %q", listing.Market))
	}

	return errors
}

// ValidatePrice validates one daily quote
func (v *DataValidator) ValidatePrice(quote *datasource.PriceData) []string {
	var errors []string

	if quote.StockCode == "" {
		errors = append(errors, "stock code is required")
	}

	if quote.Date.IsZero() {
		errors = append(errors, "trade date is required")
	} else if quote.Date.After(time.Now().AddDate(0, 0, 1)) {
		errors = append(errors, fmt.Sprintf("trade date %s is in the future", quote.Date.Format("2006-01-02")))
	}

	if quote.Close.IsNegative() || quote.Close.IsZero() {
		errors = append(errors, fmt.Sprintf("close must be positive, got %s", quote.Close))
	}
	if quote.Low.IsNegative() {
		errors = append(errors, fmt.Sprintf("low cannot be negative, got %s", quote.Low))
	}
	if quote.High.LessThan(quote.Low) {
		errors = append(errors, fmt.Sprintf("high %s is below low %s", quote.High, quote.Low))
	}
	if quote.Volume < 0 {
		errors = append(errors, fmt.Sprintf("volume cannot be negative, got %d", quote.Volume))
	}

	return errors
}

// ValidateFundamentals validates a ratio snapshot
func (v *DataValidator) ValidateFundamentals(snap *datasource.FundamentalsData) []string {
	var errors []string

	if snap.StockCode == "" {
		errors = append(errors, "stock code is required")
	}
	if snap.SnapshotDate.IsZero() {
		errors = append(errors, "snapshot date is required")
	}
	if !snap.ReportDate.IsZero() && snap.ReportDate.After(snap.SnapshotDate) {
		errors = append(errors, "report date cannot be after the snapshot date")
	}

	// Ratios that are percentages of balance-sheet positions cannot
	// go below zero; valuation multiples can (negative earnings).
	if snap.CurrentRatio != nil && *snap.CurrentRatio < 0 {
		errors = append(errors, fmt.Sprintf("current ratio cannot be negative, got %.2f", *snap.CurrentRatio))
	}
	if snap.DebtRatio != nil && *snap.DebtRatio < 0 {
		errors = append(errors, fmt.Sprintf("debt ratio cannot be negative, got %.2f", *snap.DebtRatio))
	}
	if snap.DividendYield != nil && *snap.DividendYield < 0 {
		errors = append(errors, fmt.Sprintf("dividend yield cannot be negative, got %.2f", *snap.DividendYield))
	}
	if snap.ConsecutiveDividendYears != nil && *snap.ConsecutiveDividendYears < 0 {
		errors = append(errors, "consecutive dividend years cannot be negative")
	}

	return errors
}

// NormalizeListing canonicalizes a listing in place: codes are padded
// to six digits and market labels mapped to the internal names.
func (v *DataValidator) NormalizeListing(listing *datasource.StockData) {
	listing.Code = NormalizeStockCode(listing.Code)
	listing.Market = normalizeMarket(listing.Market)
	listing.Name = strings.TrimSpace(listing.Name)
}

// NormalizeStockCode pads a numeric short code with leading zeros.
func NormalizeStockCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) >= stockCodeLength || code == "" {
		return code
	}
	return strings.Repeat("0", stockCodeLength-len(code)) + code
}

// normalizeMarket maps provider market labels to internal names. KRX
// reports its segments as STK and KSQ.
func normalizeMarket(market string) string {
	switch strings.ToUpper(strings.TrimSpace(market)) {
	case "STK", "KOSPI":
		return models.MarketKOSPI
	case "KSQ", "KOSDAQ":
		return models.MarketKOSDAQ
	default:
		return strings.ToUpper(strings.TrimSpace(market))
	}
}
