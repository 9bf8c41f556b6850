package models

import (
	"time"
)

// ValueScore is a persisted composite score for a stock on a given date.
// Scores are upserted per (stock, date): recomputing on the same day
// overwrites the existing row.
type ValueScore struct {
	StockCode string    `db:"stock_code" json:"stock_code" validate:"required"`
	Date      time.Time `db:"date" json:"date" validate:"required"`

	TotalScore         float64 `db:"total_score" json:"total_score"`
	ValuationScore     float64 `db:"valuation_score" json:"valuation_score"`
	ProfitabilityScore float64 `db:"profitability_score" json:"profitability_score"`
	StabilityScore     float64 `db:"stability_score" json:"stability_score"`
	DividendScore      float64 `db:"dividend_score" json:"dividend_score"`

	UpsidePotential *float64 `db:"upside_potential" json:"upside_potential"`
	Summary         string   `db:"summary" json:"summary"`
	Strengths       []string `db:"strengths" json:"strengths"`
	Risks           []string `db:"risks" json:"risks"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
