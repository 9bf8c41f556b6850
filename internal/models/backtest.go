package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a backtest run. Transitions only
// move forward: pending -> running -> completed|failed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// BacktestRun is one point-in-time simulation: generate recommendations
// as of SimulationDate, hold for HoldingPeriodMonths, measure what
// happened. Aggregate fields stay nil until the run completes.
type BacktestRun struct {
	ID uuid.UUID `db:"id" json:"id" validate:"required,uuid4"`

	Name         string  `db:"name" json:"name" validate:"required"`
	StrategyType *string `db:"strategy_type" json:"strategy_type"`
	Market       string  `db:"market" json:"market" validate:"required,oneof=KOSPI KOSDAQ ALL"`

	SimulationDate      time.Time `db:"simulation_date" json:"simulation_date" validate:"required"`
	LookbackYears       int       `db:"lookback_years" json:"lookback_years" validate:"required,gt=0"`
	HoldingPeriodMonths int       `db:"holding_period_months" json:"holding_period_months" validate:"required,gt=0"`

	Status       RunStatus  `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at"`
	ErrorMessage *string    `db:"error_message" json:"error_message"`

	TotalRecommendations *int     `db:"total_recommendations" json:"total_recommendations"`
	AvgReturnPct         *float64 `db:"avg_return_pct" json:"avg_return_pct"`
	MedianReturnPct      *float64 `db:"median_return_pct" json:"median_return_pct"`
	WinRatePct           *float64 `db:"win_rate_pct" json:"win_rate_pct"`
	BestReturnPct        *float64 `db:"best_return_pct" json:"best_return_pct"`
	WorstReturnPct       *float64 `db:"worst_return_pct" json:"worst_return_pct"`

	MarketIndexReturnPct *float64 `db:"market_index_return_pct" json:"market_index_return_pct"`
	AlphaPct             *float64 `db:"alpha_pct" json:"alpha_pct"`

	VolatilityPct  *float64 `db:"volatility_pct" json:"volatility_pct"`
	SharpeRatio    *float64 `db:"sharpe_ratio" json:"sharpe_ratio"`
	MaxDrawdownPct *float64 `db:"max_drawdown_pct" json:"max_drawdown_pct"`
}

// StrategyLabel returns the strategy grouping key, with runs that carry
// no strategy bucketed under the value-score baseline.
func (r *BacktestRun) StrategyLabel() string {
	if r.StrategyType == nil || *r.StrategyType == "" {
		return StrategyBaseline
	}
	return *r.StrategyType
}

// StrategyBaseline is the grouping label for runs ranked purely by
// value score (no named strategy).
const StrategyBaseline = "Value Score"

// HoldingPeriodEnd returns the end of the holding window. Months are a
// fixed 30 days; changing this to calendar months would change every
// historical result, so the approximation is kept on purpose.
func (r *BacktestRun) HoldingPeriodEnd() time.Time {
	return r.SimulationDate.AddDate(0, 0, 30*r.HoldingPeriodMonths)
}

// BacktestRecommendation is one ranked stock pick inside a run, with the
// scoring snapshot captured at the simulation date and outcome fields
// filled in after the holding period is evaluated.
type BacktestRecommendation struct {
	ID    uuid.UUID `db:"id" json:"id"`
	RunID uuid.UUID `db:"run_id" json:"run_id" validate:"required"`

	StockCode string `db:"stock_code" json:"stock_code" validate:"required"`
	StockName string `db:"stock_name" json:"stock_name" validate:"required"`

	// Recommendation snapshot at the simulation date
	Rank            int      `db:"rank" json:"rank" validate:"required,gt=0"`
	ValueScore      *float64 `db:"value_score" json:"value_score"`
	UpsidePct       *float64 `db:"upside_pct" json:"upside_pct"`
	Confidence      *float64 `db:"confidence" json:"confidence"`
	Rationale       *string  `db:"rationale" json:"rationale"`
	PriceAtRec      float64  `db:"price_at_rec" json:"price_at_rec"`
	PERAtRec        *float64 `db:"per_at_rec" json:"per_at_rec"`
	PBRAtRec        *float64 `db:"pbr_at_rec" json:"pbr_at_rec"`
	ROEAtRec        *float64 `db:"roe_at_rec" json:"roe_at_rec"`
	DebtRatioAtRec  *float64 `db:"debt_ratio_at_rec" json:"debt_ratio_at_rec"`
	MarketCapAtRec  *float64 `db:"market_cap_at_rec" json:"market_cap_at_rec"`

	// Outcome, populated only once the holding period is evaluated.
	// Either all of these are nil or all are set.
	PriceAfterHolding  *float64 `db:"price_after_holding" json:"price_after_holding"`
	ActualReturnPct    *float64 `db:"actual_return_pct" json:"actual_return_pct"`
	ExceededPrediction *float64 `db:"exceeded_prediction" json:"exceeded_prediction"`
	MaxPriceDuring     *float64 `db:"max_price_during" json:"max_price_during"`
	MinPriceDuring     *float64 `db:"min_price_during" json:"min_price_during"`
	MaxReturnPct       *float64 `db:"max_return_pct" json:"max_return_pct"`
	MaxDrawdownPct     *float64 `db:"max_drawdown_pct" json:"max_drawdown_pct"`

	Sector *string `db:"sector" json:"sector"`
	Notes  *string `db:"notes" json:"notes"`
}

// HasOutcome reports whether the holding period has been evaluated.
func (r *BacktestRecommendation) HasOutcome() bool {
	return r.ActualReturnPct != nil
}
