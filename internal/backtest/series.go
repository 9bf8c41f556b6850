package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

// RunConfig describes one backtest to create.
type RunConfig struct {
	Name                string  `json:"name" validate:"required"`
	StrategyType        *string `json:"strategy_type"`
	Market              string  `json:"market" validate:"required,oneof=KOSPI KOSDAQ ALL"`
	SimulationDate      string  `json:"simulation_date" validate:"required"`
	LookbackYears       int     `json:"lookback_years" validate:"required,gt=0"`
	HoldingPeriodMonths int     `json:"holding_period_months" validate:"required,gt=0"`
}

// SeriesConfig describes a series of backtests sampled over a period.
type SeriesConfig struct {
	Name                string  `json:"name" validate:"required"`
	StrategyType        *string `json:"strategy_type"`
	Market              string  `json:"market" validate:"required,oneof=KOSPI KOSDAQ ALL"`
	StartDate           string  `json:"start_date" validate:"required"`
	EndDate             string  `json:"end_date" validate:"required"`
	LookbackYears       int     `json:"lookback_years" validate:"required,gt=0"`
	HoldingPeriodMonths int     `json:"holding_period_months" validate:"required,gt=0"`
	Cadence             Cadence `json:"cadence" validate:"required"`
}

// Planner creates pending runs for later execution.
type Planner struct {
	runs repository.RunRepository
}

// NewPlanner creates a run planner
func NewPlanner(runs repository.RunRepository) *Planner {
	return &Planner{runs: runs}
}

// CreateRun creates one pending run at the given simulation date.
func (p *Planner) CreateRun(ctx context.Context, cfg RunConfig) (*models.BacktestRun, error) {
	simDate, err := time.Parse("2006-01-02", cfg.SimulationDate)
	if err != nil {
		return nil, fmt.Errorf("invalid simulation date %q: %w", cfg.SimulationDate, err)
	}

	run := &models.BacktestRun{
		ID:                  uuid.New(),
		Name:                cfg.Name,
		StrategyType:        cfg.StrategyType,
		Market:              cfg.Market,
		SimulationDate:      simDate,
		LookbackYears:       cfg.LookbackYears,
		HoldingPeriodMonths: cfg.HoldingPeriodMonths,
		Status:              models.RunStatusPending,
	}

	if err := p.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// CreateSeries creates one pending run per simulation date sampled from
// [start, end] at the configured cadence. Run names carry the sampled
// month so a series reads chronologically in listings.
func (p *Planner) CreateSeries(ctx context.Context, cfg SeriesConfig) ([]*models.BacktestRun, error) {
	start, err := time.Parse("2006-01-02", cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", cfg.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", cfg.EndDate, err)
	}

	dates, err := GenerateSimulationDates(start, end, cfg.Cadence)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.BacktestRun, 0, len(dates))
	for _, simDate := range dates {
		runs = append(runs, &models.BacktestRun{
			ID:                  uuid.New(),
			Name:                fmt.Sprintf("%s - %s", cfg.Name, simDate.Format("2006-01")),
			StrategyType:        cfg.StrategyType,
			Market:              cfg.Market,
			SimulationDate:      simDate,
			LookbackYears:       cfg.LookbackYears,
			HoldingPeriodMonths: cfg.HoldingPeriodMonths,
			Status:              models.RunStatusPending,
		})
	}

	if err := p.runs.CreateBatch(ctx, runs); err != nil {
		return nil, err
	}

	return runs, nil
}
