package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/history"
	"github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/metrics"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scoring"
)

// topPicks is how many of the highest-scoring candidates become
// recommendations in a run.
const topPicks = 20

// ErrNoRecommendations means no candidate had both a point-in-time
// price and fundamentals at the simulation date. The run fails rather
// than completing empty so a data gap stays visible.
var ErrNoRecommendations = errors.New("no recommendations generated")

// Engine executes backtest runs: it ranks candidates at the simulation
// date using only data available by then, measures what happened over
// the holding period, and aggregates run-level statistics.
type Engine struct {
	runs     repository.RunRepository
	recs     repository.RecommendationRepository
	stocks   repository.StockRepository
	provider history.Provider
	scorer   *scoring.Scorer
	log      *logger.RunLogger
}

// NewEngine creates a new backtest engine
func NewEngine(
	runs repository.RunRepository,
	recs repository.RecommendationRepository,
	stocks repository.StockRepository,
	provider history.Provider,
	scorer *scoring.Scorer,
	log *logger.RunLogger,
) (*Engine, error) {
	if runs == nil || recs == nil || stocks == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if provider == nil {
		return nil, fmt.Errorf("history provider is required")
	}
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	if log == nil {
		log = logger.NewRunLogger(logrus.New())
	}

	return &Engine{
		runs:     runs,
		recs:     recs,
		stocks:   stocks,
		provider: provider,
		scorer:   scorer,
		log:      log,
	}, nil
}

// Execute runs one backtest to completion. Exactly one caller can move
// a run out of pending; a second attempt on the same id gets
// models.ErrRunNotPending. Any failure after the claim, including the
// final results write, marks the run failed with the cause recorded,
// and the error is returned.
func (e *Engine) Execute(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	run, err := e.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	if err := e.runs.MarkRunning(ctx, id, startedAt); err != nil {
		return nil, err
	}
	run.Status = models.RunStatusRunning
	run.StartedAt = &startedAt

	e.log.LogRunStarted(id.String(), run.Name, run.Market, run.SimulationDate.Format("2006-01-02"))

	if err := e.execute(ctx, run); err != nil {
		e.fail(ctx, run, err)
		metrics.RecordBacktestRun(strategyLabel(run), "failed", time.Since(startedAt).Seconds())
		return run, err
	}

	completedAt := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &completedAt
	if err := e.runs.UpdateResults(ctx, run); err != nil {
		err = fmt.Errorf("failed to record run completion: %w", err)
		e.fail(ctx, run, err)
		metrics.RecordBacktestRun(strategyLabel(run), "failed", time.Since(startedAt).Seconds())
		return run, err
	}

	evaluated := 0
	if run.TotalRecommendations != nil {
		evaluated = *run.TotalRecommendations
	}
	avgReturn, winRate := 0.0, 0.0
	if run.AvgReturnPct != nil {
		avgReturn = *run.AvgReturnPct
	}
	if run.WinRatePct != nil {
		winRate = *run.WinRatePct
	}
	e.log.LogRunCompleted(id.String(), evaluated, avgReturn, winRate,
		float64(time.Since(startedAt).Milliseconds()))
	metrics.RecordBacktestRun(strategyLabel(run), "completed", time.Since(startedAt).Seconds())

	return run, nil
}

// strategyLabel is the metric label for a run's ranking strategy.
func strategyLabel(run *models.BacktestRun) string {
	if run.StrategyType != nil && *run.StrategyType != "" {
		return *run.StrategyType
	}
	return "value_score"
}

// execute is the run body; any error here fails the run.
func (e *Engine) execute(ctx context.Context, run *models.BacktestRun) error {
	recommendations, err := e.generateRecommendations(ctx, run)
	if err != nil {
		return err
	}

	if err := e.recs.InsertBatch(ctx, recommendations); err != nil {
		return fmt.Errorf("failed to persist recommendations: %w", err)
	}

	if err := e.evaluatePerformance(ctx, run, recommendations); err != nil {
		return err
	}

	return e.computeStatistics(ctx, run, recommendations)
}

func (e *Engine) fail(ctx context.Context, run *models.BacktestRun, cause error) {
	e.log.LogRunFailed(run.ID.String(), cause)

	completedAt := time.Now().UTC()
	if err := e.runs.MarkFailed(ctx, run.ID, cause.Error(), completedAt); err != nil {
		e.log.WithError(err).WithField("run_id", run.ID.String()).
			Error("Failed to record run failure")
		return
	}

	run.Status = models.RunStatusFailed
	msg := cause.Error()
	run.ErrorMessage = &msg
	run.CompletedAt = &completedAt
}

type scoredCandidate struct {
	stock   *models.Stock
	price   float64
	score   *models.ValueScore
	metrics *models.HistoricalFinancialMetrics
}

// generateRecommendations ranks the market's candidates as of the
// simulation date. A named strategy currently defers to the same
// value-score ranking; replaying strategy-specific decisions against
// history is an open gap, so the fallback is logged rather than hidden.
func (e *Engine) generateRecommendations(ctx context.Context, run *models.BacktestRun) ([]*models.BacktestRecommendation, error) {
	if run.StrategyType != nil && *run.StrategyType != "" {
		e.log.WithFields(logrus.Fields{
			"run_id":   run.ID.String(),
			"strategy": *run.StrategyType,
		}).Warn("Strategy-specific ranking not implemented, falling back to value score")
	}

	start := time.Now()

	stocks, err := e.stocks.GetByMarket(ctx, run.Market)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate universe: %w", err)
	}

	var candidates []scoredCandidate
	for _, stock := range stocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		price, err := e.provider.PriceOnOrBefore(ctx, stock.Code, run.SimulationDate)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load price for %s: %w", stock.Code, err)
		}

		metrics, err := e.provider.FundamentalsOnOrBefore(ctx, stock.Code, run.SimulationDate)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load fundamentals for %s: %w", stock.Code, err)
		}

		candidates = append(candidates, scoredCandidate{
			stock:   stock,
			price:   price.Close,
			score:   e.scorer.Score(metrics),
			metrics: metrics,
		})
	}

	if len(candidates) == 0 {
		return nil, ErrNoRecommendations
	}

	// Highest score first; equal scores fall back to stock code so two
	// executions of the same configuration rank identically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score.TotalScore != candidates[j].score.TotalScore {
			return candidates[i].score.TotalScore > candidates[j].score.TotalScore
		}
		return candidates[i].stock.Code < candidates[j].stock.Code
	})

	selected := candidates
	if len(selected) > topPicks {
		selected = selected[:topPicks]
	}

	recommendations := make([]*models.BacktestRecommendation, 0, len(selected))
	for i, c := range selected {
		total := c.score.TotalScore
		recommendations = append(recommendations, &models.BacktestRecommendation{
			ID:             uuid.New(),
			RunID:          run.ID,
			StockCode:      c.stock.Code,
			StockName:      c.stock.Name,
			Rank:           i + 1,
			ValueScore:     &total,
			UpsidePct:      c.score.UpsidePotential,
			PriceAtRec:     c.price,
			PERAtRec:       c.metrics.PER,
			PBRAtRec:       c.metrics.PBR,
			ROEAtRec:       c.metrics.ROE,
			DebtRatioAtRec: c.metrics.DebtRatio,
			MarketCapAtRec: c.metrics.MarketCap,
			Sector:         c.stock.Sector,
		})
	}

	e.log.LogRecommendationsGenerated(run.ID.String(), len(stocks), len(candidates),
		len(recommendations), float64(time.Since(start).Milliseconds()))

	return recommendations, nil
}

// evaluatePerformance fills in the holding-period outcome for each
// recommendation. A stock with no resolvable prices keeps null outcome
// fields and simply drops out of the aggregates.
func (e *Engine) evaluatePerformance(ctx context.Context, run *models.BacktestRun, recommendations []*models.BacktestRecommendation) error {
	endDate := run.HoldingPeriodEnd()

	for _, rec := range recommendations {
		window, err := e.provider.ReturnOverWindow(ctx, rec.StockCode, run.SimulationDate, endDate)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to evaluate %s: %w", rec.StockCode, err)
		}

		rec.PriceAfterHolding = &window.EndPrice
		rec.ActualReturnPct = &window.ReturnPct
		rec.MaxPriceDuring = &window.MaxPrice
		rec.MinPriceDuring = &window.MinPrice
		rec.MaxReturnPct = &window.MaxReturnPct
		rec.MaxDrawdownPct = &window.MaxDrawdownPct

		// A predicted upside of exactly 0 still gets its delta; only a
		// missing estimate leaves the field null.
		if rec.UpsidePct != nil {
			delta := window.ReturnPct - *rec.UpsidePct
			rec.ExceededPrediction = &delta
		}

		if err := e.recs.UpdateOutcome(ctx, rec); err != nil {
			return fmt.Errorf("failed to persist outcome for %s: %w", rec.StockCode, err)
		}
		metrics.RecordRecommendationReturn(strategyLabel(run), window.ReturnPct)
	}

	return nil
}

// computeStatistics aggregates the evaluated recommendations onto the
// run. With nothing evaluated the aggregate fields stay null.
func (e *Engine) computeStatistics(ctx context.Context, run *models.BacktestRun, recommendations []*models.BacktestRecommendation) error {
	var returns, drawdowns []float64
	for _, rec := range recommendations {
		if !rec.HasOutcome() {
			continue
		}
		returns = append(returns, *rec.ActualReturnPct)
		if rec.MaxDrawdownPct != nil {
			drawdowns = append(drawdowns, *rec.MaxDrawdownPct)
		}
	}

	if len(returns) == 0 {
		e.log.WithField("run_id", run.ID.String()).
			Warn("No recommendations with performance data")
		return nil
	}

	count := len(returns)
	avg := mean(returns)
	med := median(returns)
	best := returns[0]
	worst := returns[0]
	for _, r := range returns[1:] {
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}
	win := winRatePct(returns)
	vol := sampleStdDev(returns)
	sharpe := sharpeRatio(avg, vol)

	run.TotalRecommendations = &count
	run.AvgReturnPct = &avg
	run.MedianReturnPct = &med
	run.BestReturnPct = &best
	run.WorstReturnPct = &worst
	run.WinRatePct = &win
	run.VolatilityPct = &vol
	run.SharpeRatio = &sharpe

	if benchmark := e.benchmarkReturn(ctx, run); benchmark != nil {
		alpha := avg - *benchmark
		run.MarketIndexReturnPct = benchmark
		run.AlphaPct = &alpha
	}

	if len(drawdowns) > 0 {
		maxDD := drawdowns[0]
		for _, d := range drawdowns[1:] {
			if d < maxDD {
				maxDD = d
			}
		}
		run.MaxDrawdownPct = &maxDD
	}

	return nil
}

// benchmarkReturn measures the market index proxy over the identical
// window. A missing index series is not an error; the benchmark fields
// just stay null.
func (e *Engine) benchmarkReturn(ctx context.Context, run *models.BacktestRun) *float64 {
	indexCode := models.BenchmarkIndexCode(run.Market)

	window, err := e.provider.ReturnOverWindow(ctx, indexCode, run.SimulationDate, run.HoldingPeriodEnd())
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			e.log.WithError(err).WithField("index_code", indexCode).
				Warn("Failed to resolve benchmark return")
		}
		return nil
	}

	return &window.ReturnPct
}
