// Package analytics aggregates completed backtest runs into cross-run
// reports. Everything here is read-only over persisted state.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

var (
	// ErrNoCompletedRuns means there is nothing to aggregate yet.
	ErrNoCompletedRuns = errors.New("no completed backtest runs found")

	// ErrNoRecommendations means the run has no recommendations to
	// analyze.
	ErrNoRecommendations = errors.New("no recommendations found")
)

// Service computes cross-run reports from persisted runs and
// recommendations.
type Service struct {
	runs repository.RunRepository
	recs repository.RecommendationRepository
	log  *logrus.Logger
}

// NewService creates an analytics service
func NewService(runs repository.RunRepository, recs repository.RecommendationRepository, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{runs: runs, recs: recs, log: log}
}

func (s *Service) completedRuns(ctx context.Context) ([]*models.BacktestRun, error) {
	status := models.RunStatusCompleted
	runs, err := s.runs.List(ctx, repository.RunFilter{Status: &status})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs: %w", err)
	}
	return runs, nil
}

func safeAverage(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return &avg
}

// StrategyStats are per-strategy averages over completed runs.
type StrategyStats struct {
	TotalRuns      int      `json:"total_runs"`
	AvgReturnPct   *float64 `json:"avg_return_pct"`
	AvgWinRatePct  *float64 `json:"avg_win_rate_pct"`
	AvgSharpeRatio *float64 `json:"avg_sharpe_ratio"`
	AvgAlphaPct    *float64 `json:"avg_alpha_pct"`
}

// BestStrategy names the winning strategy for one metric.
type BestStrategy struct {
	Strategy string   `json:"strategy"`
	Value    *float64 `json:"value"`
}

// StrategyComparison groups completed runs by strategy label and names
// the best group by each headline metric.
type StrategyComparison struct {
	Strategies     map[string]*StrategyStats `json:"strategies"`
	BestByReturn   *BestStrategy             `json:"best_by_return"`
	BestBySharpe   *BestStrategy             `json:"best_by_sharpe"`
	BestByWinRate  *BestStrategy             `json:"best_by_win_rate"`
	TotalBacktests int                       `json:"total_backtests"`
}

// CompareStrategies groups completed runs by strategy label. Runs with
// no strategy are grouped under the value-score baseline. Ties on a
// metric go to the lexicographically first label so repeated calls
// agree.
func (s *Service) CompareStrategies(ctx context.Context) (*StrategyComparison, error) {
	runs, err := s.completedRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoCompletedRuns
	}

	type accumulator struct {
		returns, winRates, sharpes, alphas []float64
		count                              int
	}
	groups := make(map[string]*accumulator)
	for _, run := range runs {
		label := run.StrategyLabel()
		acc, ok := groups[label]
		if !ok {
			acc = &accumulator{}
			groups[label] = acc
		}
		acc.count++
		if run.AvgReturnPct != nil {
			acc.returns = append(acc.returns, *run.AvgReturnPct)
		}
		if run.WinRatePct != nil {
			acc.winRates = append(acc.winRates, *run.WinRatePct)
		}
		if run.SharpeRatio != nil {
			acc.sharpes = append(acc.sharpes, *run.SharpeRatio)
		}
		if run.AlphaPct != nil {
			acc.alphas = append(acc.alphas, *run.AlphaPct)
		}
	}

	comparison := &StrategyComparison{
		Strategies:     make(map[string]*StrategyStats, len(groups)),
		TotalBacktests: len(runs),
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		acc := groups[label]
		stats := &StrategyStats{
			TotalRuns:      acc.count,
			AvgReturnPct:   safeAverage(acc.returns),
			AvgWinRatePct:  safeAverage(acc.winRates),
			AvgSharpeRatio: safeAverage(acc.sharpes),
			AvgAlphaPct:    safeAverage(acc.alphas),
		}
		comparison.Strategies[label] = stats

		comparison.BestByReturn = better(comparison.BestByReturn, label, stats.AvgReturnPct)
		comparison.BestBySharpe = better(comparison.BestBySharpe, label, stats.AvgSharpeRatio)
		comparison.BestByWinRate = better(comparison.BestByWinRate, label, stats.AvgWinRatePct)
	}

	return comparison, nil
}

// better keeps the incumbent on ties; labels arrive in sorted order so
// the first label wins.
func better(current *BestStrategy, label string, value *float64) *BestStrategy {
	if value == nil {
		return current
	}
	if current == nil || current.Value == nil || *value > *current.Value {
		return &BestStrategy{Strategy: label, Value: value}
	}
	return current
}

// SectorStats summarizes evaluated recommendations within one sector.
type SectorStats struct {
	AvgReturnPct   float64 `json:"avg_return_pct"`
	TotalStocks    int     `json:"total_stocks"`
	WinRatePct     float64 `json:"win_rate_pct"`
	BestReturnPct  float64 `json:"best_return_pct"`
	WorstReturnPct float64 `json:"worst_return_pct"`
}

// ScoreRangeStats summarizes evaluated recommendations within one
// value-score bucket.
type ScoreRangeStats struct {
	AvgReturnPct float64 `json:"avg_return_pct"`
	Count        int     `json:"count"`
	WinRatePct   float64 `json:"win_rate_pct"`
}

// Performer is one top or bottom entry in a pattern analysis.
type Performer struct {
	StockCode  string   `json:"stock_code"`
	StockName  string   `json:"stock_name"`
	ReturnPct  *float64 `json:"return_pct"`
	ValueScore *float64 `json:"value_score"`
	Sector     *string  `json:"sector"`
}

// PredictionAccuracy tabulates how actual returns compared to the
// predicted upside.
type PredictionAccuracy struct {
	TotalWithPredictions int      `json:"total_with_predictions"`
	ExceededCount        int      `json:"exceeded_count"`
	MissedCount          int      `json:"missed_count"`
	ExceededRatePct      *float64 `json:"exceeded_rate_pct"`
}

// PatternAnalysis is the per-run breakdown of where returns came from.
type PatternAnalysis struct {
	SectorPerformance  map[string]*SectorStats     `json:"sector_performance"`
	ScorePerformance   map[string]*ScoreRangeStats `json:"value_score_performance"`
	TopPerformers      []*Performer                `json:"top_performers"`
	BottomPerformers   []*Performer                `json:"bottom_performers"`
	PredictionAccuracy PredictionAccuracy          `json:"prediction_accuracy"`
}

// scoreBucket buckets a composite score the way reports group them.
func scoreBucket(score float64) string {
	switch {
	case score >= 80:
		return "80-100"
	case score >= 60:
		return "60-80"
	case score >= 40:
		return "40-60"
	default:
		return "0-40"
	}
}

// AnalyzePatterns breaks one run's recommendations down by sector and
// score range, lists the five best and worst performers, and tabulates
// prediction accuracy.
func (s *Service) AnalyzePatterns(ctx context.Context, runID uuid.UUID) (*PatternAnalysis, error) {
	recs, err := s.recs.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNoRecommendations
	}

	analysis := &PatternAnalysis{
		SectorPerformance: make(map[string]*SectorStats),
		ScorePerformance:  make(map[string]*ScoreRangeStats),
	}

	type bucket struct {
		returns []float64
		wins    int
	}
	sectors := make(map[string]*bucket)
	ranges := make(map[string]*bucket)
	var evaluated []*models.BacktestRecommendation

	for _, rec := range recs {
		if !rec.HasOutcome() {
			continue
		}
		evaluated = append(evaluated, rec)
		ret := *rec.ActualReturnPct

		if rec.Sector != nil {
			b, ok := sectors[*rec.Sector]
			if !ok {
				b = &bucket{}
				sectors[*rec.Sector] = b
			}
			b.returns = append(b.returns, ret)
			if ret > 0 {
				b.wins++
			}
		}

		if rec.ValueScore != nil {
			key := scoreBucket(*rec.ValueScore)
			b, ok := ranges[key]
			if !ok {
				b = &bucket{}
				ranges[key] = b
			}
			b.returns = append(b.returns, ret)
			if ret > 0 {
				b.wins++
			}
		}
	}

	for sector, b := range sectors {
		best, worst := b.returns[0], b.returns[0]
		sum := 0.0
		for _, r := range b.returns {
			sum += r
			if r > best {
				best = r
			}
			if r < worst {
				worst = r
			}
		}
		analysis.SectorPerformance[sector] = &SectorStats{
			AvgReturnPct:   sum / float64(len(b.returns)),
			TotalStocks:    len(b.returns),
			WinRatePct:     float64(b.wins) / float64(len(b.returns)) * 100,
			BestReturnPct:  best,
			WorstReturnPct: worst,
		}
	}

	for key, b := range ranges {
		sum := 0.0
		for _, r := range b.returns {
			sum += r
		}
		analysis.ScorePerformance[key] = &ScoreRangeStats{
			AvgReturnPct: sum / float64(len(b.returns)),
			Count:        len(b.returns),
			WinRatePct:   float64(b.wins) / float64(len(b.returns)) * 100,
		}
	}

	sort.Slice(evaluated, func(i, j int) bool {
		if *evaluated[i].ActualReturnPct != *evaluated[j].ActualReturnPct {
			return *evaluated[i].ActualReturnPct > *evaluated[j].ActualReturnPct
		}
		return evaluated[i].StockCode < evaluated[j].StockCode
	})

	top := evaluated
	if len(top) > 5 {
		top = top[:5]
	}
	for _, rec := range top {
		analysis.TopPerformers = append(analysis.TopPerformers, toPerformer(rec))
	}

	bottom := evaluated
	if len(bottom) > 5 {
		bottom = bottom[len(bottom)-5:]
	}
	for _, rec := range bottom {
		analysis.BottomPerformers = append(analysis.BottomPerformers, toPerformer(rec))
	}

	for _, rec := range recs {
		if rec.ExceededPrediction == nil {
			continue
		}
		analysis.PredictionAccuracy.TotalWithPredictions++
		if *rec.ExceededPrediction > 0 {
			analysis.PredictionAccuracy.ExceededCount++
		} else {
			analysis.PredictionAccuracy.MissedCount++
		}
	}
	if total := analysis.PredictionAccuracy.TotalWithPredictions; total > 0 {
		rate := float64(analysis.PredictionAccuracy.ExceededCount) / float64(total) * 100
		analysis.PredictionAccuracy.ExceededRatePct = &rate
	}

	return analysis, nil
}

func toPerformer(rec *models.BacktestRecommendation) *Performer {
	return &Performer{
		StockCode:  rec.StockCode,
		StockName:  rec.StockName,
		ReturnPct:  rec.ActualReturnPct,
		ValueScore: rec.ValueScore,
		Sector:     rec.Sector,
	}
}

// TimeSeriesPoint is one completed run's headline metrics.
type TimeSeriesPoint struct {
	Date                 string   `json:"date"`
	Name                 string   `json:"name"`
	AvgReturnPct         *float64 `json:"avg_return_pct"`
	WinRatePct           *float64 `json:"win_rate_pct"`
	SharpeRatio          *float64 `json:"sharpe_ratio"`
	MarketReturnPct      *float64 `json:"market_return_pct"`
	AlphaPct             *float64 `json:"alpha_pct"`
	TotalRecommendations *int     `json:"total_recommendations"`
}

// TimeSeries returns completed runs in simulation-date order,
// optionally filtered by strategy and market.
func (s *Service) TimeSeries(ctx context.Context, strategyType, market *string) ([]*TimeSeriesPoint, error) {
	status := models.RunStatusCompleted
	runs, err := s.runs.List(ctx, repository.RunFilter{
		Status:       &status,
		StrategyType: strategyType,
		Market:       market,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, ErrNoCompletedRuns
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SimulationDate.Before(runs[j].SimulationDate)
	})

	points := make([]*TimeSeriesPoint, 0, len(runs))
	for _, run := range runs {
		points = append(points, &TimeSeriesPoint{
			Date:                 run.SimulationDate.Format("2006-01-02"),
			Name:                 run.Name,
			AvgReturnPct:         run.AvgReturnPct,
			WinRatePct:           run.WinRatePct,
			SharpeRatio:          run.SharpeRatio,
			MarketReturnPct:      run.MarketIndexReturnPct,
			AlphaPct:             run.AlphaPct,
			TotalRecommendations: run.TotalRecommendations,
		})
	}

	return points, nil
}

// BestRun names the completed run with the highest average return.
type BestRun struct {
	Name      string   `json:"name"`
	ReturnPct *float64 `json:"return_pct"`
}

// Summary is the global view over every stored run.
type Summary struct {
	TotalBacktests       int            `json:"total_backtests"`
	OverallAvgReturnPct  *float64       `json:"overall_avg_return_pct"`
	OverallAvgWinRatePct *float64       `json:"overall_avg_win_rate_pct"`
	OverallAvgSharpe     *float64       `json:"overall_avg_sharpe_ratio"`
	OverallAvgAlphaPct   *float64       `json:"overall_avg_alpha_pct"`
	BestBacktest         *BestRun       `json:"best_backtest"`
	StatusDistribution   map[string]int `json:"status_distribution"`
	StrategyDistribution map[string]int `json:"strategy_distribution"`
}

// Summarize computes the overall averages across completed runs plus
// run counts by status and by strategy label.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	all, err := s.runs.List(ctx, repository.RunFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	summary := &Summary{
		StatusDistribution:   make(map[string]int),
		StrategyDistribution: make(map[string]int),
	}

	var returns, winRates, sharpes, alphas []float64
	var best *models.BacktestRun
	for _, run := range all {
		summary.StatusDistribution[string(run.Status)]++
		if run.Status != models.RunStatusCompleted {
			continue
		}

		summary.TotalBacktests++
		summary.StrategyDistribution[run.StrategyLabel()]++

		if run.AvgReturnPct != nil {
			returns = append(returns, *run.AvgReturnPct)
			if best == nil || best.AvgReturnPct == nil || *run.AvgReturnPct > *best.AvgReturnPct {
				best = run
			}
		}
		if run.WinRatePct != nil {
			winRates = append(winRates, *run.WinRatePct)
		}
		if run.SharpeRatio != nil {
			sharpes = append(sharpes, *run.SharpeRatio)
		}
		if run.AlphaPct != nil {
			alphas = append(alphas, *run.AlphaPct)
		}
	}

	if summary.TotalBacktests == 0 {
		return nil, ErrNoCompletedRuns
	}

	summary.OverallAvgReturnPct = safeAverage(returns)
	summary.OverallAvgWinRatePct = safeAverage(winRates)
	summary.OverallAvgSharpe = safeAverage(sharpes)
	summary.OverallAvgAlphaPct = safeAverage(alphas)
	if best != nil {
		summary.BestBacktest = &BestRun{Name: best.Name, ReturnPct: best.AvgReturnPct}
	}

	return summary, nil
}

// Frequency reports stocks recommended across runs at least
// minOccurrences times, most frequent first.
func (s *Service) Frequency(ctx context.Context, minOccurrences int) ([]*repository.StockFrequency, error) {
	freqs, err := s.recs.FrequencyByStock(ctx, minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stock frequencies: %w", err)
	}
	return freqs, nil
}
