package analytics

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

type stubRunRepo struct {
	runs []*models.BacktestRun
}

func (r *stubRunRepo) Create(ctx context.Context, run *models.BacktestRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *stubRunRepo) CreateBatch(ctx context.Context, runs []*models.BacktestRun) error {
	r.runs = append(r.runs, runs...)
	return nil
}

func (r *stubRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	for _, run := range r.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *stubRunRepo) List(ctx context.Context, filter repository.RunFilter) ([]*models.BacktestRun, error) {
	var out []*models.BacktestRun
	for _, run := range r.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.StrategyType != nil && (run.StrategyType == nil || *run.StrategyType != *filter.StrategyType) {
			continue
		}
		if filter.Market != nil && run.Market != *filter.Market {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *stubRunRepo) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return nil
}

func (r *stubRunRepo) UpdateResults(ctx context.Context, run *models.BacktestRun) error { return nil }

func (r *stubRunRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error {
	return nil
}

func (r *stubRunRepo) FailStale(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	return 0, nil
}

func (r *stubRunRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type stubRecRepo struct {
	recs []*models.BacktestRecommendation
}

func (r *stubRecRepo) InsertBatch(ctx context.Context, recs []*models.BacktestRecommendation) error {
	r.recs = append(r.recs, recs...)
	return nil
}

func (r *stubRecRepo) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.BacktestRecommendation, error) {
	var out []*models.BacktestRecommendation
	for _, rec := range r.recs {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubRecRepo) UpdateOutcome(ctx context.Context, rec *models.BacktestRecommendation) error {
	return nil
}

func (r *stubRecRepo) FrequencyByStock(ctx context.Context, minOccurrences int) ([]*repository.StockFrequency, error) {
	type agg struct {
		name  string
		count int
		sum   float64
	}
	byCode := make(map[string]*agg)
	for _, rec := range r.recs {
		if rec.ActualReturnPct == nil {
			continue
		}
		a, ok := byCode[rec.StockCode]
		if !ok {
			a = &agg{name: rec.StockName}
			byCode[rec.StockCode] = a
		}
		a.count++
		a.sum += *rec.ActualReturnPct
	}

	var out []*repository.StockFrequency
	for code, a := range byCode {
		if a.count < minOccurrences {
			continue
		}
		avg := a.sum / float64(a.count)
		out = append(out, &repository.StockFrequency{
			StockCode:    code,
			StockName:    a.name,
			Appearances:  a.count,
			AvgReturnPct: &avg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Appearances > out[j].Appearances })
	return out, nil
}

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func completedRun(name string, strategy *string, simDate string, avgReturn, winRate, sharpe, alpha float64) *models.BacktestRun {
	return &models.BacktestRun{
		ID:             uuid.New(),
		Name:           name,
		StrategyType:   strategy,
		Market:         models.MarketKOSPI,
		SimulationDate: day(simDate),
		Status:         models.RunStatusCompleted,
		AvgReturnPct:   fp(avgReturn),
		WinRatePct:     fp(winRate),
		SharpeRatio:    fp(sharpe),
		AlphaPct:       fp(alpha),
	}
}

func TestCompareStrategies(t *testing.T) {
	runs := &stubRunRepo{runs: []*models.BacktestRun{
		completedRun("baseline jan", nil, "2023-01-01", 8, 60, 0.5, 2),
		completedRun("baseline feb", nil, "2023-02-01", 12, 70, 0.7, 4),
		completedRun("growth jan", sp("growth"), "2023-01-01", 15, 55, 0.4, 6),
		{ID: uuid.New(), Name: "still pending", Market: models.MarketKOSPI,
			SimulationDate: day("2023-03-01"), Status: models.RunStatusPending},
	}}

	svc := NewService(runs, &stubRecRepo{}, nil)
	cmp, err := svc.CompareStrategies(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, cmp.TotalBacktests, "pending runs are not compared")
	require.Len(t, cmp.Strategies, 2)

	baseline := cmp.Strategies[models.StrategyBaseline]
	require.NotNil(t, baseline)
	assert.Equal(t, 2, baseline.TotalRuns)
	assert.InDelta(t, 10.0, *baseline.AvgReturnPct, 1e-9)
	assert.InDelta(t, 65.0, *baseline.AvgWinRatePct, 1e-9)

	assert.Equal(t, "growth", cmp.BestByReturn.Strategy)
	assert.Equal(t, models.StrategyBaseline, cmp.BestBySharpe.Strategy)
	assert.Equal(t, models.StrategyBaseline, cmp.BestByWinRate.Strategy)
}

func TestCompareStrategiesNoCompletedRuns(t *testing.T) {
	svc := NewService(&stubRunRepo{}, &stubRecRepo{}, nil)
	_, err := svc.CompareStrategies(context.Background())
	assert.ErrorIs(t, err, ErrNoCompletedRuns)
}

func patternRecs(runID uuid.UUID) []*models.BacktestRecommendation {
	mk := func(code, name string, sector string, score, ret float64) *models.BacktestRecommendation {
		return &models.BacktestRecommendation{
			ID:              uuid.New(),
			RunID:           runID,
			StockCode:       code,
			StockName:       name,
			Sector:          sp(sector),
			ValueScore:      fp(score),
			ActualReturnPct: fp(ret),
		}
	}
	recs := []*models.BacktestRecommendation{
		mk("000001", "Alpha", "Tech", 85, 20),
		mk("000002", "Beta", "Tech", 75, 10),
		mk("000003", "Gamma", "Finance", 65, -5),
		mk("000004", "Delta", "Finance", 45, 8),
		mk("000005", "Epsilon", "Auto", 30, -12),
		mk("000006", "Zeta", "Auto", 82, 4),
	}
	// One never-evaluated pick stays out of every bucket.
	recs = append(recs, &models.BacktestRecommendation{
		ID: uuid.New(), RunID: runID, StockCode: "000007", StockName: "Eta",
		Sector: sp("Tech"), ValueScore: fp(90),
	})
	// Prediction deltas: two exceeded, one missed.
	recs[0].ExceededPrediction = fp(5)
	recs[1].ExceededPrediction = fp(0)
	recs[3].ExceededPrediction = fp(3)
	return recs
}

func TestAnalyzePatterns(t *testing.T) {
	runID := uuid.New()
	recs := &stubRecRepo{recs: patternRecs(runID)}
	svc := NewService(&stubRunRepo{}, recs, nil)

	analysis, err := svc.AnalyzePatterns(context.Background(), runID)
	require.NoError(t, err)

	tech := analysis.SectorPerformance["Tech"]
	require.NotNil(t, tech)
	assert.Equal(t, 2, tech.TotalStocks, "unevaluated picks are excluded")
	assert.InDelta(t, 15.0, tech.AvgReturnPct, 1e-9)
	assert.InDelta(t, 100.0, tech.WinRatePct, 1e-9)
	assert.InDelta(t, 20.0, tech.BestReturnPct, 1e-9)
	assert.InDelta(t, 10.0, tech.WorstReturnPct, 1e-9)

	high := analysis.ScorePerformance["80-100"]
	require.NotNil(t, high)
	assert.Equal(t, 2, high.Count)
	assert.InDelta(t, 12.0, high.AvgReturnPct, 1e-9)

	low := analysis.ScorePerformance["0-40"]
	require.NotNil(t, low)
	assert.Equal(t, 1, low.Count)

	require.Len(t, analysis.TopPerformers, 5)
	assert.Equal(t, "000001", analysis.TopPerformers[0].StockCode)
	require.Len(t, analysis.BottomPerformers, 5)
	assert.Equal(t, "000005", analysis.BottomPerformers[4].StockCode)

	acc := analysis.PredictionAccuracy
	assert.Equal(t, 3, acc.TotalWithPredictions)
	assert.Equal(t, 2, acc.ExceededCount)
	assert.Equal(t, 1, acc.MissedCount, "a delta of exactly zero counts as missed")
	require.NotNil(t, acc.ExceededRatePct)
	assert.InDelta(t, 200.0/3, *acc.ExceededRatePct, 1e-9)
}

func TestAnalyzePatternsNoRecommendations(t *testing.T) {
	svc := NewService(&stubRunRepo{}, &stubRecRepo{}, nil)
	_, err := svc.AnalyzePatterns(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNoRecommendations)
}

func TestTimeSeriesOrderedByDate(t *testing.T) {
	runs := &stubRunRepo{runs: []*models.BacktestRun{
		completedRun("mar", nil, "2023-03-01", 5, 50, 0.2, 1),
		completedRun("jan", nil, "2023-01-01", 7, 55, 0.3, 2),
		completedRun("feb", nil, "2023-02-01", 9, 60, 0.4, 3),
	}}

	svc := NewService(runs, &stubRecRepo{}, nil)
	points, err := svc.TimeSeries(context.Background(), nil, nil)
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.Equal(t, "2023-01-01", points[0].Date)
	assert.Equal(t, "2023-02-01", points[1].Date)
	assert.Equal(t, "2023-03-01", points[2].Date)
}

func TestSummarize(t *testing.T) {
	runs := &stubRunRepo{runs: []*models.BacktestRun{
		completedRun("good", nil, "2023-01-01", 14, 70, 0.8, 5),
		completedRun("better", sp("growth"), "2023-02-01", 18, 75, 1.1, 7),
		{ID: uuid.New(), Name: "broken", Market: models.MarketKOSPI,
			SimulationDate: day("2023-03-01"), Status: models.RunStatusFailed},
	}}

	svc := NewService(runs, &stubRecRepo{}, nil)
	summary, err := svc.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalBacktests)
	assert.InDelta(t, 16.0, *summary.OverallAvgReturnPct, 1e-9)
	assert.Equal(t, map[string]int{"completed": 2, "failed": 1}, summary.StatusDistribution)
	assert.Equal(t, map[string]int{models.StrategyBaseline: 1, "growth": 1}, summary.StrategyDistribution)
	require.NotNil(t, summary.BestBacktest)
	assert.Equal(t, "better", summary.BestBacktest.Name)
}

func TestFrequencyHonorsMinimumOccurrences(t *testing.T) {
	runA, runB := uuid.New(), uuid.New()
	recs := &stubRecRepo{recs: []*models.BacktestRecommendation{
		{ID: uuid.New(), RunID: runA, StockCode: "000001", StockName: "Alpha", ActualReturnPct: fp(10)},
		{ID: uuid.New(), RunID: runB, StockCode: "000001", StockName: "Alpha", ActualReturnPct: fp(20)},
		{ID: uuid.New(), RunID: runA, StockCode: "000002", StockName: "Beta", ActualReturnPct: fp(5)},
	}}

	svc := NewService(&stubRunRepo{}, recs, nil)
	freqs, err := svc.Frequency(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, freqs, 1, "single-appearance stocks are excluded")
	assert.Equal(t, "000001", freqs[0].StockCode)
	assert.Equal(t, 2, freqs[0].Appearances)
	assert.InDelta(t, 15.0, *freqs[0].AvgReturnPct, 1e-9)
}
