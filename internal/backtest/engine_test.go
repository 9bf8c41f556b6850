package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/value-backtest/internal/history"
	"github.com/yourusername/value-backtest/internal/logger"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scoring"
)

// ---- in-memory fakes ----

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.BacktestRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[uuid.UUID]*models.BacktestRun)}
}

func (r *memRunRepo) Create(ctx context.Context, run *models.BacktestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *memRunRepo) CreateBatch(ctx context.Context, runs []*models.BacktestRun) error {
	for _, run := range runs {
		if err := r.Create(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (r *memRunRepo) List(ctx context.Context, filter repository.RunFilter) ([]*models.BacktestRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BacktestRun
	for _, run := range r.runs {
		clone := *run
		out = append(out, &clone)
	}
	return out, nil
}

func (r *memRunRepo) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return models.ErrNotFound
	}
	if run.Status != models.RunStatusPending {
		return models.ErrRunNotPending
	}
	run.Status = models.RunStatusRunning
	run.StartedAt = &startedAt
	return nil
}

func (r *memRunRepo) UpdateResults(ctx context.Context, run *models.BacktestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return models.ErrNotFound
	}
	clone := *run
	r.runs[run.ID] = &clone
	return nil
}

func (r *memRunRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return models.ErrNotFound
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errMsg
	run.CompletedAt = &completedAt
	return nil
}

func (r *memRunRepo) FailStale(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for _, run := range r.runs {
		if run.Status == models.RunStatusRunning && run.StartedAt != nil && run.StartedAt.Before(cutoff) {
			run.Status = models.RunStatusFailed
			msg := errMsg
			run.ErrorMessage = &msg
			swept++
		}
	}
	return swept, nil
}

func (r *memRunRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.runs, id)
	return nil
}

type memRecRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.BacktestRecommendation
}

func newMemRecRepo() *memRecRepo {
	return &memRecRepo{recs: make(map[uuid.UUID]*models.BacktestRecommendation)}
}

func (r *memRecRepo) InsertBatch(ctx context.Context, recs []*models.BacktestRecommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		clone := *rec
		r.recs[rec.ID] = &clone
	}
	return nil
}

func (r *memRecRepo) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.BacktestRecommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BacktestRecommendation
	for _, rec := range r.recs {
		if rec.RunID == runID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memRecRepo) UpdateOutcome(ctx context.Context, rec *models.BacktestRecommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.ID]; !ok {
		return models.ErrNotFound
	}
	clone := *rec
	r.recs[rec.ID] = &clone
	return nil
}

func (r *memRecRepo) FrequencyByStock(ctx context.Context, minOccurrences int) ([]*repository.StockFrequency, error) {
	return nil, nil
}

type memStockRepo struct {
	stocks []*models.Stock
}

func (r *memStockRepo) Upsert(ctx context.Context, stock *models.Stock) error {
	r.stocks = append(r.stocks, stock)
	return nil
}

func (r *memStockRepo) GetByCode(ctx context.Context, code string) (*models.Stock, error) {
	for _, s := range r.stocks {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memStockRepo) GetByMarket(ctx context.Context, market string) ([]*models.Stock, error) {
	if market == "" || market == models.MarketAll {
		return r.stocks, nil
	}
	var out []*models.Stock
	for _, s := range r.stocks {
		if s.Market == market {
			out = append(out, s)
		}
	}
	return out, nil
}

// stubProvider answers from fixed maps; gate, when set, blocks price
// lookups until released so tests can hold a run in flight.
type stubProvider struct {
	prices  map[string]float64
	metrics map[string]*models.HistoricalFinancialMetrics
	windows map[string]*history.WindowReturn
	gate    chan struct{}
}

func (p *stubProvider) PriceOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error) {
	if p.gate != nil {
		<-p.gate
	}
	c, ok := p.prices[stockCode]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.HistoricalStockPrice{StockCode: stockCode, Date: date, Close: c}, nil
}

func (p *stubProvider) FundamentalsOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error) {
	m, ok := p.metrics[stockCode]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (p *stubProvider) ReturnOverWindow(ctx context.Context, stockCode string, start, end time.Time) (*history.WindowReturn, error) {
	w, ok := p.windows[stockCode]
	if !ok {
		return nil, models.ErrNotFound
	}
	return w, nil
}

// ---- fixtures ----

func metricsWithPER(code string, per float64) *models.HistoricalFinancialMetrics {
	return &models.HistoricalFinancialMetrics{StockCode: code, PER: &per}
}

func window(returnPct, drawdownPct float64) *history.WindowReturn {
	return &history.WindowReturn{
		StartPrice:     100,
		EndPrice:       100 + returnPct,
		ReturnPct:      returnPct,
		MaxPrice:       110,
		MinPrice:       100 + drawdownPct,
		MaxReturnPct:   10,
		MaxDrawdownPct: drawdownPct,
	}
}

type engineFixture struct {
	engine *Engine
	runs   *memRunRepo
	recs   *memRecRepo
}

func newEngineFixture(t *testing.T, stocks []*models.Stock, provider history.Provider) *engineFixture {
	t.Helper()

	runs := newMemRunRepo()
	recs := newMemRecRepo()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	engine, err := NewEngine(runs, recs, &memStockRepo{stocks: stocks}, provider,
		scoring.NewScorer(), logger.NewRunLogger(log))
	require.NoError(t, err)

	return &engineFixture{engine: engine, runs: runs, recs: recs}
}

func pendingRun(t *testing.T, runs *memRunRepo, market string) *models.BacktestRun {
	t.Helper()

	run := &models.BacktestRun{
		ID:                  uuid.New(),
		Name:                "test run",
		Market:              market,
		SimulationDate:      date("2023-01-02"),
		LookbackYears:       3,
		HoldingPeriodMonths: 3,
		Status:              models.RunStatusPending,
	}
	require.NoError(t, runs.Create(context.Background(), run))
	return run
}

func kospiStocks() []*models.Stock {
	return []*models.Stock{
		{Code: "000001", Name: "Alpha Corp", Market: models.MarketKOSPI},
		{Code: "000002", Name: "Beta Corp", Market: models.MarketKOSPI},
		{Code: "000003", Name: "Gamma Corp", Market: models.MarketKOSPI},
	}
}

// ---- tests ----

func TestEngineCompletesRun(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100, "000002": 200, "000003": 300},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 4),  // valuation 20
			"000002": metricsWithPER("000002", 8),  // valuation 15
			"000003": metricsWithPER("000003", 12), // valuation 10
		},
		windows: map[string]*history.WindowReturn{
			"000001":          window(10, -2),
			"000002":          window(15, -4),
			"000003":          window(-5, -12),
			models.IndexKOSPI: window(5, -3),
		},
	}

	fx := newEngineFixture(t, kospiStocks(), provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	result, err := fx.engine.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	require.NotNil(t, result.StartedAt)
	require.NotNil(t, result.CompletedAt)
	assert.Nil(t, result.ErrorMessage)

	require.NotNil(t, result.TotalRecommendations)
	assert.Equal(t, 3, *result.TotalRecommendations)
	assert.InDelta(t, 20.0/3, *result.AvgReturnPct, 1e-9)
	assert.InDelta(t, 10.0, *result.MedianReturnPct, 1e-9)
	assert.InDelta(t, 15.0, *result.BestReturnPct, 1e-9)
	assert.InDelta(t, -5.0, *result.WorstReturnPct, 1e-9)
	assert.InDelta(t, 200.0/3, *result.WinRatePct, 1e-9)

	// Benchmark resolved: alpha is avg minus index return.
	require.NotNil(t, result.MarketIndexReturnPct)
	assert.InDelta(t, 5.0, *result.MarketIndexReturnPct, 1e-9)
	assert.InDelta(t, 20.0/3-5.0, *result.AlphaPct, 1e-9)

	// Run-level max drawdown is the most negative per-stock drawdown.
	require.NotNil(t, result.MaxDrawdownPct)
	assert.InDelta(t, -12.0, *result.MaxDrawdownPct, 1e-9)

	// Ranks are dense from 1 following score order.
	recs, err := fx.recs.GetByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	byRank := make(map[int]string)
	for _, rec := range recs {
		byRank[rec.Rank] = rec.StockCode
		assert.True(t, rec.HasOutcome())
	}
	assert.Equal(t, "000001", byRank[1], "lowest PER scores highest")
	assert.Equal(t, "000002", byRank[2])
	assert.Equal(t, "000003", byRank[3])
}

func TestEngineTieBreaksByStockCode(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100, "000002": 100, "000003": 100},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 8),
			"000002": metricsWithPER("000002", 8),
			"000003": metricsWithPER("000003", 8),
		},
		windows: map[string]*history.WindowReturn{},
	}

	fx := newEngineFixture(t, kospiStocks(), provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	_, err := fx.engine.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	recs, err := fx.recs.GetByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, "00000"+string(rune('0'+rec.Rank)), rec.StockCode)
	}
}

func TestEngineFailsWhenNoCandidates(t *testing.T) {
	provider := &stubProvider{
		prices:  map[string]float64{},
		metrics: map[string]*models.HistoricalFinancialMetrics{},
		windows: map[string]*history.WindowReturn{},
	}

	fx := newEngineFixture(t, kospiStocks(), provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	_, err := fx.engine.Execute(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrNoRecommendations)

	stored, err := fx.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "no recommendations generated", *stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)
}

func TestEngineCompletesWithNullAggregatesWhenNothingEvaluates(t *testing.T) {
	// Candidates score and persist, but no holding-period window
	// resolves: the run still completes with aggregates left null.
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 8),
		},
		windows: map[string]*history.WindowReturn{},
	}

	fx := newEngineFixture(t, kospiStocks()[:1], provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	result, err := fx.engine.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Nil(t, result.TotalRecommendations)
	assert.Nil(t, result.AvgReturnPct)
	assert.Nil(t, result.WinRatePct)

	recs, err := fx.recs.GetByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].HasOutcome())
	assert.Nil(t, recs[0].PriceAfterHolding)
	assert.Nil(t, recs[0].MaxDrawdownPct)
}

func TestEngineRunNotFound(t *testing.T) {
	fx := newEngineFixture(t, nil, &stubProvider{})

	_, err := fx.engine.Execute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEngineRejectsSecondExecution(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 8),
		},
		windows: map[string]*history.WindowReturn{"000001": window(10, -2)},
	}

	fx := newEngineFixture(t, kospiStocks()[:1], provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	first, err := fx.engine.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	_, err = fx.engine.Execute(context.Background(), run.ID)
	assert.ErrorIs(t, err, models.ErrRunNotPending)

	// The completed record is untouched by the rejected attempt.
	stored, err := fx.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, *first.AvgReturnPct, *stored.AvgReturnPct)
}

// failingUpdateRunRepo claims and fails runs normally but rejects the
// final results write.
type failingUpdateRunRepo struct {
	*memRunRepo
}

func (r *failingUpdateRunRepo) UpdateResults(ctx context.Context, run *models.BacktestRun) error {
	return errors.New("connection reset by peer")
}

func TestEngineFailsRunWhenCompletionWriteFails(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 8),
		},
		windows: map[string]*history.WindowReturn{"000001": window(10, -2)},
	}

	runs := &failingUpdateRunRepo{memRunRepo: newMemRunRepo()}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	engine, err := NewEngine(runs, newMemRecRepo(), &memStockRepo{stocks: kospiStocks()[:1]},
		provider, scoring.NewScorer(), logger.NewRunLogger(log))
	require.NoError(t, err)

	run := pendingRun(t, runs.memRunRepo, models.MarketKOSPI)

	result, err := engine.Execute(context.Background(), run.ID)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, result.Status)

	// The stored run must not stay running for the sweep to find.
	stored, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "failed to record run completion")
	require.NotNil(t, stored.CompletedAt)
}

func TestLauncherSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	provider := &stubProvider{
		prices: map[string]float64{"000001": 100},
		metrics: map[string]*models.HistoricalFinancialMetrics{
			"000001": metricsWithPER("000001", 8),
		},
		windows: map[string]*history.WindowReturn{"000001": window(10, -2)},
		gate:    gate,
	}

	fx := newEngineFixture(t, kospiStocks()[:1], provider)
	run := pendingRun(t, fx.runs, models.MarketKOSPI)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	launcher := NewLauncher(fx.engine, 2, log)

	require.NoError(t, launcher.Submit(context.Background(), run.ID))
	assert.ErrorIs(t, launcher.Submit(context.Background(), run.ID), ErrRunInFlight)

	close(gate)
	launcher.Wait()

	stored, err := fx.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)

	// Once finished the id can be submitted again; the storage-level
	// guard now rejects it instead.
	assert.NoError(t, launcher.Submit(context.Background(), run.ID))
	launcher.Wait()
	stored, err = fx.runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
}
