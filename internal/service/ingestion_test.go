package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/value-backtest/internal/datasource"
	"github.com/yourusername/value-backtest/internal/models"
)

type fakeUniverseSource struct {
	listings []datasource.StockData
	err      error
}

func (f *fakeUniverseSource) FetchStocks(ctx context.Context, market string) ([]datasource.StockData, error) {
	return f.listings, f.err
}
func (f *fakeUniverseSource) Name() string    { return "fake-universe" }
func (f *fakeUniverseSource) IsEnabled() bool { return true }

type fakePriceSource struct {
	quotes map[string][]datasource.PriceData
	calls  []string
}

func (f *fakePriceSource) FetchDailyPrices(ctx context.Context, stockCode string, startDate, endDate time.Time) ([]datasource.PriceData, error) {
	f.calls = append(f.calls, stockCode)
	quotes, ok := f.quotes[stockCode]
	if !ok {
		return nil, datasource.NewSourceError("fake-prices", datasource.ErrCodeNotFound, "no data", nil)
	}
	return quotes, nil
}
func (f *fakePriceSource) Name() string    { return "fake-prices" }
func (f *fakePriceSource) IsEnabled() bool { return true }

type fakeFundamentalsSource struct {
	snapshots map[string]*datasource.FundamentalsData
	calls     []string
}

func (f *fakeFundamentalsSource) FetchFundamentals(ctx context.Context, stockCode string, asOf time.Time) (*datasource.FundamentalsData, error) {
	f.calls = append(f.calls, stockCode)
	snap, ok := f.snapshots[stockCode]
	if !ok {
		return nil, datasource.NewSourceError("fake-fundamentals", datasource.ErrCodeNotFound, "no filing", nil)
	}
	return snap, nil
}
func (f *fakeFundamentalsSource) Name() string    { return "fake-fundamentals" }
func (f *fakeFundamentalsSource) IsEnabled() bool { return true }

type capturingStockRepo struct {
	upserted []*models.Stock
}

func (r *capturingStockRepo) Upsert(ctx context.Context, stock *models.Stock) error {
	r.upserted = append(r.upserted, stock)
	return nil
}

func (r *capturingStockRepo) GetByCode(ctx context.Context, code string) (*models.Stock, error) {
	for _, st := range r.upserted {
		if st.Code == code {
			return st, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *capturingStockRepo) GetByMarket(ctx context.Context, market string) ([]*models.Stock, error) {
	return r.upserted, nil
}

type capturingPriceRepo struct {
	inserted []*models.HistoricalStockPrice
}

func (r *capturingPriceRepo) InsertBatch(ctx context.Context, prices []*models.HistoricalStockPrice) (int, error) {
	r.inserted = append(r.inserted, prices...)
	return len(prices), nil
}

func (r *capturingPriceRepo) GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalStockPrice, error) {
	return nil, models.ErrNotFound
}

func (r *capturingPriceRepo) GetRange(ctx context.Context, stockCode string, start, end time.Time) ([]*models.HistoricalStockPrice, error) {
	return nil, nil
}

func (r *capturingPriceRepo) LatestDate(ctx context.Context, stockCode string) (time.Time, error) {
	return time.Time{}, models.ErrNotFound
}

type capturingFundamentalsRepo struct {
	upserted []*models.HistoricalFinancialMetrics
}

func (r *capturingFundamentalsRepo) Upsert(ctx context.Context, metrics *models.HistoricalFinancialMetrics) error {
	r.upserted = append(r.upserted, metrics)
	return nil
}

func (r *capturingFundamentalsRepo) GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error) {
	return nil, models.ErrNotFound
}

func newTestIngestion(
	universe *fakeUniverseSource,
	prices *fakePriceSource,
	fundamentals *fakeFundamentalsSource,
	stocks *capturingStockRepo,
	priceRepo *capturingPriceRepo,
	fundRepo *capturingFundamentalsRepo,
) *Ingestion {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewIngestion(universe, prices, fundamentals, stocks, priceRepo, fundRepo, log, 2, 0)
}

func TestSyncUniverseUpsertsListings(t *testing.T) {
	sector := "Technology"
	universe := &fakeUniverseSource{listings: []datasource.StockData{
		{Code: "005930", Name: "Samsung Electronics", Market: models.MarketKOSPI, Sector: &sector},
		{Code: "035720", Name: "Kakao", Market: models.MarketKOSPI},
	}}
	stocks := &capturingStockRepo{}
	svc := newTestIngestion(universe, &fakePriceSource{}, &fakeFundamentalsSource{}, stocks, &capturingPriceRepo{}, &capturingFundamentalsRepo{})

	report, err := svc.SyncUniverse(context.Background(), models.MarketKOSPI)
	require.NoError(t, err)

	totals := report.Snapshot()
	assert.Equal(t, 2, totals.StocksUpserted)
	assert.Equal(t, 0, totals.Errors)
	require.Len(t, stocks.upserted, 2)
	assert.Equal(t, "005930", stocks.upserted[0].Code)
	require.NotNil(t, stocks.upserted[0].Sector)
	assert.Equal(t, "Technology", *stocks.upserted[0].Sector)
}

func TestBackfillPricesConvertsAndSkipsMissing(t *testing.T) {
	day := time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)
	prices := &fakePriceSource{quotes: map[string][]datasource.PriceData{
		"005930": {{
			StockCode: "005930",
			Date:      day,
			Open:      decimal.RequireFromString("61000"),
			High:      decimal.RequireFromString("62300"),
			Low:       decimal.RequireFromString("60700"),
			Close:     decimal.RequireFromString("61800"),
			Volume:    13_500_000,
		}},
	}}
	priceRepo := &capturingPriceRepo{}
	svc := newTestIngestion(&fakeUniverseSource{}, prices, &fakeFundamentalsSource{}, &capturingStockRepo{}, priceRepo, &capturingFundamentalsRepo{})

	report, err := svc.BackfillPrices(context.Background(), []string{"005930", "999999"}, day, day)
	require.NoError(t, err)

	totals := report.Snapshot()
	assert.Equal(t, 1, totals.PriceRowsInserted)
	assert.Equal(t, 1, totals.Skipped)
	assert.Equal(t, 0, totals.Errors)

	require.Len(t, priceRepo.inserted, 1)
	row := priceRepo.inserted[0]
	assert.Equal(t, "005930", row.StockCode)
	assert.Equal(t, 61800.0, row.Close)
	assert.Equal(t, int64(13_500_000), row.Volume)
}

func TestBackfillBenchmarksUsesIndexCodes(t *testing.T) {
	day := time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)
	prices := &fakePriceSource{quotes: map[string][]datasource.PriceData{}}
	svc := newTestIngestion(&fakeUniverseSource{}, prices, &fakeFundamentalsSource{}, &capturingStockRepo{}, &capturingPriceRepo{}, &capturingFundamentalsRepo{})

	_, err := svc.BackfillBenchmarks(context.Background(), day, day)
	require.NoError(t, err)
	assert.Equal(t, []string{models.IndexKOSPI, models.IndexKOSDAQ}, prices.calls)
}

func TestBackfillFundamentalsMapsSnapshot(t *testing.T) {
	asOf := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	per := 8.4
	roe := 12.5
	fundamentals := &fakeFundamentalsSource{snapshots: map[string]*datasource.FundamentalsData{
		"005930": {
			StockCode:    "005930",
			SnapshotDate: asOf,
			ReportDate:   time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
			PER:          &per,
			ROE:          &roe,
		},
	}}
	fundRepo := &capturingFundamentalsRepo{}
	svc := newTestIngestion(&fakeUniverseSource{}, &fakePriceSource{}, fundamentals, &capturingStockRepo{}, &capturingPriceRepo{}, fundRepo)

	report, err := svc.BackfillFundamentals(context.Background(), []string{"005930", "999999"}, asOf)
	require.NoError(t, err)

	totals := report.Snapshot()
	assert.Equal(t, 1, totals.FundamentalsFetched)
	assert.Equal(t, 1, totals.Skipped)

	require.Len(t, fundRepo.upserted, 1)
	snap := fundRepo.upserted[0]
	assert.Equal(t, "005930", snap.StockCode)
	assert.Equal(t, asOf, snap.SnapshotDate)
	require.NotNil(t, snap.PER)
	assert.Equal(t, 8.4, *snap.PER)
}

func TestBackfillFundamentalsHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestIngestion(&fakeUniverseSource{}, &fakePriceSource{}, &fakeFundamentalsSource{}, &capturingStockRepo{}, &capturingPriceRepo{}, &capturingFundamentalsRepo{})

	_, err := svc.BackfillFundamentals(ctx, []string{"005930"}, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncDailyRunsFullPass(t *testing.T) {
	now := time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC)
	universe := &fakeUniverseSource{listings: []datasource.StockData{
		{Code: "005930", Name: "Samsung Electronics", Market: models.MarketKOSPI},
	}}
	prices := &fakePriceSource{quotes: map[string][]datasource.PriceData{
		"005930": {{
			StockCode: "005930",
			Date:      now,
			Close:     decimal.NewFromInt(61800),
		}},
		models.IndexKOSPI: {{
			StockCode: models.IndexKOSPI,
			Date:      now,
			Close:     decimal.RequireFromString("2560.45"),
		}},
	}}
	fundamentals := &fakeFundamentalsSource{snapshots: map[string]*datasource.FundamentalsData{
		"005930": {StockCode: "005930", SnapshotDate: now},
	}}
	stocks := &capturingStockRepo{}
	priceRepo := &capturingPriceRepo{}
	fundRepo := &capturingFundamentalsRepo{}
	svc := newTestIngestion(universe, prices, fundamentals, stocks, priceRepo, fundRepo)

	report, err := svc.SyncDaily(context.Background(), now)
	require.NoError(t, err)

	totals := report.Snapshot()
	assert.Equal(t, 1, totals.StocksUpserted)
	assert.Equal(t, 2, totals.PriceRowsInserted) // stock + KOSPI index
	assert.Equal(t, 1, totals.FundamentalsFetched)
	assert.Contains(t, prices.calls, models.IndexKOSDAQ)
}
