// Package service orchestrates data ingestion from external providers
// into the historical store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/datasource"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

const (
	defaultBatchSize     = 50
	defaultBatchCooldown = 30 * time.Second
)

// Ingestion pulls listings, daily prices, and fundamentals snapshots
// from external sources and persists them
type Ingestion struct {
	universe     datasource.UniverseSource
	prices       datasource.PriceSource
	fundamentals datasource.FundamentalsSource

	stockRepo repository.StockRepository
	priceRepo repository.PriceRepository
	fundRepo  repository.FundamentalsRepository

	validator *DataValidator

	log           *logrus.Logger
	batchSize     int
	batchCooldown time.Duration
}

// NewIngestion creates an ingestion service. batchSize and
// batchCooldown govern fundamentals backfills, where the provider
// enforces strict quotas; non-positive values take the defaults.
func NewIngestion(
	universe datasource.UniverseSource,
	prices datasource.PriceSource,
	fundamentals datasource.FundamentalsSource,
	stockRepo repository.StockRepository,
	priceRepo repository.PriceRepository,
	fundRepo repository.FundamentalsRepository,
	log *logrus.Logger,
	batchSize int,
	batchCooldown time.Duration,
) *Ingestion {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchCooldown < 0 {
		batchCooldown = defaultBatchCooldown
	}
	if log == nil {
		log = logrus.New()
	}

	return &Ingestion{
		universe:      universe,
		prices:        prices,
		fundamentals:  fundamentals,
		stockRepo:     stockRepo,
		priceRepo:     priceRepo,
		fundRepo:      fundRepo,
		validator:     NewDataValidator(log),
		log:           log,
		batchSize:     batchSize,
		batchCooldown: batchCooldown,
	}
}

// SyncUniverse refreshes the stock universe for one market from the
// listing source. Existing rows are updated in place.
func (s *Ingestion) SyncUniverse(ctx context.Context, market string) (*IngestionReport, error) {
	report := NewIngestionReport()
	defer report.Finish()

	listings, err := s.universe.FetchStocks(ctx, market)
	if err != nil {
		report.RecordError()
		return report, fmt.Errorf("failed to fetch listings: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"source":   s.universe.Name(),
		"market":   market,
		"listings": len(listings),
	}).Info("Syncing stock universe")

	for i := range listings {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		s.validator.NormalizeListing(&listings[i])
		if violations := s.validator.ValidateListing(&listings[i]); len(violations) > 0 {
			report.RecordSkip()
			s.log.WithFields(logrus.Fields{
				"stock_code": listings[i].Code,
				"violations": violations,
			}).Warn("Dropping invalid listing")
			continue
		}

		stock := &models.Stock{
			Code:   listings[i].Code,
			Name:   listings[i].Name,
			Market: listings[i].Market,
			Sector: listings[i].Sector,
		}
		if err := s.stockRepo.Upsert(ctx, stock); err != nil {
			report.RecordError()
			s.log.WithError(err).WithField("stock_code", stock.Code).Warn("Failed to upsert stock")
			continue
		}
		report.RecordStock()
	}

	return report, nil
}

// BackfillPrices fetches daily OHLCV history for the given codes over
// [startDate, endDate] and inserts the rows. Codes with no data at the
// source are skipped; per-code failures are counted and do not abort
// the remaining codes.
func (s *Ingestion) BackfillPrices(ctx context.Context, stockCodes []string, startDate, endDate time.Time) (*IngestionReport, error) {
	report := NewIngestionReport()
	defer report.Finish()

	s.log.WithFields(logrus.Fields{
		"source": s.prices.Name(),
		"stocks": len(stockCodes),
		"start":  startDate.Format("2006-01-02"),
		"end":    endDate.Format("2006-01-02"),
	}).Info("Starting price backfill")

	for _, code := range stockCodes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		quotes, err := s.prices.FetchDailyPrices(ctx, code, startDate, endDate)
		if err != nil {
			if isSourceNotFound(err) {
				report.RecordSkip()
				continue
			}
			report.RecordError()
			s.log.WithError(err).WithField("stock_code", code).Warn("Failed to fetch prices")
			continue
		}
		if len(quotes) == 0 {
			report.RecordSkip()
			continue
		}

		rows := make([]*models.HistoricalStockPrice, 0, len(quotes))
		for i := range quotes {
			if violations := s.validator.ValidatePrice(&quotes[i]); len(violations) > 0 {
				report.RecordSkip()
				s.log.WithFields(logrus.Fields{
					"stock_code": quotes[i].StockCode,
					"date":       quotes[i].Date.Format("2006-01-02"),
					"violations": violations,
				}).Warn("Dropping invalid quote")
				continue
			}
			rows = append(rows, &models.HistoricalStockPrice{
				StockCode: quotes[i].StockCode,
				Date:      quotes[i].Date,
				Open:      quotes[i].Open.InexactFloat64(),
				High:      quotes[i].High.InexactFloat64(),
				Low:       quotes[i].Low.InexactFloat64(),
				Close:     quotes[i].Close.InexactFloat64(),
				Volume:    quotes[i].Volume,
			})
		}

		if len(rows) == 0 {
			continue
		}

		inserted, err := s.priceRepo.InsertBatch(ctx, rows)
		if err != nil {
			report.RecordError()
			s.log.WithError(err).WithField("stock_code", code).Warn("Failed to insert price rows")
			continue
		}
		report.RecordPriceRows(inserted)
	}

	snap := report.Snapshot()
	s.log.WithFields(logrus.Fields{
		"rows_inserted": snap.PriceRowsInserted,
		"skipped":       snap.Skipped,
		"errors":        snap.Errors,
	}).Info("Price backfill complete")

	return report, nil
}

// BackfillBenchmarks fetches the market index series and stores them in
// the price table under their index codes.
func (s *Ingestion) BackfillBenchmarks(ctx context.Context, startDate, endDate time.Time) (*IngestionReport, error) {
	return s.BackfillPrices(ctx, []string{models.IndexKOSPI, models.IndexKOSDAQ}, startDate, endDate)
}

// BackfillFundamentals fetches ratio snapshots as of the given date for
// each code. Fetches run in fixed-size batches with a cooldown between
// batches so the provider's daily quota survives a full-universe pass.
func (s *Ingestion) BackfillFundamentals(ctx context.Context, stockCodes []string, asOf time.Time) (*IngestionReport, error) {
	report := NewIngestionReport()
	defer report.Finish()

	s.log.WithFields(logrus.Fields{
		"source":     s.fundamentals.Name(),
		"stocks":     len(stockCodes),
		"as_of":      asOf.Format("2006-01-02"),
		"batch_size": s.batchSize,
	}).Info("Starting fundamentals backfill")

	for i := 0; i < len(stockCodes); i += s.batchSize {
		end := i + s.batchSize
		if end > len(stockCodes) {
			end = len(stockCodes)
		}

		for _, code := range stockCodes[i:end] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := s.ingestFundamentals(ctx, code, asOf, report); err != nil {
				s.log.WithError(err).WithField("stock_code", code).Warn("Failed to ingest fundamentals")
			}
		}

		if end < len(stockCodes) && s.batchCooldown > 0 {
			s.log.WithFields(logrus.Fields{
				"processed": end,
				"total":     len(stockCodes),
				"cooldown":  s.batchCooldown,
			}).Debug("Cooling down between fundamentals batches")
			if err := sleepCtx(ctx, s.batchCooldown); err != nil {
				return report, err
			}
		}
	}

	snap := report.Snapshot()
	s.log.WithFields(logrus.Fields{
		"fetched": snap.FundamentalsFetched,
		"skipped": snap.Skipped,
		"errors":  snap.Errors,
	}).Info("Fundamentals backfill complete")

	return report, nil
}

// SyncDaily is the scheduled end-of-day pass: refresh the universe,
// pull the trailing week of prices for every stock plus the benchmark
// indices, and snapshot fundamentals as of today.
func (s *Ingestion) SyncDaily(ctx context.Context, now time.Time) (*IngestionReport, error) {
	combined := NewIngestionReport()
	defer combined.Finish()

	uniReport, err := s.SyncUniverse(ctx, models.MarketAll)
	combined.merge(uniReport)
	if err != nil {
		return combined, err
	}

	stocks, err := s.stockRepo.GetByMarket(ctx, models.MarketAll)
	if err != nil {
		combined.RecordError()
		return combined, fmt.Errorf("failed to load universe: %w", err)
	}

	codes := make([]string, 0, len(stocks))
	for _, st := range stocks {
		codes = append(codes, st.Code)
	}

	// A week of overlap papers over holidays and late corrections;
	// InsertBatch ignores rows that already exist.
	start := now.AddDate(0, 0, -7)

	priceReport, err := s.BackfillPrices(ctx, codes, start, now)
	combined.merge(priceReport)
	if err != nil {
		return combined, err
	}

	benchReport, err := s.BackfillBenchmarks(ctx, start, now)
	combined.merge(benchReport)
	if err != nil {
		return combined, err
	}

	fundReport, err := s.BackfillFundamentals(ctx, codes, now)
	combined.merge(fundReport)
	if err != nil {
		return combined, err
	}

	return combined, nil
}

func (s *Ingestion) ingestFundamentals(ctx context.Context, code string, asOf time.Time, report *IngestionReport) error {
	data, err := s.fundamentals.FetchFundamentals(ctx, code, asOf)
	if err != nil {
		if isSourceNotFound(err) {
			report.RecordSkip()
			return nil
		}
		report.RecordError()
		return err
	}

	if violations := s.validator.ValidateFundamentals(data); len(violations) > 0 {
		report.RecordSkip()
		s.log.WithFields(logrus.Fields{
			"stock_code": code,
			"violations": violations,
		}).Warn("Dropping invalid fundamentals snapshot")
		return nil
	}

	metrics := &models.HistoricalFinancialMetrics{
		StockCode:    data.StockCode,
		SnapshotDate: data.SnapshotDate,
		ReportDate:   data.ReportDate,

		PER:      data.PER,
		PBR:      data.PBR,
		PSR:      data.PSR,
		EVEBITDA: data.EVEBITDA,

		ROE:             data.ROE,
		ROA:             data.ROA,
		OperatingMargin: data.OperatingMargin,
		NetProfitGrowth: data.NetProfitGrowth,

		DebtRatio:         data.DebtRatio,
		CurrentRatio:      data.CurrentRatio,
		InterestCoverage:  data.InterestCoverage,
		OperatingCashFlow: data.OperatingCashFlow,

		DividendYield:            data.DividendYield,
		DividendPayoutRatio:      data.DividendPayoutRatio,
		ConsecutiveDividendYears: data.ConsecutiveDividendYears,

		MarketCap: data.MarketCap,
	}

	if err := s.fundRepo.Upsert(ctx, metrics); err != nil {
		report.RecordError()
		return err
	}

	report.RecordFundamentals()
	return nil
}

func isSourceNotFound(err error) bool {
	var srcErr datasource.SourceError
	return errors.As(err, &srcErr) && srcErr.Code == datasource.ErrCodeNotFound
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
