package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/metrics"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
)

// RecomputeResult summarizes a bulk score recomputation.
type RecomputeResult struct {
	Total   int     `json:"total"`
	Success int     `json:"success"`
	Failed  int     `json:"failed"`
	Skipped int     `json:"skipped"`
	Rate    float64 `json:"success_rate_pct"`
}

// Service computes value scores from stored fundamentals and persists
// them.
type Service struct {
	scorer       *Scorer
	stocks       repository.StockRepository
	fundamentals repository.FundamentalsRepository
	scores       repository.ValueScoreRepository
	log          *logrus.Logger
}

// NewService creates a persisting scoring service
func NewService(
	scorer *Scorer,
	stocks repository.StockRepository,
	fundamentals repository.FundamentalsRepository,
	scores repository.ValueScoreRepository,
	log *logrus.Logger,
) *Service {
	return &Service{
		scorer:       scorer,
		stocks:       stocks,
		fundamentals: fundamentals,
		scores:       scores,
		log:          log,
	}
}

// ComputeAndStore scores one stock as of the given date using the
// closest fundamentals snapshot on or before it, and upserts the result
// keyed by (stock, date). Returns models.ErrNotFound when the stock has
// no usable snapshot.
func (s *Service) ComputeAndStore(ctx context.Context, stockCode string, date time.Time) (*models.ValueScore, error) {
	snapshot, err := s.fundamentals.GetOnOrBefore(ctx, stockCode, date)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load fundamentals for %s: %w", stockCode, err)
	}

	score := s.scorer.Score(snapshot)
	score.Date = date

	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("failed to store value score for %s: %w", stockCode, err)
	}
	metrics.RecordScoreComputation(score.TotalScore)

	s.log.WithFields(logrus.Fields{
		"stock_code":  stockCode,
		"date":        date.Format("2006-01-02"),
		"total_score": score.TotalScore,
	}).Debug("Value score computed")

	return score, nil
}

// RecomputeAll scores every stock in the given market (or all markets)
// as of the given date. A stock with no fundamentals snapshot is
// skipped, not treated as a failure. limit <= 0 means no limit.
func (s *Service) RecomputeAll(ctx context.Context, market string, date time.Time, limit int) (*RecomputeResult, error) {
	stocks, err := s.stocks.GetByMarket(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}

	if limit > 0 && len(stocks) > limit {
		stocks = stocks[:limit]
	}

	result := &RecomputeResult{Total: len(stocks)}
	s.log.WithFields(logrus.Fields{
		"stocks": result.Total,
		"market": market,
		"date":   date.Format("2006-01-02"),
	}).Info("Starting value score recomputation")

	for i, stock := range stocks {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.ComputeAndStore(ctx, stock.Code, date)
		switch {
		case errors.Is(err, models.ErrNotFound):
			result.Skipped++
		case err != nil:
			result.Failed++
			s.log.WithError(err).WithField("stock_code", stock.Code).
				Warn("Failed to compute value score")
		default:
			result.Success++
		}

		if (i+1)%50 == 0 {
			s.log.WithFields(logrus.Fields{
				"processed": i + 1,
				"total":     result.Total,
				"success":   result.Success,
				"failed":    result.Failed,
			}).Info("Value score recomputation progress")
		}
	}

	if result.Total > 0 {
		result.Rate = float64(result.Success) / float64(result.Total) * 100
	}

	s.log.WithFields(logrus.Fields{
		"total":   result.Total,
		"success": result.Success,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	}).Info("Value score recomputation completed")

	return result, nil
}
