package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/value-backtest/internal/database"
	"github.com/yourusername/value-backtest/internal/models"
)

// PostgresFundamentalsRepository implements FundamentalsRepository for PostgreSQL
type PostgresFundamentalsRepository struct {
	db *database.DB
}

// NewPostgresFundamentalsRepository creates a new fundamentals repository
func NewPostgresFundamentalsRepository(db *database.DB) FundamentalsRepository {
	return &PostgresFundamentalsRepository{db: db}
}

// Upsert inserts or refreshes a point-in-time fundamentals snapshot
func (r *PostgresFundamentalsRepository) Upsert(ctx context.Context, m *models.HistoricalFinancialMetrics) error {
	query := `
		INSERT INTO historical_financial_metrics (
			stock_code, snapshot_date, report_date,
			per, pbr, psr, ev_ebitda,
			roe, roa, operating_margin, net_profit_growth,
			debt_ratio, current_ratio, interest_coverage, operating_cash_flow,
			dividend_yield, dividend_payout_ratio, consecutive_dividend_years,
			market_cap
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (stock_code, snapshot_date) DO UPDATE SET
			report_date = EXCLUDED.report_date,
			per = EXCLUDED.per,
			pbr = EXCLUDED.pbr,
			psr = EXCLUDED.psr,
			ev_ebitda = EXCLUDED.ev_ebitda,
			roe = EXCLUDED.roe,
			roa = EXCLUDED.roa,
			operating_margin = EXCLUDED.operating_margin,
			net_profit_growth = EXCLUDED.net_profit_growth,
			debt_ratio = EXCLUDED.debt_ratio,
			current_ratio = EXCLUDED.current_ratio,
			interest_coverage = EXCLUDED.interest_coverage,
			operating_cash_flow = EXCLUDED.operating_cash_flow,
			dividend_yield = EXCLUDED.dividend_yield,
			dividend_payout_ratio = EXCLUDED.dividend_payout_ratio,
			consecutive_dividend_years = EXCLUDED.consecutive_dividend_years,
			market_cap = EXCLUDED.market_cap
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		m.StockCode, m.SnapshotDate, m.ReportDate,
		m.PER, m.PBR, m.PSR, m.EVEBITDA,
		m.ROE, m.ROA, m.OperatingMargin, m.NetProfitGrowth,
		m.DebtRatio, m.CurrentRatio, m.InterestCoverage, m.OperatingCashFlow,
		m.DividendYield, m.DividendPayoutRatio, m.ConsecutiveDividendYears,
		m.MarketCap,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals: %w", err)
	}

	return nil
}

// GetOnOrBefore retrieves the closest snapshot on or before the given date
func (r *PostgresFundamentalsRepository) GetOnOrBefore(ctx context.Context, stockCode string, date time.Time) (*models.HistoricalFinancialMetrics, error) {
	query := `
		SELECT stock_code, snapshot_date, report_date,
		       per, pbr, psr, ev_ebitda,
		       roe, roa, operating_margin, net_profit_growth,
		       debt_ratio, current_ratio, interest_coverage, operating_cash_flow,
		       dividend_yield, dividend_payout_ratio, consecutive_dividend_years,
		       market_cap
		FROM historical_financial_metrics
		WHERE stock_code = $1 AND snapshot_date <= $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	m := &models.HistoricalFinancialMetrics{}
	err := r.db.GetPool().QueryRow(ctx, query, stockCode, date).Scan(
		&m.StockCode, &m.SnapshotDate, &m.ReportDate,
		&m.PER, &m.PBR, &m.PSR, &m.EVEBITDA,
		&m.ROE, &m.ROA, &m.OperatingMargin, &m.NetProfitGrowth,
		&m.DebtRatio, &m.CurrentRatio, &m.InterestCoverage, &m.OperatingCashFlow,
		&m.DividendYield, &m.DividendPayoutRatio, &m.ConsecutiveDividendYears,
		&m.MarketCap,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fundamentals on or before date: %w", err)
	}

	return m, nil
}
