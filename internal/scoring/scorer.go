package scoring

import (
	"fmt"
	"strings"

	"github.com/yourusername/value-backtest/internal/models"
)

const (
	// targetPER is the fair-value earnings multiple the upside estimate
	// is anchored to.
	targetPER = 10.0

	// upsideCap bounds the upside estimate for very low multiples.
	upsideCap = 200.0

	MaxValuationScore     = 40.0
	MaxProfitabilityScore = 30.0
	MaxStabilityScore     = 20.0
	MaxDividendScore      = 10.0
)

// Scorer converts a fundamentals snapshot into a 0-100 composite value
// score. It holds no state and is safe for concurrent use.
type Scorer struct{}

// NewScorer creates a new value scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes all category scores, the total, the upside estimate and
// the qualitative summary for one fundamentals snapshot. The returned
// score carries the snapshot's stock code; the caller decides the date
// it is recorded under.
func (s *Scorer) Score(m *models.HistoricalFinancialMetrics) *models.ValueScore {
	valuation := s.ValuationScore(m)
	profitability := s.ProfitabilityScore(m)
	stability := s.StabilityScore(m)
	dividend := s.DividendScore(m)

	score := &models.ValueScore{
		StockCode:          m.StockCode,
		ValuationScore:     valuation,
		ProfitabilityScore: profitability,
		StabilityScore:     stability,
		DividendScore:      dividend,
		TotalScore:         valuation + profitability + stability + dividend,
		UpsidePotential:    UpsidePotential(m.PER),
	}

	score.Summary = buildSummary(m, valuation, profitability)
	score.Strengths, score.Risks = buildStrengthsRisks(m)

	return score
}

// ValuationScore maps PER and PBR onto a 0-40 scale. Lower multiples
// score higher; a missing metric contributes 0.
func (s *Scorer) ValuationScore(m *models.HistoricalFinancialMetrics) float64 {
	score := 0.0

	if m.PER != nil {
		per := *m.PER
		switch {
		case per < 0:
			// loss-making, no multiple credit
		case per < 5:
			score += 20
		case per < 10:
			score += 15
		case per < 15:
			score += 10
		case per < 20:
			score += 5
		}
	}

	if m.PBR != nil {
		pbr := *m.PBR
		switch {
		case pbr < 0.5:
			score += 20
		case pbr < 1.0:
			score += 15
		case pbr < 1.5:
			score += 10
		case pbr < 2.0:
			score += 5
		}
	}

	return min(score, MaxValuationScore)
}

// ProfitabilityScore maps ROE and operating margin onto a 0-30 scale.
func (s *Scorer) ProfitabilityScore(m *models.HistoricalFinancialMetrics) float64 {
	score := 0.0

	if m.ROE != nil {
		score += marginBand(*m.ROE)
	}
	if m.OperatingMargin != nil {
		score += marginBand(*m.OperatingMargin)
	}

	return min(score, MaxProfitabilityScore)
}

// marginBand is the shared 0-15 band used for both ROE and operating
// margin.
func marginBand(v float64) float64 {
	switch {
	case v >= 20:
		return 15
	case v >= 15:
		return 12
	case v >= 10:
		return 9
	case v >= 5:
		return 5
	default:
		return 0
	}
}

// StabilityScore maps debt ratio and current ratio onto a 0-20 scale.
func (s *Scorer) StabilityScore(m *models.HistoricalFinancialMetrics) float64 {
	score := 0.0

	if m.DebtRatio != nil {
		debt := *m.DebtRatio
		switch {
		case debt < 30:
			score += 10
		case debt < 50:
			score += 8
		case debt < 100:
			score += 5
		case debt < 150:
			score += 2
		}
	}

	if m.CurrentRatio != nil {
		current := *m.CurrentRatio
		switch {
		case current >= 200:
			score += 10
		case current >= 150:
			score += 8
		case current >= 100:
			score += 5
		case current >= 80:
			score += 2
		}
	}

	return min(score, MaxStabilityScore)
}

// DividendScore maps dividend yield and consecutive payout years onto a
// 0-10 scale.
func (s *Scorer) DividendScore(m *models.HistoricalFinancialMetrics) float64 {
	score := 0.0

	if m.DividendYield != nil {
		yield := *m.DividendYield
		switch {
		case yield >= 5:
			score += 7
		case yield >= 3:
			score += 5
		case yield >= 2:
			score += 3
		case yield >= 1:
			score += 1
		}
	}

	if m.ConsecutiveDividendYears != nil {
		years := *m.ConsecutiveDividendYears
		switch {
		case years >= 10:
			score += 3
		case years >= 5:
			score += 2
		case years >= 3:
			score += 1
		}
	}

	return min(score, MaxDividendScore)
}

// UpsidePotential estimates percentage upside to a fair-value PER of 10.
// No estimate (nil) when PER is missing or non-positive; floored at 0
// when the stock already trades at or above the target; capped at 200
// for very low multiples.
func UpsidePotential(per *float64) *float64 {
	if per == nil || *per <= 0 {
		return nil
	}

	if *per >= targetPER {
		zero := 0.0
		return &zero
	}

	upside := (targetPER - *per) / *per * 100
	if upside > upsideCap {
		upside = upsideCap
	}
	return &upside
}

func buildSummary(m *models.HistoricalFinancialMetrics, valuation, profitability float64) string {
	var parts []string

	if valuation >= 25 {
		parts = append(parts, "undervalued relative to peers")
	} else if valuation >= 15 {
		parts = append(parts, "fairly valued")
	}

	if profitability >= 20 {
		parts = append(parts, "consistently profitable")
	} else if profitability >= 10 {
		parts = append(parts, "solid profitability")
	}

	if m.ROE != nil && *m.ROE >= 15 {
		parts = append(parts, fmt.Sprintf("strong ROE of %.1f%%", *m.ROE))
	}

	if len(parts) == 0 {
		parts = append(parts, "no standout fundamentals")
	}

	return strings.Join(parts, ", ") + "."
}

func buildStrengthsRisks(m *models.HistoricalFinancialMetrics) ([]string, []string) {
	var strengths, risks []string

	if m.PER != nil && *m.PER > 0 && *m.PER < 10 {
		strengths = append(strengths, fmt.Sprintf("Low valuation at PER %.1f", *m.PER))
	}
	if m.ROE != nil && *m.ROE >= 15 {
		strengths = append(strengths, fmt.Sprintf("High profitability with ROE %.1f%%", *m.ROE))
	}
	if m.DebtRatio != nil && *m.DebtRatio < 50 {
		strengths = append(strengths, fmt.Sprintf("Healthy balance sheet with debt ratio %.1f%%", *m.DebtRatio))
	}
	if m.DividendYield != nil && *m.DividendYield >= 3 {
		strengths = append(strengths, fmt.Sprintf("Dividend yield of %.1f%%", *m.DividendYield))
	}

	if m.DebtRatio != nil && *m.DebtRatio > 100 {
		risks = append(risks, fmt.Sprintf("Elevated debt ratio of %.1f%%", *m.DebtRatio))
	}
	if m.OperatingMargin != nil && *m.OperatingMargin < 5 {
		risks = append(risks, fmt.Sprintf("Thin operating margin of %.1f%%", *m.OperatingMargin))
	}
	if m.CurrentRatio != nil && *m.CurrentRatio < 100 {
		risks = append(risks, "Current ratio below 100%, short-term liquidity needs watching")
	}

	return strengths, risks
}
