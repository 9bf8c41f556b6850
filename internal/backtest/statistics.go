package backtest

import (
	"math"
	"sort"
)

// riskFreeRatePct is the annual risk-free rate assumed by the Sharpe
// ratio, in percent.
const riskFreeRatePct = 3.0

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// sampleStdDev is the sample standard deviation (n-1 denominator).
// Fewer than two points have no spread to measure, so 0.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// winRatePct is the percentage of strictly positive returns.
func winRatePct(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns)) * 100
}

// sharpeRatio is (mean return - risk-free rate) / volatility, or 0 when
// volatility is 0.
func sharpeRatio(meanReturn, volatility float64) float64 {
	if volatility == 0 {
		return 0
	}
	return (meanReturn - riskFreeRatePct) / volatility
}
