// Package metrics defines backtesting-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "value_backtest",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by strategy and outcome",
	}, []string{"strategy", "status"})
)

// Backtest histogram vectors
var (
	BacktestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "value_backtest",
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest run execution in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	})
	RecommendationReturns = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "value_backtest",
		Name:      "recommendation_return_pct",
		Help:      "Realized holding-period returns of recommendations by strategy",
		Buckets:   []float64{-50, -30, -20, -10, -5, 0, 5, 10, 20, 30, 50, 100},
	}, []string{"strategy"})
)

// RecordBacktestRun records a finished run.
// status should be one of: "completed", "failed"
func RecordBacktestRun(strategy, status string, durationSeconds float64) {
	BacktestRunsTotal.WithLabelValues(strategy, status).Inc()
	BacktestDuration.Observe(durationSeconds)
}

// RecordRecommendationReturn records one evaluated recommendation's
// realized return.
func RecordRecommendationReturn(strategy string, returnPct float64) {
	RecommendationReturns.WithLabelValues(strategy).Observe(returnPct)
}

// RunStarted marks a run as in flight.
func RunStarted() {
	RunsInFlight.Inc()
}

// RunFinished marks a run as no longer in flight.
func RunFinished() {
	RunsInFlight.Dec()
}
