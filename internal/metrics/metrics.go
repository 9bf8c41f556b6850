// Package metrics provides the centralized Prometheus registry for the
// backtest service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	IngestionRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "value_backtest",
		Name:      "ingestion_rows_total",
		Help:      "Total number of rows ingested by kind",
	}, []string{"kind"})
	IngestionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "value_backtest",
		Name:      "ingestion_errors_total",
		Help:      "Total number of ingestion errors",
	})
	ScoreComputationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "value_backtest",
		Name:      "score_computations_total",
		Help:      "Total number of value score computations",
	})
	StaleRunsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "value_backtest",
		Name:      "stale_runs_swept_total",
		Help:      "Total number of stale backtest runs swept to failed",
	})
)

// Gauge metrics
var (
	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "value_backtest",
		Name:      "runs_in_flight",
		Help:      "Number of backtest runs currently executing",
	})
)

// Histogram metrics
var (
	IngestionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "value_backtest",
		Name:      "ingestion_duration_seconds",
		Help:      "Duration of ingestion passes in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	})
	ValueScoreDistribution = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "value_backtest",
		Name:      "value_score_distribution",
		Help:      "Distribution of computed composite value scores",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(IngestionRowsTotal)
		registry.MustRegister(IngestionErrorsTotal)
		registry.MustRegister(ScoreComputationsTotal)
		registry.MustRegister(StaleRunsSweptTotal)

		// Register gauge metrics
		registry.MustRegister(RunsInFlight)

		// Register histogram metrics
		registry.MustRegister(IngestionDuration)
		registry.MustRegister(ValueScoreDistribution)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(RecommendationReturns)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordIngestedRows records rows ingested for a data kind
// ("stocks", "prices", "fundamentals").
func RecordIngestedRows(kind string, n int) {
	IngestionRowsTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordIngestionError records an ingestion error event.
func RecordIngestionError() {
	IngestionErrorsTotal.Inc()
}

// RecordIngestionDuration records how long an ingestion pass took.
func RecordIngestionDuration(seconds float64) {
	IngestionDuration.Observe(seconds)
}

// RecordScoreComputation records a computed composite score.
func RecordScoreComputation(score float64) {
	ScoreComputationsTotal.Inc()
	ValueScoreDistribution.Observe(score)
}

// RecordStaleRunsSwept records runs failed by the stale sweep.
func RecordStaleRunsSwept(n int) {
	StaleRunsSweptTotal.Add(float64(n))
}
