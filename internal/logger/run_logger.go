// Package logger provides backtest-run lifecycle logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// RunLogger provides dedicated logging for backtest run execution.
type RunLogger struct {
	*logrus.Entry
}

// NewRunLogger creates a new backtest run logger.
func NewRunLogger(baseLogger *logrus.Logger) *RunLogger {
	return &RunLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// LogRunStarted logs entry into the running state.
func (rl *RunLogger) LogRunStarted(runID, name, market string, simulationDate string) {
	rl.WithFields(logrus.Fields{
		"run_id":          runID,
		"name":            name,
		"market":          market,
		"simulation_date": simulationDate,
	}).Info("Backtest run started")
}

// LogRecommendationsGenerated logs the outcome of candidate ranking.
func (rl *RunLogger) LogRecommendationsGenerated(runID string, candidates, scored, selected int, durationMs float64) {
	rl.WithFields(logrus.Fields{
		"run_id":      runID,
		"candidates":  candidates,
		"scored":      scored,
		"selected":    selected,
		"duration_ms": durationMs,
	}).Info("Recommendations generated")
}

// LogRunCompleted logs a successful run with its headline statistics.
func (rl *RunLogger) LogRunCompleted(runID string, evaluated int, avgReturnPct, winRatePct float64, durationMs float64) {
	rl.WithFields(logrus.Fields{
		"run_id":         runID,
		"evaluated":      evaluated,
		"avg_return_pct": avgReturnPct,
		"win_rate_pct":   winRatePct,
		"duration_ms":    durationMs,
	}).Info("Backtest run completed")
}

// LogRunFailed logs a terminal failure.
func (rl *RunLogger) LogRunFailed(runID string, err error) {
	rl.WithFields(logrus.Fields{
		"run_id": runID,
		"error":  err.Error(),
	}).Error("Backtest run failed")
}
