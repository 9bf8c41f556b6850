package backtest

import (
	"time"

	"github.com/yourusername/value-backtest/internal/models"
)

// Cadence is how often a backtest series samples a new simulation date.
type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// cadenceDays maps each cadence onto its fixed day increment. Months
// are 30 days and years 365 on purpose: calendar-accurate increments
// would shift every historical simulation date and silently change
// existing results.
var cadenceDays = map[Cadence]int{
	CadenceMonthly:   30,
	CadenceQuarterly: 90,
	CadenceYearly:    365,
}

// Days returns the fixed day increment for the cadence, or false when
// the cadence is unknown.
func (c Cadence) Days() (int, bool) {
	d, ok := cadenceDays[c]
	return d, ok
}

// GenerateSimulationDates expands [start, end] into simulation dates:
// the first date is start, each following date adds the cadence's fixed
// increment, and no date exceeds end. Returns models.ErrInvalidCadence
// for an unknown cadence and models.ErrInvalidRange when start is after
// end.
func GenerateSimulationDates(start, end time.Time, cadence Cadence) ([]time.Time, error) {
	days, ok := cadence.Days()
	if !ok {
		return nil, models.ErrInvalidCadence
	}

	if start.After(end) {
		return nil, models.ErrInvalidRange
	}

	var dates []time.Time
	for current := start; !current.After(end); current = current.AddDate(0, 0, days) {
		dates = append(dates, current)
	}

	return dates, nil
}
