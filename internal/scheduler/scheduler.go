// Package scheduler wires the recurring maintenance jobs: end-of-day
// data sync, stale run sweeps, and score recomputation.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/value-backtest/internal/metrics"
	"github.com/yourusername/value-backtest/internal/models"
	"github.com/yourusername/value-backtest/internal/repository"
	"github.com/yourusername/value-backtest/internal/scoring"
	"github.com/yourusername/value-backtest/internal/service"
)

const staleRunFailureMessage = "run exceeded the stale timeout and was swept"

// Scheduler manages the recurring jobs
type Scheduler struct {
	cron      *cron.Cron
	ingestion *service.Ingestion
	scores    *scoring.Service
	runs      repository.RunRepository
	log       *logrus.Logger

	mu        sync.RWMutex
	isRunning bool
	jobIDs    []cron.EntryID

	staleTimeout time.Duration
}

// NewScheduler creates a scheduler. staleTimeout bounds how long a run
// may sit in running state before the sweep fails it.
func NewScheduler(
	ingestion *service.Ingestion,
	scores *scoring.Service,
	runs repository.RunRepository,
	log *logrus.Logger,
	staleTimeout time.Duration,
) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		ingestion:    ingestion,
		scores:       scores,
		runs:         runs,
		log:          log,
		jobIDs:       make([]cron.EntryID, 0),
		staleTimeout: staleTimeout,
	}
}

// ScheduleDailySync schedules the end-of-day data synchronization
func (s *Scheduler) ScheduleDailySync(cronExpression string) error {
	return s.addJob("daily_sync", cronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Hour)
		defer cancel()

		report, err := s.ingestion.SyncDaily(ctx, time.Now())
		if err != nil {
			s.log.WithError(err).Error("Scheduled daily sync failed")
			return
		}

		totals := report.Snapshot()
		metrics.RecordIngestionDuration(totals.Duration.Seconds())
		s.log.WithFields(logrus.Fields{
			"stocks":       totals.StocksUpserted,
			"price_rows":   totals.PriceRowsInserted,
			"fundamentals": totals.FundamentalsFetched,
			"errors":       totals.Errors,
			"duration":     totals.Duration,
		}).Info("Scheduled daily sync completed")
	})
}

// ScheduleStaleRunSweep schedules the sweep that fails runs stuck in
// running state past the stale timeout.
func (s *Scheduler) ScheduleStaleRunSweep(cronExpression string) error {
	return s.addJob("stale_run_sweep", cronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		cutoff := time.Now().Add(-s.staleTimeout)
		swept, err := s.runs.FailStale(ctx, cutoff, staleRunFailureMessage)
		if err != nil {
			s.log.WithError(err).Error("Stale run sweep failed")
			return
		}
		if swept > 0 {
			metrics.RecordStaleRunsSwept(swept)
			s.log.WithField("swept", swept).Warn("Failed stale backtest runs")
		}
	})
}

// ScheduleScoreRecompute schedules the bulk score recomputation over
// the full universe as of the job's run date.
func (s *Scheduler) ScheduleScoreRecompute(cronExpression string) error {
	return s.addJob("score_recompute", cronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		result, err := s.scores.RecomputeAll(ctx, models.MarketAll, time.Now(), 0)
		if err != nil {
			s.log.WithError(err).Error("Scheduled score recompute failed")
			return
		}

		s.log.WithFields(logrus.Fields{
			"total":   result.Total,
			"success": result.Success,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("Scheduled score recompute completed")
	})
}

func (s *Scheduler) addJob(name, cronExpression string, jobFunc func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule %s while scheduler is running", name)
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.log.WithFields(logrus.Fields{
		"job":  name,
		"cron": cronExpression,
	}).Info("Scheduled job")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.log.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop gracefully stops the scheduler, waiting for in-flight jobs
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.log.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns the earliest upcoming scheduled run time, or the
// zero time when nothing is scheduled.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	var next time.Time
	for _, id := range s.jobIDs {
		entry := s.cron.Entry(id)
		if entry.Next.IsZero() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}
