package backtest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/value-backtest/internal/metrics"
)

// ErrRunInFlight means this process is already executing the run.
var ErrRunInFlight = errors.New("backtest run already in flight")

// Launcher executes runs in the background with bounded concurrency.
// A per-id single-flight guard plus the storage-level pending->running
// swap together give at-most-once execution per run.
type Launcher struct {
	engine *Engine
	log    *logrus.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	slots    chan struct{}
	wg       sync.WaitGroup
}

// NewLauncher creates a launcher allowing maxConcurrent simultaneous
// runs.
func NewLauncher(engine *Engine, maxConcurrent int, log *logrus.Logger) *Launcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if log == nil {
		log = logrus.New()
	}

	return &Launcher{
		engine:   engine,
		log:      log,
		inFlight: make(map[uuid.UUID]struct{}),
		slots:    make(chan struct{}, maxConcurrent),
	}
}

// Submit starts executing the run in the background and returns
// immediately. ErrRunInFlight when this process already has the run
// going. The run's own state transitions record the eventual outcome;
// a submit is fire-and-forget.
func (l *Launcher) Submit(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	if _, ok := l.inFlight[id]; ok {
		l.mu.Unlock()
		return ErrRunInFlight
	}
	l.inFlight[id] = struct{}{}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.inFlight, id)
			l.mu.Unlock()
		}()

		l.slots <- struct{}{}
		defer func() { <-l.slots }()

		metrics.RunStarted()
		defer metrics.RunFinished()

		if _, err := l.engine.Execute(ctx, id); err != nil {
			// Execute has already recorded the failure on the run;
			// here it only needs to reach the process log.
			l.log.WithError(err).WithField("run_id", id.String()).
				Error("Background backtest run failed")
		}
	}()

	return nil
}

// Wait blocks until all submitted runs have finished. Used on shutdown
// and in tests.
func (l *Launcher) Wait() {
	l.wg.Wait()
}
