// Package backfill periodically sweeps the library for assets whose
// derivative set is incomplete and asks the pipeline to finish them.
// Uploads interrupted by a restart are the usual source of such gaps.
package backfill

import (
	"context"
	"sync"
	"time"

	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
	"gallery-server/internal/pipeline"
)

// Status reports the runner's view of the last and current sweep.
type Status struct {
	Running    bool                     `json:"running"`
	LastRun    time.Time                `json:"lastRun,omitempty"`
	LastError  string                   `json:"lastError,omitempty"`
	LastReport *pipeline.BackfillReport `json:"lastReport,omitempty"`
}

// Runner schedules backfill sweeps: one on startup, one per interval, and
// one whenever Trigger is called. Sweeps never overlap.
type Runner struct {
	p        *pipeline.Pipeline
	interval time.Duration

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once

	mu            sync.Mutex
	running       bool
	overwriteNext bool
	lastRun       time.Time
	lastErr       error
	lastReport    *pipeline.BackfillReport
}

// New creates a Runner sweeping at the given interval. An interval of 0
// disables the periodic sweep; Trigger still works.
func New(p *pipeline.Pipeline, interval time.Duration) *Runner {
	return &Runner{
		p:        p,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. The initial sweep runs immediately so a
// restart picks up interrupted work without waiting a full interval.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop terminates the sweep loop. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Trigger requests a sweep outside the regular schedule. If one is already
// queued or running the request coalesces into it. An overwrite request
// makes the next sweep rebuild derivatives even where they already exist.
func (r *Runner) Trigger(overwrite bool) {
	if overwrite {
		r.mu.Lock()
		r.overwriteNext = true
		r.mu.Unlock()
	}
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// GetStatus returns a snapshot of the runner state.
func (r *Runner) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Running:    r.running,
		LastRun:    r.lastRun,
		LastReport: r.lastReport,
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

func (r *Runner) loop(ctx context.Context) {
	r.sweep(ctx)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
		logging.Info("Backfill sweeps scheduled every %v", r.interval)
	} else {
		logging.Info("Periodic backfill disabled; manual triggers only")
	}

	for {
		select {
		case <-tick:
			r.sweep(ctx)
		case <-r.trigger:
			r.sweep(ctx)
		case <-r.stopChan:
			logging.Info("Backfill runner stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	overwrite := r.overwriteNext
	r.overwriteNext = false
	r.mu.Unlock()

	metrics.BackfillIsRunning.Set(1)
	start := time.Now()

	report, err := r.p.GenerateMissingDerivatives(ctx, overwrite)
	elapsed := time.Since(start)

	metrics.BackfillIsRunning.Set(0)
	metrics.BackfillRunsTotal.Inc()
	metrics.BackfillLastRunTimestamp.Set(float64(start.Unix()))
	metrics.BackfillLastRunDuration.Set(elapsed.Seconds())

	r.mu.Lock()
	r.running = false
	r.lastRun = start
	r.lastErr = err
	r.lastReport = report
	r.mu.Unlock()

	switch {
	case err != nil:
		logging.Error("Backfill sweep failed after %v: %v", elapsed, err)
	case report != nil && report.Processed > 0:
		logging.Info("Backfill sweep finished in %v: %d processed, %d succeeded, %d failed, %d skipped",
			elapsed, report.Processed, report.Succeeded, report.Failed, report.Skipped)
	default:
		logging.Debug("Backfill sweep found nothing to do (%v)", elapsed)
	}
}
