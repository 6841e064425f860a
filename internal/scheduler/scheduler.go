// Package scheduler bounds how many media processing jobs run at once.
// Uploads are accepted quickly; the expensive derivative work queues here.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
)

// ErrInterrupted signals that a processing job was cancelled while waiting
// for or holding a permit, typically during shutdown.
var ErrInterrupted = errors.New("processing interrupted")

// Pool grants processing permits. At most size jobs hold a permit at any
// moment; the rest block until one frees up or their context ends.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a Pool with the given number of permits. Size must be
// at least 1.
func NewPool(size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}, nil
}

// Size returns the configured permit count.
func (p *Pool) Size() int {
	return p.size
}

// Acquire blocks until a permit is available or ctx ends. On success the
// caller must call the returned release function exactly once, on every
// path out of the job.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	metrics.ProcessingQueued.Inc()
	defer metrics.ProcessingQueued.Dec()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	metrics.ProcessingActive.Inc()
	return func() {
		metrics.ProcessingActive.Dec()
		p.sem.Release(1)
	}, nil
}

// Do runs fn under a permit, releasing it when fn returns. Cancellation
// while queued surfaces as ErrInterrupted without running fn.
func (p *Pool) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		logging.Debug("Job %s interrupted while waiting for permit", name)
		return err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return fn(ctx)
}
