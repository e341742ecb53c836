package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Dispatch once the pool's context is done.
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool manages a pool of workers for per-device deliveries.
type WorkerPool struct {
	size int
	jobs chan func()
	done <-chan struct{}
	log  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, log *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size: size,
		// Unbuffered: an accepted job is always picked up by a live worker.
		jobs: make(chan func()),
		log:  log,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.done = ctx.Done()
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case job := <-wp.jobs:
			job()
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch hands job to an idle worker, blocking until one accepts it.
func (wp *WorkerPool) Dispatch(ctx context.Context, job func()) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.done:
		return ErrPoolStopped
	}
}
