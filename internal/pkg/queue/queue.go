// Package queue provides a bounded in-memory job queue with a fixed worker
// pool. The pipeline uses it to fan scrape and scoring work out with fault
// isolation: a job that fails or panics never takes down its worker.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of asynchronous work.
type Job func(ctx context.Context) error

// ErrorHandler is invoked for every job that returns an error.
type ErrorHandler func(err error, job Job)

// Queue is an in-memory job queue with a fixed worker pool.
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg     sync.WaitGroup
	closed atomic.Bool

	stats queueStats
}

// queueStats holds the internal counters (atomic types).
type queueStats struct {
	TotalEnqueued  atomic.Int64
	TotalProcessed atomic.Int64
	TotalSucceeded atomic.Int64
	TotalFailed    atomic.Int64
	TotalDropped   atomic.Int64
	TotalPanics    atomic.Int64
}

// QueueStats is a copyable snapshot of the queue counters.
type QueueStats struct {
	TotalEnqueued  int64
	TotalProcessed int64
	TotalSucceeded int64
	TotalFailed    int64
	TotalDropped   int64 // rejected because the queue was full
	TotalPanics    int64
}

// NewQueue creates a queue with the given worker count and capacity.
// Both are raised to at least 1.
func NewQueue(logger *slog.Logger, workers int, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler installs the failed-job callback.
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start launches the worker pool. Workers run until ctx is cancelled or
// Shutdown is called.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return

		case job, ok := <-q.jobs:
			if !ok {
				q.logger.Debug("worker exit on closed channel", slog.Int("worker_id", id))
				return
			}
			if job != nil {
				q.executeJob(ctx, job, id)
			}
		}
	}
}

// executeJob runs one job with panic recovery and error accounting.
func (q *Queue) executeJob(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.stats.TotalPanics.Add(1)
			q.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err := job(ctx)
	q.stats.TotalProcessed.Add(1)

	if err != nil {
		q.stats.TotalFailed.Add(1)
		q.logger.Warn("job failed",
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))

		if q.errorHandler != nil {
			q.errorHandler(err, job)
		}
	} else {
		q.stats.TotalSucceeded.Add(1)
	}
}

// Enqueue submits a job without blocking; it returns false if the queue is
// full or closed.
func (q *Queue) Enqueue(job Job) bool {
	if job == nil {
		return false
	}

	if q.closed.Load() {
		q.logger.Warn("queue is closed, reject job")
		return false
	}

	select {
	case q.jobs <- job:
		q.stats.TotalEnqueued.Add(1)
		return true
	default:
		q.stats.TotalDropped.Add(1)
		q.logger.Warn("queue full, drop job",
			slog.Int("capacity", cap(q.jobs)),
			slog.Int("pending", len(q.jobs)))
		return false
	}
}

// EnqueueBlocking submits a job, waiting until there is room or ctx is
// cancelled.
func (q *Queue) EnqueueBlocking(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	if q.closed.Load() {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.jobs <- job:
		q.stats.TotalEnqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the queue and waits for in-flight jobs to drain. New
// submissions are rejected as soon as shutdown begins.
func (q *Queue) Shutdown() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.jobs)
		q.logger.Info("queue shutdown initiated, waiting for workers to finish")
		q.wg.Wait()
		q.logger.Info("queue shutdown completed")
	}
}

// ShutdownWithTimeout drains the queue but gives up after the timeout.
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("queue already closed")
	}

	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue shutdown completed")
		return nil
	case <-time.After(timeout):
		q.logger.Error("queue shutdown timeout")
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		TotalEnqueued:  q.stats.TotalEnqueued.Load(),
		TotalProcessed: q.stats.TotalProcessed.Load(),
		TotalSucceeded: q.stats.TotalSucceeded.Load(),
		TotalFailed:    q.stats.TotalFailed.Load(),
		TotalDropped:   q.stats.TotalDropped.Load(),
		TotalPanics:    q.stats.TotalPanics.Load(),
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// IsClosed reports whether Shutdown has started.
func (q *Queue) IsClosed() bool {
	return q.closed.Load()
}
