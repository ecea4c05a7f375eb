package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"podmill/internal/logging"
	"podmill/internal/services"
)

const defaultPoolWorkers = 4

// Pool runs tasks on a fixed set of goroutines inside the daemon process.
// Dispatch blocks when the buffer is full, which puts backpressure on the
// upload endpoint instead of letting accepted work pile up unbounded.
type Pool struct {
	logger  *slog.Logger
	process ProcessFunc

	tasks   chan Task
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a pool with the given number of workers and starts them.
// The buffer holds two tasks per worker, matching broker prefetch so both
// runners queue roughly the same amount ahead of execution.
func NewPool(workers int, process ProcessFunc, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  logging.NewComponentLogger(logger, "dispatch"),
		process: process,
		tasks:   make(chan Task, workers*2),
		runCtx:  runCtx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	p.logger.Info("task pool started", logging.Int("workers", workers))
	return p
}

// Dispatch enqueues a task for background processing. It fails fast on
// invalid tasks, returns ctx.Err when the caller gives up waiting for a free
// slot, and refuses work after Stop.
func (p *Pool) Dispatch(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return services.Wrap(services.ErrUnavailable, "dispatch", "enqueue", "runner stopped", nil)
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return services.Wrap(services.ErrTimeout, "dispatch", "enqueue", "queue full", ctx.Err())
	}
}

// Stop closes the queue and waits for workers to drain it. Tasks already
// accepted still run to completion unless ctx expires first, in which case
// the worker context is cancelled and Stop returns ctx.Err.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.tasks)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		p.logger.Info("task pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("task pool stopped before draining",
			logging.Args(logging.String(logging.FieldEventType, "pool_stop_timeout"))...)
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				logging.Args(
					logging.Int("worker", workerID),
					logging.String(logging.FieldJobID, task.JobID),
					logging.Any("panic", r),
					logging.String(logging.FieldEventType, "task_panic"),
				)...)
		}
	}()
	start := time.Now()
	if err := p.process(p.runCtx, task); err != nil {
		p.logger.Error("task failed",
			logging.Args(
				logging.Int("worker", workerID),
				logging.String(logging.FieldJobID, task.JobID),
				logging.Duration("task_duration", time.Since(start)),
				logging.Error(err),
			)...)
	}
}
