// Package worker runs fire-and-forget tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 1024
	defaultTaskTimeout = 5 * time.Second
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// Pool executes submitted tasks on a fixed number of workers reading from a
// bounded queue. Submit never blocks: when the queue is full the task is
// dropped. Task failures are logged and not retried.
type Pool struct {
	logger *slog.Logger

	workers     int
	queueSize   int
	taskTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewPool creates a Pool and starts its workers.
func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		logger:      logger,
		workers:     defaultWorkers,
		queueSize:   defaultQueueSize,
		taskTimeout: defaultTaskTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.jobs = make(chan job, p.queueSize)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.work()
	}

	return p
}

// Submit enqueues task under name and reports whether it was accepted.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("task rejected: pool is closed", slog.String("task", name))
		return false
	}

	select {
	case p.jobs <- job{name: name, task: task}:
		return true
	default:
		p.logger.Warn("task dropped: queue is full", slog.String("task", name))
		return false
	}
}

// Shutdown stops accepting tasks and waits for the queued ones to finish or
// for ctx to be done.
func (p *Pool) Shutdown(ctx context.Context) error {
	const op = "worker.Pool.Shutdown"

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", slog.String("task", j.name), slog.Any("panic", r))
		}
	}()

	if err := j.task(ctx); err != nil {
		p.logger.Error("task failed", slog.String("task", j.name), slog.Any("err", err))
	}
}
