package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type PoolStats struct {
	Workers   int   `json:"workers"`
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs blocking engine calls on a fixed number of workers behind a
// bounded queue.
type Pool struct {
	jobs    chan job
	workers int
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		jobs:    make(chan job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("engine worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.jobs)))
}

// Stop rejects new work, lets queued jobs finish, and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("engine worker pool stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()),
	)
}

// Do queues fn and waits for it. It fails at once with ErrPoolFull when no
// queue slot is free. When ctx ends first, Do returns and fn sees the
// cancelled context.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		return ErrPoolFull
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Pending:   len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			p.failed.Add(1)
			j.done <- err
			continue
		}

		err := j.fn(j.ctx)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		j.done <- err
	}
}

// Snapshot reports the worker count and queue depth.
func (p *Pool) Snapshot() (workers, pending int) {
	return p.workers, len(p.jobs)
}
