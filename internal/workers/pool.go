// Package workers provides the bounded goroutine pool that runs per-unit
// synthesis work each cycle.
package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work. The context carries the cycle deadline.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

var (
	ErrPoolStopped = &PoolError{Message: "pool is stopped"}
	ErrQueueFull   = &PoolError{Message: "task queue is full"}
)

// PoolError is a pool lifecycle error.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name        string
	NumWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultPoolConfig returns defaults sized for the synthesis workload:
// mostly CPU-bound indicator math with occasional provider IO.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:        name,
		NumWorkers:  runtime.NumCPU(),
		QueueSize:   256,
		TaskTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
	Queued    int   `json:"queued"`
}

// Pool runs submitted tasks on a fixed set of workers. A panicking task
// is counted and recovered; one bad unit must not take down the cycle.
type Pool struct {
	logger *zap.Logger
	cfg    PoolConfig

	queue  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	running   atomic.Bool
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

// NewPool creates a pool; Start must be called before Submit.
func NewPool(logger *zap.Logger, cfg PoolConfig) *Pool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: logger.Named("workers").With(zap.String("pool", cfg.Name)),
		cfg:    cfg,
		queue:  make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting worker pool",
		zap.Int("workers", p.cfg.NumWorkers),
		zap.Int("queue_size", p.cfg.QueueSize),
	)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(logger, task)
		}
	}
}

func (p *Pool) execute(logger *zap.Logger, task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.failed.Add(1)
			logger.Error("recovered from task panic", zap.Any("panic", r))
		}
	}()

	if err := task.Execute(ctx); err != nil {
		p.failed.Add(1)
		logger.Debug("task failed", zap.Error(err))
		return
	}
	p.completed.Add(1)
}

// Submit enqueues a task without blocking. A full queue is an error; the
// caller decides whether to shed or retry.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc submits a function as a task.
func (p *Pool) SubmitFunc(fn func(ctx context.Context) error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop cancels in-flight tasks and waits for the workers to exit.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.Int64("completed", p.completed.Load()))
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
		Queued:    len(p.queue),
	}
}
