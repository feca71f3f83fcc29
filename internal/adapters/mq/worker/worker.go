// Package worker drains queue lanes and runs their jobs one at a time per lane.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/clicker/internal/adapters/mq/queue"
	"github.com/okian/clicker/pkg/logger"
	"github.com/okian/clicker/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultJobTimeout       = 5 * time.Second
)

// Lanes is the consumer side of a queue.
type Lanes interface {
	Ready() <-chan string
	Next(key string) (*queue.Job, bool)
}

// Queue is what a Pool needs from its queue.
type Queue interface {
	Lanes
	Enqueue(ctx context.Context, j *queue.Job) error
	Drain() []*queue.Job
	Close() error
}

// Worker runs jobs read off a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker owns one lane at a time and runs its jobs in order.
type InMemoryWorker struct {
	lanes      Lanes
	name       string
	jobTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

func newConfig(opts []Option) config {
	c := config{
		name:       "worker",
		workers:    runtime.NumCPU() * defaultWorkerMultiplier,
		jobTimeout: defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("worker")
	}
	return c
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(lanes Lanes, opts ...Option) *InMemoryWorker {
	c := newConfig(opts)
	w := &InMemoryWorker{
		lanes:      lanes,
		name:       c.name,
		jobTimeout: c.jobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     c.logger,
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ready := w.lanes.Ready()
	for {
		if w.stopping(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case key, ok := <-ready:
			if !ok {
				return
			}
			w.drain(ctx, key)
		}
	}
}

// Shutdown signals the worker and waits for it to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stopping(ctx context.Context) bool {
	select {
	case <-w.shutdown:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// drain runs the lane until it is released or the worker stops. Jobs left
// behind are failed by the pool.
func (w *InMemoryWorker) drain(ctx context.Context, key string) {
	for !w.stopping(ctx) {
		job, ok := w.lanes.Next(key)
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

type outcome struct {
	value any
	err   error
}

// process runs one job under the job timeout. A job that overruns is
// completed with ErrJobTimeout and the lane moves on.
func (w *InMemoryWorker) process(ctx context.Context, job *queue.Job) {
	start := time.Now()
	metrics.RecordJobWait(float64(start.Sub(job.EnqueuedAt).Milliseconds()))
	defer func() {
		metrics.RecordJobLatency(float64(time.Since(start).Milliseconds()))
	}()

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("job panicked: %v", r)}
			}
		}()
		v, err := job.Run(jctx)
		out <- outcome{value: v, err: err}
	}()

	select {
	case o := <-out:
		job.Complete(o.value, o.err)
	case <-jctx.Done():
		if errors.Is(jctx.Err(), context.DeadlineExceeded) {
			metrics.RecordJobTimeout()
			metrics.RecordErrorByComponent("worker", "job_timeout")
			w.logger.Warn(ctx, "job timed out",
				logger.String("job_id", job.ID),
				logger.String("key", job.Key),
				logger.Duration("timeout", w.jobTimeout),
			)
			job.Complete(nil, ErrJobTimeout)
			return
		}
		job.Complete(nil, ErrStopped)
	}
}

// Pool serializes submitted work per key across a fixed set of workers.
type Pool struct {
	queue   Queue
	workers []*InMemoryWorker

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	logger logger.Logger
}

// NewPool creates a new worker pool over q.
func NewPool(q Queue, opts ...Option) *Pool {
	c := newConfig(opts)
	pool := &Pool{
		queue:   q,
		workers: make([]*InMemoryWorker, c.workers),
		logger:  c.logger.Named("worker-pool"),
	}
	for i := range pool.workers {
		pool.workers[i] = NewInMemoryWorker(q,
			WithName("worker-"+strconv.Itoa(i)),
			WithJobTimeout(c.jobTimeout),
			WithLogger(c.logger),
		)
	}
	metrics.UpdateWorkerCount(c.workers)
	return pool
}

// Start starts all workers in the pool. Calls after the first are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// Submit enqueues run on key's lane and waits for its result. A caller that
// gives up does not retract the job.
func (p *Pool) Submit(ctx context.Context, key string, run queue.RunFunc) (any, error) {
	job := queue.NewJob(key, run)
	if err := p.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrStopped
		}
		return nil, err
	}

	select {
	case r := <-job.Done():
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown closes the queue and waits for workers to finish their current
// jobs. Jobs still pending are failed with ErrStopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if cerr := p.queue.Close(); cerr != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
		}

		if p.started.Load() {
			for i, w := range p.workers {
				if werr := w.Shutdown(ctx); werr != nil {
					p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
					err = werr
				}
			}
		}

		pending := p.queue.Drain()
		for _, j := range pending {
			j.Complete(nil, ErrStopped)
		}
		if len(pending) > 0 {
			p.logger.Info(ctx, "failed pending jobs on shutdown", logger.Int("count", len(pending)))
		}
		metrics.UpdateWorkerCount(0)
	})
	return err
}
