// Package queue holds pending jobs in keyed FIFO lanes.
//
// Each lane is announced on the Ready channel at most once while it has
// work. A consumer that receives a key owns the lane and pulls jobs with
// Next until the lane reports empty, which releases it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/clicker/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Queue provides bounded enqueue and lane-based dequeue.
type Queue interface {
	// Enqueue appends a job to its lane. It fails with ErrQueueFull when the
	// capacity is reached and ErrClosed after Close.
	Enqueue(ctx context.Context, j *Job) error

	// Ready yields keys of lanes with pending work. It is closed by Close.
	Ready() <-chan string

	// Next pops the head of the lane. When the lane is empty it is released
	// and false is returned.
	Next(key string) (*Job, bool)

	// Len returns the number of pending jobs.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

type lane struct {
	jobs []*Job
}

// InMemoryQueue implements Queue with a map of slices.
type InMemoryQueue struct {
	mu       sync.Mutex
	lanes    map[string]*lane
	ready    chan string
	size     int
	capacity int
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		lanes:    make(map[string]*lane),
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	// Scheduled lanes never outnumber pending jobs, so sends under the
	// lock never block.
	q.ready = make(chan string, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueLanes(0)

	return q
}

// Enqueue adds a job to the tail of its lane.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j *Job) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}
	if q.size >= q.capacity {
		metrics.RecordQueueRejected("queue_full")
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrQueueFull
	}

	l, ok := q.lanes[j.Key]
	if !ok {
		l = &lane{}
		q.lanes[j.Key] = l
		q.ready <- j.Key
	}
	l.jobs = append(l.jobs, j)
	q.size++

	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(q.size)
	metrics.UpdateQueueLanes(len(q.lanes))
	return nil
}

// Ready returns the channel of lanes with work.
func (q *InMemoryQueue) Ready() <-chan string { return q.ready }

// Next pops the head job of key's lane or releases the lane.
func (q *InMemoryQueue) Next(key string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[key]
	if !ok {
		return nil, false
	}
	if len(l.jobs) == 0 {
		delete(q.lanes, key)
		metrics.UpdateQueueLanes(len(q.lanes))
		return nil, false
	}

	j := l.jobs[0]
	l.jobs[0] = nil
	l.jobs = l.jobs[1:]
	q.size--
	metrics.UpdateQueueSize(q.size)
	return j, true
}

// Drain removes and returns every pending job.
func (q *InMemoryQueue) Drain() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Job
	for key, l := range q.lanes {
		out = append(out, l.jobs...)
		delete(q.lanes, key)
	}
	q.size = 0
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueLanes(0)
	return out
}

// Len returns the current number of pending jobs.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Lanes returns the number of lanes holding or processing work.
func (q *InMemoryQueue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close stops accepting jobs and closes the Ready channel. Pending jobs stay
// queued until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ready)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
