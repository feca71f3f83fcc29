package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunFunc is the unit of work carried by a Job.
type RunFunc func(ctx context.Context) (any, error)

// Result is the outcome of a Job.
type Result struct {
	Value any
	Err   error
}

// Job is one serialized unit of work. Jobs sharing a Key run one at a time
// in enqueue order.
type Job struct {
	ID         string
	Key        string
	EnqueuedAt time.Time

	run    RunFunc
	result chan Result
	once   sync.Once
}

// NewJob wraps run for the lane named key.
func NewJob(key string, run RunFunc) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Key:        key,
		EnqueuedAt: time.Now(),
		run:        run,
		result:     make(chan Result, 1),
	}
}

// Run executes the job body.
func (j *Job) Run(ctx context.Context) (any, error) {
	return j.run(ctx)
}

// Done delivers the result exactly once.
func (j *Job) Done() <-chan Result { return j.result }

// Complete records the outcome. Only the first call has effect.
func (j *Job) Complete(v any, err error) {
	j.once.Do(func() {
		j.result <- Result{Value: v, Err: err}
	})
}
