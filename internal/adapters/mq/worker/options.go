package worker

import (
	"time"

	"github.com/okian/clicker/pkg/logger"
)

// Option applies a configuration option to a worker or pool.
type Option func(*config)

type config struct {
	name       string
	workers    int
	jobTimeout time.Duration
	logger     logger.Logger
}

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithWorkerCount sets the number of pool workers.
func WithWorkerCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithJobTimeout bounds the run time of one job.
func WithJobTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.jobTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
