package fanout

import "github.com/okian/clicker/pkg/logger"

const defaultBuffer = 256

type settings struct {
	buffer int
	logger logger.Logger
}

func newSettings(opts []Option, name string) settings {
	s := settings{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(name)
	}
	return s
}

// Option configures a Hub, NATSPublisher or Bridge.
type Option func(*settings)

// WithBuffer sets the per-subscriber buffer. A subscriber whose buffer is
// full when an update arrives is dropped.
func WithBuffer(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
