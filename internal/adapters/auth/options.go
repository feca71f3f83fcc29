package auth

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/clicker/pkg/logger"
)

// Option applies a configuration option to the Directory.
type Option func(*Directory)

// WithSecret sets the HMAC key for session tokens.
func WithSecret(secret string) Option {
	return func(d *Directory) {
		if secret != "" {
			d.secret = []byte(secret)
		}
	}
}

// WithTokenTTL sets how long issued tokens stay valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		if cost > 0 {
			d.cost = cost
		}
	}
}

// WithClock sets the clock used for token issue and expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Directory) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithIDGenerator replaces the user id source.
func WithIDGenerator(fn func() string) Option {
	return func(d *Directory) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}
