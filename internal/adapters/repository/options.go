package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/okian/clicker/pkg/logger"
)

const (
	defaultCooldown      = 30 * time.Second
	defaultRoundDuration = 60 * time.Second
)

// settings are shared by every Store implementation.
type settings struct {
	clock         clockwork.Clock
	cooldown      time.Duration
	roundDuration time.Duration
	tapTTL        time.Duration
	newID         func() string
	logger        logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:         clockwork.NewRealClock(),
		cooldown:      defaultCooldown,
		roundDuration: defaultRoundDuration,
		newID:         func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.tapTTL == 0 {
		s.tapTTL = s.cooldown + s.roundDuration
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// Option configures a Store.
type Option func(*settings)

// WithClock sets the time source for defaults and tap expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDurations sets the cooldown and active window used for round defaults.
func WithDurations(cooldown, round time.Duration) Option {
	return func(s *settings) {
		if cooldown >= 0 {
			s.cooldown = cooldown
		}
		if round > 0 {
			s.roundDuration = round
		}
	}
}

// WithTapTTL overrides the tap record lifetime. Negative disables expiry.
func WithTapTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.tapTTL = ttl
	}
}

// WithIDGenerator replaces the round id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
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
