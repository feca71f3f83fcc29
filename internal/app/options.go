package service

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/clicker/internal/adapters/repository"
	"github.com/okian/clicker/internal/config"
	"github.com/okian/clicker/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every setting of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		for _, opt := range []Option{
			WithWorkerCount(cfg.WorkerCount),
			WithQueueSize(cfg.QueueSize),
			WithDedupeSize(cfg.DedupeSize),
			WithJobTimeout(cfg.JobTimeout),
			WithDurations(cfg.CooldownDuration, cfg.RoundDuration),
			WithSubscriberBuffer(cfg.SubscriberBuffer),
			WithAuth(cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost),
			WithStoreDriver(cfg.StoreDriver, cfg.PostgresDSN),
			WithNATS(cfg.NATSURL, cfg.NATSSubjectPrefix),
		} {
			opt(s)
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of taps waiting to be scored.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency-key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJobTimeout caps a single scoring job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithDurations sets the default cooldown and round length.
func WithDurations(cooldown, round time.Duration) Option {
	return func(s *Service) {
		if cooldown >= 0 {
			s.cooldown = cooldown
		}
		if round > 0 {
			s.roundDuration = round
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber backlog.
func WithSubscriberBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.subscriberBuffer = n
		}
	}
}

// WithAuth configures session tokens and password hashing.
func WithAuth(secret string, ttl time.Duration, bcryptCost int) Option {
	return func(s *Service) {
		if secret != "" {
			s.jwtSecret = secret
		}
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		if bcryptCost > 0 {
			s.bcryptCost = bcryptCost
		}
	}
}

// WithStoreDriver selects the memory or postgres store.
func WithStoreDriver(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		s.postgresDSN = dsn
	}
}

// WithStore injects a ready store. It takes precedence over the driver and
// is left open on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.injectedStore = store
	}
}

// WithNATS enables cross-instance broadcasts through NATS.
func WithNATS(url, subjectPrefix string) Option {
	return func(s *Service) {
		s.natsURL = url
		if subjectPrefix != "" {
			s.natsPrefix = subjectPrefix
		}
	}
}

// WithClock sets the clock for round status, tap expiry and tokens.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
