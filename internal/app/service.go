// Package service wires the stores, serializer, scoring engine and fanout
// into the operations exposed by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/okian/clicker/internal/adapters/auth"
	"github.com/okian/clicker/internal/adapters/fanout"
	eventqueue "github.com/okian/clicker/internal/adapters/mq/queue"
	workerpool "github.com/okian/clicker/internal/adapters/mq/worker"
	"github.com/okian/clicker/internal/adapters/repository"
	"github.com/okian/clicker/internal/config"
	"github.com/okian/clicker/internal/domain/dedupe"
	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/scoring"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/logger"
	"github.com/okian/clicker/pkg/metrics"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

type sweeper interface {
	Sweep(ctx context.Context) int
}

// Service implements the API dependencies for the clicker game.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	hub     *fanout.Hub
	nc      *nats.Conn
	bridge  *fanout.Bridge
	engine  *scoring.Engine
	users   *auth.Directory

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	jobTimeout       time.Duration
	cooldown         time.Duration
	roundDuration    time.Duration
	subscriberBuffer int
	jwtSecret        string
	tokenTTL         time.Duration
	bcryptCost       int
	storeDriver      string
	injectedStore    repository.Store
	postgresDSN      string
	natsURL          string
	natsPrefix       string
	clock            clockwork.Clock

	// State
	started bool
	cancel  context.CancelFunc
	stopCh  chan struct{}

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	defaults := config.New()
	s := &Service{
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        defaults.QueueSize,
		dedupeSize:       defaults.DedupeSize,
		jobTimeout:       defaults.JobTimeout,
		cooldown:         defaults.CooldownDuration,
		roundDuration:    defaults.RoundDuration,
		subscriberBuffer: defaults.SubscriberBuffer,
		jwtSecret:        defaults.JWTSecret,
		tokenTTL:         defaults.TokenTTL,
		bcryptCost:       defaults.BcryptCost,
		storeDriver:      defaults.StoreDriver,
		natsPrefix:       defaults.NATSSubjectPrefix,
		clock:            clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting clicker service...")

	// components outlive the caller's context until Stop
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	store, err := s.openStore(runCtx)
	if err != nil {
		cancel()
		return err
	}
	s.store = store

	s.users = auth.NewDirectory(
		auth.WithSecret(s.jwtSecret),
		auth.WithTokenTTL(s.tokenTTL),
		auth.WithBcryptCost(s.bcryptCost),
		auth.WithClock(s.clock),
		auth.WithLogger(s.logger.Named("auth")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.hub = fanout.NewHub(
		fanout.WithBuffer(s.subscriberBuffer),
		fanout.WithLogger(s.logger.Named("fanout")),
	)

	var publisher scoring.Publisher = s.hub
	if s.natsURL != "" {
		if publisher, err = s.startNATS(runCtx); err != nil {
			cancel()
			s.closeStore(ctx)
			return err
		}
	}

	s.engine = scoring.NewEngine(s.users, s.store, s.store,
		scoring.WithClock(s.clock),
		scoring.WithPublisher(publisher),
		scoring.WithLogger(s.logger.Named("scoring")),
	)

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.queue,
		workerpool.WithWorkerCount(s.workerCount),
		workerpool.WithJobTimeout(s.jobTimeout),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(runCtx)

	s.stopCh = make(chan struct{})
	if sw, ok := s.store.(sweeper); ok {
		go s.sweepLoop(runCtx, s.stopCh, sw)
	}

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "clicker service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("store", s.storeDriver),
		logger.Bool("nats", s.natsURL != ""),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	if s.injectedStore != nil {
		return s.injectedStore, nil
	}
	opts := []repository.Option{
		repository.WithClock(s.clock),
		repository.WithDurations(s.cooldown, s.roundDuration),
		repository.WithLogger(s.logger.Named("repository")),
	}
	switch s.storeDriver {
	case config.DriverPostgres:
		store, err := repository.NewPostgresStore(ctx, s.postgresDSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		s.logger.Info(ctx, "using postgres store")
		return store, nil
	default:
		s.logger.Info(ctx, "using memory store")
		return repository.NewMemoryStore(opts...), nil
	}
}

func (s *Service) closeStore(ctx context.Context) {
	if s.store == s.injectedStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}
}

func (s *Service) startNATS(ctx context.Context) (scoring.Publisher, error) {
	nc, err := fanout.Connect(s.natsURL, s.logger.Named("nats"))
	if err != nil {
		return nil, err
	}
	bridge := fanout.NewBridge(nc, s.natsPrefix, s.hub, fanout.WithLogger(s.logger.Named("fanout-bridge")))
	if err := bridge.Start(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	s.nc, s.bridge = nc, bridge
	return fanout.NewNATSPublisher(nc, s.natsPrefix, fanout.WithLogger(s.logger.Named("fanout-nats"))), nil
}

func (s *Service) sweepLoop(ctx context.Context, stop <-chan struct{}, sw sweeper) {
	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			if n := sw.Sweep(ctx); n > 0 {
				s.logger.Debug(ctx, "swept expired taps", logger.Int("count", n))
			}
		}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping clicker service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Warn(ctx, "nats bridge stop failed", logger.Error(err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	_ = s.hub.Close()
	s.closeStore(ctx)

	close(s.stopCh)
	s.cancel()
	s.started = false
	s.logger.Info(ctx, "clicker service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// CreateRound stores a new round; nil bounds take the configured defaults.
func (s *Service) CreateRound(ctx context.Context, start, end *time.Time) (model.RoundView, error) {
	if err := s.ready(); err != nil {
		return model.RoundView{}, err
	}
	r, err := s.store.Create(ctx, start, end)
	if err != nil {
		return model.RoundView{}, err
	}
	metrics.RecordRoundCreated()
	s.logger.Info(ctx, "round created",
		logger.String("round_id", r.ID),
		logger.String("start", r.Start.Format(time.RFC3339)),
		logger.String("end", r.End.Format(time.RFC3339)),
	)
	return s.engine.View(ctx, r), nil
}

// SubmitTap scores one tap through the round's serializer lane and waits
// for the outcome.
func (s *Service) SubmitTap(ctx context.Context, userID, roundID, echoID string) (model.TapResult, error) {
	if err := s.ready(); err != nil {
		return model.TapResult{}, err
	}
	if userID == "" || roundID == "" {
		return model.TapResult{}, fmt.Errorf("%w: user and round ids are required", model.ErrInvalidInput)
	}

	in := scoring.Input{UserID: userID, RoundID: roundID, EchoID: echoID}
	v, err := s.pool.Submit(ctx, roundID, func(ctx context.Context) (any, error) {
		return s.engine.Tap(ctx, in)
	})
	if err != nil {
		return model.TapResult{}, err
	}
	res, ok := v.(model.TapResult)
	if !ok {
		return model.TapResult{}, fmt.Errorf("unexpected tap result %T", v)
	}
	return res, nil
}

// GetRound returns the round with its current status and winner.
func (s *Service) GetRound(ctx context.Context, id string) (model.RoundView, error) {
	if err := s.ready(); err != nil {
		return model.RoundView{}, err
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return model.RoundView{}, err
	}
	return s.engine.View(ctx, r), nil
}

// ListRounds returns one page of rounds.
func (s *Service) ListRounds(ctx context.Context, q types.ListQuery) (types.Page[model.RoundView], error) {
	if err := s.ready(); err != nil {
		return types.Page[model.RoundView]{}, err
	}
	page, err := s.store.List(ctx, q)
	if err != nil {
		return types.Page[model.RoundView]{}, err
	}
	return types.MapPage(page, func(r model.Round) model.RoundView {
		return s.engine.View(ctx, r)
	}), nil
}

// CountRounds returns the number of rounds.
func (s *Service) CountRounds(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.store.Count(ctx)
}

// EnsureUserTap returns the user's record in an existing round, creating a
// zero record on first view.
func (s *Service) EnsureUserTap(ctx context.Context, userID, roundID string) (model.Tap, error) {
	if err := s.ready(); err != nil {
		return model.Tap{}, err
	}
	if _, err := s.store.Get(ctx, roundID); err != nil {
		return model.Tap{}, err
	}
	return s.store.Ensure(ctx, userID, roundID)
}

// SubscribeToRound streams updates of an existing round until ctx ends.
func (s *Service) SubscribeToRound(ctx context.Context, roundID string) (*fanout.Subscription, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.store.Get(ctx, roundID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, roundID)
}

// Login registers or authenticates a user.
func (s *Service) Login(ctx context.Context, username, password string) (model.Session, error) {
	if err := s.ready(); err != nil {
		return model.Session{}, err
	}
	return s.users.CreateOrLogin(ctx, username, password)
}

// CurrentUser resolves a session token.
func (s *Service) CurrentUser(ctx context.Context, token string) (model.User, error) {
	if err := s.ready(); err != nil {
		return model.User{}, err
	}
	return s.users.CurrentUser(ctx, token)
}

// SeenAndRecord atomically checks if an idempotency key was seen and records it if not.
// A service that is not running remembers nothing.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	if s.ready() != nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordTapRejected("duplicate")
	}
	return seen
}

// Unrecord forgets an idempotency key so the request can be retried.
func (s *Service) Unrecord(ctx context.Context, key string) {
	if s.ready() != nil {
		return
	}
	s.deduper.Unrecord(ctx, key)
}

// Size returns the current number of remembered idempotency keys.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"store":       s.storeDriver,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["activeLanes"] = s.queue.Lanes()
		stats["users"] = s.users.Count()
		stats["dedupeKeys"] = s.deduper.Size()
		if n, err := s.store.Count(ctx); err == nil {
			stats["rounds"] = n
			metrics.UpdateRoundsTracked(n)
		}
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
