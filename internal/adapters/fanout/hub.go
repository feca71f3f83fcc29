// Package fanout broadcasts round updates to live subscribers.
//
// Delivery is best effort: there is no replay for late subscribers, and a
// subscriber that cannot keep up is dropped rather than slowing publishers.
package fanout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/pkg/logger"
	"github.com/okian/clicker/pkg/metrics"
)

// Subscription is one listener on one round.
type Subscription struct {
	ID      string
	RoundID string

	ch      chan model.RoundUpdate
	done    chan struct{}
	hub     *Hub
	dropped atomic.Bool
}

// Updates yields updates in publish order. It is closed on unsubscribe,
// on drop and when the hub closes.
func (s *Subscription) Updates() <-chan model.RoundUpdate { return s.ch }

// Dropped reports whether the hub cut the subscriber off for falling behind.
func (s *Subscription) Dropped() bool { return s.dropped.Load() }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Hub is an in-process fanout keyed by round id.
type Hub struct {
	mu     sync.Mutex
	rounds map[string]map[*Subscription]struct{}
	closed bool

	buffer int
	logger logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	s := newSettings(opts, "fanout")
	return &Hub{
		rounds: make(map[string]map[*Subscription]struct{}),
		buffer: s.buffer,
		logger: s.logger,
	}
}

// Subscribe registers a listener for roundID. The subscription ends when
// ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, roundID string) (*Subscription, error) {
	if roundID == "" {
		return nil, ErrInvalidRound
	}

	s := &Subscription{
		ID:      uuid.NewString(),
		RoundID: roundID,
		ch:      make(chan model.RoundUpdate, h.buffer),
		done:    make(chan struct{}),
		hub:     h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := h.rounds[roundID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rounds[roundID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	metrics.AddSubscribers(1)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Publish delivers u to every subscriber of roundID without blocking.
func (h *Hub) Publish(ctx context.Context, roundID string, u model.RoundUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	for s := range h.rounds[roundID] {
		select {
		case s.ch <- u:
		default:
			s.dropped.Store(true)
			h.removeLocked(s)
			metrics.RecordSubscriberDropped()
			h.logger.Warn(ctx, "dropping slow subscriber",
				logger.String("subscription_id", s.ID),
				logger.String("round_id", roundID),
			)
		}
	}
	metrics.RecordPublished()
	return nil
}

// Subscribers returns the number of listeners on roundID.
func (h *Hub) Subscribers(roundID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rounds[roundID])
}

// Close ends every subscription. Further publishes fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for _, subs := range h.rounds {
		for s := range subs {
			h.removeLocked(s)
		}
	}
	return nil
}

func (h *Hub) removeLocked(s *Subscription) {
	subs, ok := h.rounds[s.RoundID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.rounds, s.RoundID)
	}
	close(s.ch)
	close(s.done)
	metrics.AddSubscribers(-1)
}
