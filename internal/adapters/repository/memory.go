package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/metrics"
)

// MemoryStore keeps rounds and taps in process memory.
type MemoryStore struct {
	settings

	mu     sync.RWMutex
	rounds map[string]model.Round
	taps   map[model.TapKey]model.Tap
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		settings: newSettings(opts),
		rounds:   make(map[string]model.Round),
		taps:     make(map[model.TapKey]model.Tap),
	}
}

// Create stores a new round with defaults applied.
func (s *MemoryStore) Create(ctx context.Context, start, end *time.Time) (model.Round, error) {
	r, err := s.newRound(start, end)
	if err != nil {
		return model.Round{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Round{}, ErrClosed
	}
	s.rounds[r.ID] = r
	metrics.UpdateRoundsTracked(len(s.rounds))
	return r, nil
}

// Get returns a round by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	if !ok {
		return model.Round{}, fmt.Errorf("round %s: %w", id, model.ErrRoundNotFound)
	}
	return r, nil
}

// Update merges patch into the stored round.
func (s *MemoryStore) Update(ctx context.Context, id string, patch model.RoundPatch) (model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Round{}, err
	}
	r, ok := s.rounds[id]
	if !ok {
		return model.Round{}, fmt.Errorf("round %s: %w", id, model.ErrRoundNotFound)
	}
	r = r.Apply(patch)
	if !r.End.After(r.Start) {
		return model.Round{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, ErrInvalidWindow)
	}
	s.rounds[id] = r
	return r, nil
}

// List returns one sorted page of rounds.
func (s *MemoryStore) List(ctx context.Context, q types.ListQuery) (types.Page[model.Round], error) {
	s.mu.RLock()
	all := make([]model.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return lessRound(all[i], all[j], q.Sort) })

	total := len(all)
	from := q.Offset()
	if from > total {
		from = total
	}
	to := total
	if q.PageSize > 0 && from+q.PageSize < total {
		to = from + q.PageSize
	}
	return types.NewPage(all[from:to], total, q), nil
}

// Count returns the number of rounds.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rounds), nil
}

// Clear drops all rounds and taps.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = make(map[string]model.Round)
	s.taps = make(map[model.TapKey]model.Tap)
	metrics.UpdateRoundsTracked(0)
	return nil
}

// FindByUserAndRound returns the live tap record for the pair, if any.
func (s *MemoryStore) FindByUserAndRound(ctx context.Context, userID, roundID string) (model.Tap, bool, error) {
	key := model.TapKey{UserID: userID, RoundID: roundID}
	now := s.clock.Now()

	s.mu.RLock()
	t, ok := s.taps[key]
	s.mu.RUnlock()

	if !ok || t.Expired(now) {
		return model.Tap{}, false, nil
	}
	return t, true, nil
}

// UpsertIncrement adds one tap worth delta to the pair's record.
func (s *MemoryStore) UpsertIncrement(ctx context.Context, userID, roundID string, delta int64) (model.Tap, error) {
	key := model.TapKey{UserID: userID, RoundID: roundID}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Tap{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return model.Tap{}, err
	}

	t := s.incremented(key, now, delta)
	s.taps[key] = t
	return t, nil
}

// ApplyTap increments the pair's record and patches its round under one
// lock. The maps are only touched once every check has passed.
func (s *MemoryStore) ApplyTap(ctx context.Context, c model.TapCommit) (model.Tap, model.Round, error) {
	key := model.TapKey{UserID: c.UserID, RoundID: c.RoundID}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Tap{}, model.Round{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return model.Tap{}, model.Round{}, err
	}

	r, ok := s.rounds[c.RoundID]
	if !ok {
		return model.Tap{}, model.Round{}, fmt.Errorf("round %s: %w", c.RoundID, model.ErrRoundNotFound)
	}
	t := s.incremented(key, now, c.Delta)
	patch, err := c.Patch(t)
	if err != nil {
		return model.Tap{}, model.Round{}, err
	}
	r = r.Apply(patch)
	if !r.End.After(r.Start) {
		return model.Tap{}, model.Round{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, ErrInvalidWindow)
	}

	s.taps[key] = t
	s.rounds[c.RoundID] = r
	return t, r, nil
}

// incremented returns the pair's record with one more tap. Callers hold mu.
func (s *MemoryStore) incremented(key model.TapKey, now time.Time, delta int64) model.Tap {
	t, ok := s.taps[key]
	if !ok || t.Expired(now) {
		t = model.Tap{UserID: key.UserID, RoundID: key.RoundID}
	}
	t.Taps++
	t.Score += delta
	t.ExpiresAt = s.expiry(now)
	return t
}

// Ensure returns the pair's record, creating a zeroed one when absent.
func (s *MemoryStore) Ensure(ctx context.Context, userID, roundID string) (model.Tap, error) {
	key := model.TapKey{UserID: userID, RoundID: roundID}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Tap{}, ErrClosed
	}

	t, ok := s.taps[key]
	if ok && !t.Expired(now) {
		return t, nil
	}
	t = model.Tap{UserID: userID, RoundID: roundID, ExpiresAt: s.expiry(now)}
	s.taps[key] = t
	return t, nil
}

// Sweep removes expired tap records and returns how many were dropped.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.taps {
		if t.Expired(now) {
			delete(s.taps, k)
			n++
		}
	}
	return n
}

// Close marks the store closed; further writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
