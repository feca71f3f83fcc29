// Package repository stores rounds and per-user tap records.
package repository

import (
	"context"
	"time"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
)

// RoundStore provides keyed access to rounds. Stores never compute status.
type RoundStore interface {
	// Create persists a new round. A nil start defaults to now + cooldown,
	// a nil end to start + round duration.
	Create(ctx context.Context, start, end *time.Time) (model.Round, error)

	// Get returns model.ErrRoundNotFound for unknown ids.
	Get(ctx context.Context, id string) (model.Round, error)

	// Update merges patch into the stored round.
	Update(ctx context.Context, id string, patch model.RoundPatch) (model.Round, error)

	List(ctx context.Context, q types.ListQuery) (types.Page[model.Round], error)
	Count(ctx context.Context) (int, error)

	// Clear drops every round and tap record.
	Clear(ctx context.Context) error
}

// TapStore provides keyed access to per-(user, round) tap records.
// Expired records are reported as absent.
type TapStore interface {
	// FindByUserAndRound returns found=false when no live record exists.
	FindByUserAndRound(ctx context.Context, userID, roundID string) (tap model.Tap, found bool, err error)

	// UpsertIncrement adds one tap and delta score, creating the record when absent.
	// It is atomic for a single key.
	UpsertIncrement(ctx context.Context, userID, roundID string, delta int64) (model.Tap, error)

	// ApplyTap increments the tap record and applies the patch derived from
	// it to the round in one step. Nothing is written when ctx is done or
	// the patch fails.
	ApplyTap(ctx context.Context, c model.TapCommit) (model.Tap, model.Round, error)

	// Ensure returns the record, creating a zeroed one when absent.
	Ensure(ctx context.Context, userID, roundID string) (model.Tap, error)
}

// Store is the full persistence contract of the game.
type Store interface {
	RoundStore
	TapStore
	Close() error
}
