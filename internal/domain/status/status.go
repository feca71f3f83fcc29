// Package status derives a round's lifecycle state from wall-clock time.
package status

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/clicker/internal/domain/model"
)

// Resolve maps now against the [start, end] window. Both bounds are inclusive.
func Resolve(now, start, end time.Time) model.Status {
	switch {
	case now.Before(start):
		return model.StatusCooldown
	case now.After(end):
		return model.StatusFinished
	default:
		return model.StatusActive
	}
}

// Resolver evaluates statuses against an injectable clock.
type Resolver struct {
	clock clockwork.Clock
}

// NewResolver returns a Resolver; a nil clock means the real one.
func NewResolver(clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{clock: clock}
}

// Now returns the resolver's current time.
func (r *Resolver) Now() time.Time { return r.clock.Now() }

// Of returns the round's status right now.
func (r *Resolver) Of(round model.Round) model.Status {
	return Resolve(r.clock.Now(), round.Start, round.End)
}

// Active reports whether the round accepts taps right now.
func (r *Resolver) Active(round model.Round) bool {
	return r.Of(round) == model.StatusActive
}
