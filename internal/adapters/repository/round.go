package repository

import (
	"fmt"
	"time"

	"github.com/okian/clicker/internal/domain/model"
)

// newRound applies creation defaults and validates the window.
func (s settings) newRound(start, end *time.Time) (model.Round, error) {
	now := s.clock.Now().UTC()

	st := now.Add(s.cooldown)
	if start != nil {
		st = start.UTC()
	}
	en := st.Add(s.roundDuration)
	if end != nil {
		en = end.UTC()
	}
	if !en.After(st) {
		return model.Round{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, ErrInvalidWindow)
	}

	cooldown := int64(st.Sub(now).Round(time.Second) / time.Second)
	if cooldown < 0 {
		cooldown = 0
	}

	return model.Round{
		ID:        s.newID(),
		Start:     st,
		End:       en,
		Cooldown:  cooldown,
		CreatedAt: now,
	}, nil
}

// expiry returns the expiration of a tap written at now.
func (s settings) expiry(now time.Time) time.Time {
	if s.tapTTL < 0 {
		return time.Time{}
	}
	return now.Add(s.tapTTL)
}
