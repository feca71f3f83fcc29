package model

import "time"

// TapKey identifies a tap record.
type TapKey struct {
	UserID  string
	RoundID string
}

// Tap is one user's cumulative record within one round.
type Tap struct {
	UserID    string    `json:"userId"`
	RoundID   string    `json:"roundId"`
	Taps      int64     `json:"taps"`
	Score     int64     `json:"score"`
	ExpiresAt time.Time `json:"-"`
}

// Key returns the composite identity of the record.
func (t Tap) Key() TapKey { return TapKey{UserID: t.UserID, RoundID: t.RoundID} }

// Expired reports whether the record is past its time-to-live at now.
// A zero ExpiresAt never expires.
func (t Tap) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TapResult is returned to the tapping caller.
type TapResult struct {
	Tap
	ScoreDelta int64 `json:"addScore"`
}

// TapCommit is the write half of one accepted tap. Patch derives the round
// change from the incremented record; stores apply both or neither.
type TapCommit struct {
	UserID  string
	RoundID string
	Delta   int64
	Patch   func(tap Tap) (RoundPatch, error)
}
