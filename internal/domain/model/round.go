// Package model contains domain models passed between layers.
package model

import "time"

// Status is the lifecycle state of a round, derived from wall-clock time.
type Status string

// Round statuses.
const (
	StatusCooldown Status = "cooldown"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Round is a time-boxed scoring window.
type Round struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Cooldown is the number of seconds between creation and start.
	Cooldown   int64     `json:"cooldown"`
	TotalScore int64     `json:"totalScore"`
	Taps       int64     `json:"taps"`
	BestScore  int64     `json:"bestScore"`
	Winner     string    `json:"winner,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasWinner reports whether a user currently holds the best score.
func (r Round) HasWinner() bool { return r.Winner != "" }

// RoundPatch carries a partial update. Nil fields are left untouched.
// An empty Winner clears the winner.
type RoundPatch struct {
	Start      *time.Time
	End        *time.Time
	TotalScore *int64
	Taps       *int64
	BestScore  *int64
	Winner     *string
}

// IsEmpty reports whether the patch changes nothing.
func (p RoundPatch) IsEmpty() bool {
	return p.Start == nil && p.End == nil && p.TotalScore == nil &&
		p.Taps == nil && p.BestScore == nil && p.Winner == nil
}

// Apply merges the patch into r. The id is never changed.
func (r Round) Apply(p RoundPatch) Round {
	if p.Start != nil {
		r.Start = *p.Start
	}
	if p.End != nil {
		r.End = *p.End
	}
	if p.TotalScore != nil {
		r.TotalScore = *p.TotalScore
	}
	if p.Taps != nil {
		r.Taps = *p.Taps
	}
	if p.BestScore != nil {
		r.BestScore = *p.BestScore
	}
	if p.Winner != nil {
		r.Winner = *p.Winner
	}
	return r
}

// RoundView is what callers see: the stored round, its current status and
// the public record of the winner.
type RoundView struct {
	Round
	Status     Status `json:"status"`
	WinnerUser *User  `json:"winnerUser"`
}

// RoundUpdate is broadcast to round subscribers after every tap attempt.
// UserID names the tapping user, for rejected taps as well as accepted ones.
type RoundUpdate struct {
	Tap    *TapResult `json:"tap,omitempty"`
	Round  RoundView  `json:"round"`
	UserID string     `json:"userId,omitempty"`
	EchoID string     `json:"echoId,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ForUser trims the update for a given listener: only the tapping user
// sees the tap record and echo id.
func (u RoundUpdate) ForUser(userID string) RoundUpdate {
	if userID != "" && u.tapper() == userID {
		return u
	}
	return RoundUpdate{Round: u.Round, Error: u.Error}
}

func (u RoundUpdate) tapper() string {
	if u.UserID != "" {
		return u.UserID
	}
	if u.Tap != nil {
		return u.Tap.UserID
	}
	return ""
}
