// Package scoring computes tap scores and applies taps to rounds.
package scoring

import "github.com/okian/clicker/internal/domain/model"

// Score rules.
const (
	// BonusEvery is the round-wide tap interval that earns BonusScore.
	BonusEvery = 11
	BonusScore = 10
	BaseScore  = 1
)

// Delta returns the score for the tapNumber-th tap of a round (1-indexed,
// counted across all users) made by a user with role.
func Delta(role model.Role, tapNumber int64) int64 {
	if role.ScoresZero() {
		return 0
	}
	if tapNumber > 0 && tapNumber%BonusEvery == 0 {
		return BonusScore
	}
	return BaseScore
}
