package loadtest

import (
	"context"
	"fmt"

	"github.com/okian/clicker/pkg/logger"
)

// verifyRound checks the round totals against what the taps returned.
func verifyRound(ctx context.Context, round Round, out *outcome, players []*player, stats *Stats) error {
	logger.Get().Info(ctx, "verifying round",
		logger.String("roundId", round.ID),
		logger.Int64("taps", round.Taps),
		logger.Int64("totalScore", round.TotalScore),
		logger.Int64("bestScore", round.BestScore),
		logger.String("winner", round.Winner))

	var errs []string

	if round.Taps != int64(stats.TapsAccepted) {
		errs = append(errs, fmt.Sprintf("round taps %d, accepted taps %d", round.Taps, stats.TapsAccepted))
	}
	if round.TotalScore != out.deltas {
		errs = append(errs, fmt.Sprintf("round total score %d, sum of added scores %d", round.TotalScore, out.deltas))
	}

	var best int64
	for _, score := range out.scores {
		best = max(best, score)
	}
	if round.BestScore != best {
		errs = append(errs, fmt.Sprintf("round best score %d, best player score %d", round.BestScore, best))
	}
	if best > 0 && out.scores[round.Winner] != best {
		errs = append(errs, fmt.Sprintf("winner %q scored %d, best is %d", round.Winner, out.scores[round.Winner], best))
	}

	for _, p := range players {
		if p.session.Username == zeroScoreUsername && out.scores[p.session.ID] != 0 {
			errs = append(errs, fmt.Sprintf("%s scored %d", zeroScoreUsername, out.scores[p.session.ID]))
		}
	}

	if len(errs) > 0 {
		for _, e := range errs {
			logger.Get().Error(ctx, "verification failed", logger.String("detail", e))
		}
		return fmt.Errorf("%d check(s) failed: %s", len(errs), errs[0])
	}

	logger.Get().Info(ctx, "round verified")
	return nil
}
