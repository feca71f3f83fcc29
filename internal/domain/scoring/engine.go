package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc/pool"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/status"
	"github.com/okian/clicker/pkg/logger"
	"github.com/okian/clicker/pkg/metrics"
)

// Users resolves public user records.
type Users interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Rounds reads rounds.
type Rounds interface {
	Get(ctx context.Context, id string) (model.Round, error)
}

// Taps commits a tap increment together with its round patch. Nothing is
// written when ctx is done or the patch fails.
type Taps interface {
	ApplyTap(ctx context.Context, c model.TapCommit) (model.Tap, model.Round, error)
}

// Publisher fans a round update out to listeners.
type Publisher interface {
	Publish(ctx context.Context, roundID string, u model.RoundUpdate) error
}

// Input is one tap attempt.
type Input struct {
	UserID  string
	RoundID string
	EchoID  string
}

// Engine applies taps to rounds. Tap must run with at most one call in
// flight per round; the engine itself takes no locks.
type Engine struct {
	users     Users
	rounds    Rounds
	taps      Taps
	publisher Publisher
	clock     clockwork.Clock
	status    *status.Resolver
	logger    logger.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, model.RoundUpdate) error { return nil }

// NewEngine creates a scoring engine over its collaborators.
func NewEngine(users Users, rounds Rounds, taps Taps, opts ...Option) *Engine {
	e := &Engine{
		users:     users,
		rounds:    rounds,
		taps:      taps,
		publisher: nopPublisher{},
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("scoring")
	}
	e.status = status.NewResolver(e.clock)
	return e
}

// Tap applies one tap and broadcasts the outcome.
func (e *Engine) Tap(ctx context.Context, in Input) (model.TapResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
	}()

	if in.UserID == "" || in.RoundID == "" {
		return model.TapResult{}, fmt.Errorf("%w: user and round ids are required", model.ErrInvalidInput)
	}

	user, round, err := e.load(ctx, in)
	if err != nil {
		metrics.RecordTapRejected(model.Code(err))
		return model.TapResult{}, err
	}
	// a job abandoned by its worker must not write or broadcast
	if err := ctx.Err(); err != nil {
		return model.TapResult{}, err
	}

	if !e.status.Active(round) {
		metrics.RecordTapRejected(model.ErrRoundNotActive.Error())
		e.publish(ctx, round.ID, model.RoundUpdate{
			Round:  e.View(ctx, round),
			UserID: user.ID,
			EchoID: in.EchoID,
			Error:  model.ErrRoundNotActive.Error(),
		})
		return model.TapResult{}, fmt.Errorf("round %s: %w", round.ID, model.ErrRoundNotActive)
	}

	tapNumber := round.Taps + 1
	delta := Delta(user.Role, tapNumber)

	tap, updated, err := e.taps.ApplyTap(ctx, model.TapCommit{
		UserID:  user.ID,
		RoundID: round.ID,
		Delta:   delta,
		Patch: func(tap model.Tap) (model.RoundPatch, error) {
			return e.roundPatch(ctx, user.ID, round, tap, tapNumber, delta)
		},
	})
	if err != nil {
		return model.TapResult{}, fmt.Errorf("apply tap: %w", err)
	}

	result := model.TapResult{Tap: tap, ScoreDelta: delta}
	e.publish(ctx, round.ID, model.RoundUpdate{
		Tap:    &result,
		Round:  e.View(ctx, updated),
		UserID: user.ID,
		EchoID: in.EchoID,
	})

	metrics.RecordTapAccepted(delta)
	e.logger.Debug(ctx, "tap applied",
		logger.String("user_id", user.ID),
		logger.String("round_id", round.ID),
		logger.Int64("tap_number", tapNumber),
		logger.Int64("delta", delta),
	)
	return result, nil
}

// roundPatch derives the round totals and winner from the incremented tap.
func (e *Engine) roundPatch(ctx context.Context, userID string, round model.Round, tap model.Tap, tapNumber, delta int64) (model.RoundPatch, error) {
	if tap.UserID == "" {
		metrics.RecordErrorByComponent("scoring", "tap_not_found")
		e.logger.Error(ctx, "tap store returned no record after upsert",
			logger.String("user_id", userID),
			logger.String("round_id", round.ID),
		)
		return model.RoundPatch{}, fmt.Errorf("tap %s/%s: %w", userID, round.ID, model.ErrTapNotFound)
	}

	total := round.TotalScore + delta
	patch := model.RoundPatch{Taps: &tapNumber, TotalScore: &total}
	if tap.Score > round.BestScore {
		best, winner := tap.Score, userID
		patch.BestScore = &best
		patch.Winner = &winner
	}
	return patch, nil
}

// load fetches the user and the round concurrently.
func (e *Engine) load(ctx context.Context, in Input) (model.User, model.Round, error) {
	var (
		user  model.User
		round model.Round
	)
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		user, err = e.users.GetUser(ctx, in.UserID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		round, err = e.rounds.Get(ctx, in.RoundID)
		return err
	})
	if err := p.Wait(); err != nil {
		return model.User{}, model.Round{}, err
	}
	return user, round, nil
}

// View resolves the round's status and winner for display. A winner that
// cannot be resolved is left out.
func (e *Engine) View(ctx context.Context, round model.Round) model.RoundView {
	v := model.RoundView{Round: round, Status: e.status.Of(round)}
	if !round.HasWinner() {
		return v
	}
	u, err := e.users.GetUser(ctx, round.Winner)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			e.logger.Warn(ctx, "resolve winner failed",
				logger.String("round_id", round.ID),
				logger.Error(err),
			)
		}
		return v
	}
	v.WinnerUser = &u
	return v
}

func (e *Engine) publish(ctx context.Context, roundID string, u model.RoundUpdate) {
	if err := e.publisher.Publish(ctx, roundID, u); err != nil {
		e.logger.Warn(ctx, "publish round update failed",
			logger.String("round_id", roundID),
			logger.Error(err),
		)
	}
}
