package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/clicker/pkg/logger"
)

// player is a logged-in participant and the taps it will send.
type player struct {
	session Session
	taps    int
}

// tapJob is one tap queued for a worker.
type tapJob struct {
	player *player
}

// outcome collects the results the verifier needs.
type outcome struct {
	mu     sync.Mutex
	scores map[string]int64 // user id -> last score seen
	deltas int64
}

func (o *outcome) record(res TapResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if res.Score > o.scores[res.UserID] {
		o.scores[res.UserID] = res.Score
	}
	o.deltas += res.AddScore
}

// Run executes the complete tap load test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}
	client := newHTTPClient(config.BaseURL, config.Timeout)

	logger.Get().Info(ctx, "starting clicker tap load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("tapsPerUser", config.TapsPerUser),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.String("roundDuration", config.RoundDuration.String()),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Log everyone in
	admin, players, err := loginPlayers(ctx, config, client)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// Step 3: Open a round that is already running
	now := time.Now().Add(-time.Second)
	round, err := client.createRound(ctx, admin.Token, now, now.Add(config.RoundDuration))
	if err != nil {
		return fmt.Errorf("round creation failed: %w", err)
	}
	logger.Get().Info(ctx, "round created",
		logger.String("roundId", round.ID),
		logger.String("status", round.Status))

	// Step 4: Tap concurrently
	out, err := submitTaps(ctx, config, client, round.ID, players, stats)
	if err != nil {
		return fmt.Errorf("tap submission failed: %w", err)
	}

	// Step 5: Verify the round totals
	final, err := client.round(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("round retrieval failed: %w", err)
	}
	if err := verifyRound(ctx, final, out, players, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	if err := client.health(ctx); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// loginPlayers logs in the admin and config.Users scoring players plus one
// player whose taps never count.
func loginPlayers(ctx context.Context, config *Config, client *HTTPClient) (Session, []*player, error) {
	admin, err := client.login(ctx, adminUsername, config.AdminPassword)
	if err != nil {
		return Session{}, nil, fmt.Errorf("admin: %w", err)
	}
	if admin.Role != "admin" {
		return Session{}, nil, fmt.Errorf("user %q has role %q, want admin", adminUsername, admin.Role)
	}

	players := make([]*player, 0, config.Users+1)
	// distinct names per run so repeated runs start from zero
	prefix := time.Now().UnixNano() % 1_000_000
	for i := range config.Users {
		name := fmt.Sprintf("load-%d-%d", prefix, i)
		s, err := client.login(ctx, name, playerPassword)
		if err != nil {
			return Session{}, nil, fmt.Errorf("player %s: %w", name, err)
		}
		players = append(players, &player{session: s, taps: config.TapsPerUser})
	}

	s, err := client.login(ctx, zeroScoreUsername, playerPassword)
	if err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return Session{}, nil, fmt.Errorf("player %s: %w", zeroScoreUsername, err)
		}
		// registered earlier with another password; skip it
		logger.Get().Warn(ctx, "zero-score player unavailable", logger.Error(err))
	} else {
		players = append(players, &player{session: s, taps: config.TapsPerUser})
	}

	logger.Get().Info(ctx, "players logged in", logger.Int("players", len(players)))
	return admin, players, nil
}

// submitTaps fires every player's taps through config.Workers workers.
func submitTaps(ctx context.Context, config *Config, client *HTTPClient, roundID string, players []*player, stats *Stats) (*outcome, error) {
	total := 0
	for _, p := range players {
		total += p.taps
	}
	logger.Get().Info(ctx, "submitting taps",
		logger.Int("taps", total),
		logger.Int("workers", config.Workers))

	out := &outcome{scores: make(map[string]int64, len(players))}
	jobs := make(chan tapJob, config.Workers)

	var submitted, accepted, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				submitted.Add(1)
				res, err := client.tap(ctx, job.player.session.Token, roundID)
				if err != nil {
					var apiErr *apiError
					if errors.As(err, &apiErr) {
						rejected.Add(1)
					} else {
						failed.Add(1)
					}
					if config.Verbose {
						logger.Get().Warn(ctx, "tap failed",
							logger.String("username", job.player.session.Username),
							logger.Error(err))
					}
					continue
				}
				accepted.Add(1)
				out.record(res)
			}
		}()
	}

	// interleave players so every round-robin pass touches everyone
	go func() {
		defer close(jobs)
		for i := 0; ; i++ {
			sent := false
			for _, p := range players {
				if i >= p.taps {
					continue
				}
				sent = true
				select {
				case jobs <- tapJob{player: p}:
				case <-ctx.Done():
					return
				}
			}
			if !sent {
				return
			}
		}
	}()

	wg.Wait()

	stats.TapsSubmitted = int(submitted.Load())
	stats.TapsAccepted = int(accepted.Load())
	stats.TapsRejected = int(rejected.Load())
	stats.TapsFailed = int(failed.Load())
	stats.ScoreReturned = out.deltas

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Get().Info(ctx, "taps submitted",
		logger.Int("accepted", stats.TapsAccepted),
		logger.Int("rejected", stats.TapsRejected),
		logger.Int("failed", stats.TapsFailed))
	return out, nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, tapsPerSecond float64

	if stats.TapsSubmitted > 0 {
		successRate = float64(stats.TapsAccepted) / float64(stats.TapsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		tapsPerSecond = float64(stats.TapsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("tapsSubmitted", stats.TapsSubmitted),
		logger.Int("tapsAccepted", stats.TapsAccepted),
		logger.Int("tapsRejected", stats.TapsRejected),
		logger.Int("tapsFailed", stats.TapsFailed),
		logger.Int64("scoreReturned", stats.ScoreReturned),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("tapsPerSecond", tapsPerSecond))
}
