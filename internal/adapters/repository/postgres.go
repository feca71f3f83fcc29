package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/clicker/internal/domain/model"
	"github.com/okian/clicker/internal/domain/types"
	"github.com/okian/clicker/pkg/logger"
)

const pgCheckViolation = "23514"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rounds (
		id          TEXT PRIMARY KEY,
		start_at    TIMESTAMPTZ NOT NULL,
		end_at      TIMESTAMPTZ NOT NULL,
		cooldown    BIGINT NOT NULL DEFAULT 0,
		total_score BIGINT NOT NULL DEFAULT 0,
		taps        BIGINT NOT NULL DEFAULT 0,
		best_score  BIGINT NOT NULL DEFAULT 0,
		winner      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT rounds_window CHECK (end_at > start_at)
	)`,
	`CREATE TABLE IF NOT EXISTS taps (
		user_id    TEXT NOT NULL,
		round_id   TEXT NOT NULL,
		taps       BIGINT NOT NULL DEFAULT 0,
		score      BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ,
		PRIMARY KEY (user_id, round_id)
	)`,
	`CREATE INDEX IF NOT EXISTS taps_expires_at_idx ON taps (expires_at)`,
}

const roundColumns = `id, start_at, end_at, cooldown, total_score, taps, best_score, winner, created_at`

const tapColumns = `user_id, round_id, taps, score, expires_at`

// an expired row restarts from the inserted values.
const upsertIncrementSQL = `
INSERT INTO taps (user_id, round_id, taps, score, expires_at)
VALUES ($1, $2, 1, $3, $4)
ON CONFLICT (user_id, round_id) DO UPDATE SET
	taps = CASE WHEN taps.expires_at IS NOT NULL AND taps.expires_at <= $5 THEN 1 ELSE taps.taps + 1 END,
	score = CASE WHEN taps.expires_at IS NOT NULL AND taps.expires_at <= $5 THEN EXCLUDED.score ELSE taps.score + EXCLUDED.score END,
	expires_at = EXCLUDED.expires_at
RETURNING ` + tapColumns

const ensureSQL = `
INSERT INTO taps (user_id, round_id, taps, score, expires_at)
VALUES ($1, $2, 0, 0, $3)
ON CONFLICT (user_id, round_id) DO UPDATE SET
	taps = CASE WHEN taps.expires_at IS NOT NULL AND taps.expires_at <= $4 THEN 0 ELSE taps.taps END,
	score = CASE WHEN taps.expires_at IS NOT NULL AND taps.expires_at <= $4 THEN 0 ELSE taps.score END,
	expires_at = CASE WHEN taps.expires_at IS NOT NULL AND taps.expires_at <= $4 THEN EXCLUDED.expires_at ELSE taps.expires_at END
RETURNING ` + tapColumns

const updateRoundSQL = `
UPDATE rounds SET
	start_at    = COALESCE($2, start_at),
	end_at      = COALESCE($3, end_at),
	total_score = COALESCE($4, total_score),
	taps        = COALESCE($5, taps),
	best_score  = COALESCE($6, best_score),
	winner      = CASE WHEN $7::boolean THEN NULLIF($8::text, '') ELSE winner END
WHERE id = $1
RETURNING ` + roundColumns

// queryRower is satisfied by both the pool and a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	settings
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, verifies the connection and creates the
// schema when missing.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStoreFromPool(pool, opts...)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The store owns the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	return &PostgresStore{settings: newSettings(opts), pool: pool}
}

// Migrate creates tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Info(ctx, "postgres schema ready")
	return nil
}

// Create inserts a new round with defaults applied.
func (s *PostgresStore) Create(ctx context.Context, start, end *time.Time) (model.Round, error) {
	r, err := s.newRound(start, end)
	if err != nil {
		return model.Round{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO rounds (id, start_at, end_at, cooldown, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING `+roundColumns,
		r.ID, r.Start, r.End, r.Cooldown, r.CreatedAt)
	return scanRound(row)
}

// Get returns a round by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.Round, error) {
	r, err := scanRound(s.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Round{}, fmt.Errorf("round %s: %w", id, model.ErrRoundNotFound)
	}
	return r, err
}

// Update merges patch into the stored round in a single statement.
func (s *PostgresStore) Update(ctx context.Context, id string, patch model.RoundPatch) (model.Round, error) {
	return s.update(ctx, s.pool, id, patch)
}

func (s *PostgresStore) update(ctx context.Context, q queryRower, id string, patch model.RoundPatch) (model.Round, error) {
	winner := ""
	if patch.Winner != nil {
		winner = *patch.Winner
	}
	r, err := scanRound(q.QueryRow(ctx, updateRoundSQL,
		id, patch.Start, patch.End, patch.TotalScore, patch.Taps, patch.BestScore,
		patch.Winner != nil, winner))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Round{}, fmt.Errorf("round %s: %w", id, model.ErrRoundNotFound)
	case isCheckViolation(err):
		return model.Round{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, ErrInvalidWindow)
	}
	return r, err
}

// List returns one sorted page of rounds.
func (s *PostgresStore) List(ctx context.Context, q types.ListQuery) (types.Page[model.Round], error) {
	total, err := s.Count(ctx)
	if err != nil {
		return types.Page[model.Round]{}, err
	}

	limit := any(nil)
	if q.PageSize > 0 {
		limit = q.PageSize
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds ORDER BY `+orderClause(q.Sort)+` LIMIT $1 OFFSET $2`,
		limit, q.Offset())
	if err != nil {
		return types.Page[model.Round]{}, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return types.Page[model.Round]{}, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return types.Page[model.Round]{}, fmt.Errorf("list rounds: %w", err)
	}
	return types.NewPage(out, total, q), nil
}

// Count returns the number of rounds.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM rounds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return n, nil
}

// Clear drops all rounds and taps.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE taps, rounds`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// FindByUserAndRound returns the live tap record for the pair, if any.
func (s *PostgresStore) FindByUserAndRound(ctx context.Context, userID, roundID string) (model.Tap, bool, error) {
	t, err := scanTap(s.pool.QueryRow(ctx,
		`SELECT `+tapColumns+` FROM taps WHERE user_id = $1 AND round_id = $2 AND (expires_at IS NULL OR expires_at > $3)`,
		userID, roundID, s.clock.Now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tap{}, false, nil
	}
	if err != nil {
		return model.Tap{}, false, err
	}
	return t, true, nil
}

// UpsertIncrement adds one tap worth delta in a single atomic statement.
func (s *PostgresStore) UpsertIncrement(ctx context.Context, userID, roundID string, delta int64) (model.Tap, error) {
	return s.upsertIncrement(ctx, s.pool, userID, roundID, delta)
}

func (s *PostgresStore) upsertIncrement(ctx context.Context, q queryRower, userID, roundID string, delta int64) (model.Tap, error) {
	now := s.clock.Now()
	t, err := scanTap(q.QueryRow(ctx, upsertIncrementSQL,
		userID, roundID, delta, nullTime(s.expiry(now)), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tap{}, fmt.Errorf("tap %s/%s: %w", userID, roundID, model.ErrTapNotFound)
	}
	return t, err
}

// ApplyTap runs the tap upsert and the round update in one transaction.
// A failed patch, a failed update or a done ctx rolls both back.
func (s *PostgresStore) ApplyTap(ctx context.Context, c model.TapCommit) (model.Tap, model.Round, error) {
	var (
		tap   model.Tap
		round model.Round
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		tap, err = s.upsertIncrement(ctx, tx, c.UserID, c.RoundID, c.Delta)
		if err != nil {
			return err
		}
		patch, err := c.Patch(tap)
		if err != nil {
			return err
		}
		round, err = s.update(ctx, tx, c.RoundID, patch)
		return err
	})
	if err != nil {
		return model.Tap{}, model.Round{}, err
	}
	return tap, round, nil
}

// Ensure returns the pair's record, creating a zeroed one when absent.
func (s *PostgresStore) Ensure(ctx context.Context, userID, roundID string) (model.Tap, error) {
	now := s.clock.Now()
	t, err := scanTap(s.pool.QueryRow(ctx, ensureSQL,
		userID, roundID, nullTime(s.expiry(now)), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tap{}, fmt.Errorf("tap %s/%s: %w", userID, roundID, model.ErrTapNotFound)
	}
	return t, err
}

// Sweep deletes expired tap records.
func (s *PostgresStore) Sweep(ctx context.Context) int {
	tag, err := s.pool.Exec(ctx, `DELETE FROM taps WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.clock.Now())
	if err != nil {
		s.logger.Warn(ctx, "sweep expired taps failed", logger.Error(err))
		return 0
	}
	return int(tag.RowsAffected())
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRound(row pgx.Row) (model.Round, error) {
	var (
		r      model.Round
		winner *string
	)
	if err := row.Scan(&r.ID, &r.Start, &r.End, &r.Cooldown, &r.TotalScore, &r.Taps, &r.BestScore, &winner, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Round{}, err
		}
		return model.Round{}, fmt.Errorf("scan round: %w", err)
	}
	if winner != nil {
		r.Winner = *winner
	}
	r.Start, r.End, r.CreatedAt = r.Start.UTC(), r.End.UTC(), r.CreatedAt.UTC()
	return r, nil
}

func scanTap(row pgx.Row) (model.Tap, error) {
	var (
		t       model.Tap
		expires *time.Time
	)
	if err := row.Scan(&t.UserID, &t.RoundID, &t.Taps, &t.Score, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tap{}, err
		}
		return model.Tap{}, fmt.Errorf("scan tap: %w", err)
	}
	if expires != nil {
		t.ExpiresAt = expires.UTC()
	}
	return t, nil
}

// orderClause renders whitelisted sort fields; unknown fields are skipped.
func orderClause(fields []types.SortField) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := sortColumns[f.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation
}
