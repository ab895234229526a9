package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/earn-hire/internal/model"
)

// PGStore is a PostgreSQL-backed limiter store on table claim_limiter.
type PGStore struct {
	pool      pgxQuerier
	retention time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Store = (*PGStore)(nil)

// NewPG constructs a PostgreSQL-backed store.
func NewPG(pool *pgxpool.Pool, retention time.Duration) *PGStore {
	return &PGStore{pool: pool, retention: retention}
}

// NewPGWithQuerier constructs a PostgreSQL-backed store over any querier.
func NewPGWithQuerier(q pgxQuerier, retention time.Duration) *PGStore {
	return &PGStore{pool: q, retention: retention}
}

// Load reads the record for key.
func (s *PGStore) Load(ctx context.Context, key string) (model.RateLimitRecord, bool, error) {
	const q = `SELECT attempts, violations, last_attempt, cooldown_until, needs_captcha FROM claim_limiter WHERE identifier=$1`
	var rec model.RateLimitRecord
	err := s.pool.QueryRow(ctx, q, key).Scan(&rec.Attempts, &rec.Violations, &rec.LastAttempt, &rec.CooldownUntil, &rec.NeedsCaptcha)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.RateLimitRecord{}, false, nil
	default:
		return model.RateLimitRecord{}, false, err
	}
}

// Save upserts the record for key.
func (s *PGStore) Save(ctx context.Context, key string, rec model.RateLimitRecord) error {
	const q = `
INSERT INTO claim_limiter (identifier, attempts, violations, last_attempt, cooldown_until, needs_captcha, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (identifier) DO UPDATE
SET attempts=EXCLUDED.attempts, violations=EXCLUDED.violations, last_attempt=EXCLUDED.last_attempt,
    cooldown_until=EXCLUDED.cooldown_until, needs_captcha=EXCLUDED.needs_captcha, updated_at=now()`
	_, err := s.pool.Exec(ctx, q, key, rec.Attempts, rec.Violations, rec.LastAttempt, rec.CooldownUntil, rec.NeedsCaptcha)
	return err
}

// Sweep deletes records idle longer than retention whose cooldown has lapsed.
func (s *PGStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM claim_limiter WHERE last_attempt < $1 AND cooldown_until <= $2`
	tag, err := s.pool.Exec(ctx, q, now.Add(-s.retention).UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
