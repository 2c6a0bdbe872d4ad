package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
)

type IdempotencyRepository struct {
	db  *sql.DB
	ttl time.Duration
}

func NewIdempotencyRepository(db *sql.DB, ttl time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, ttl: ttl}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (portidempotency.Record, bool, error) {
	var rec portidempotency.Record
	var created string
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, status_code, body, created_at FROM idempotency_keys WHERE idempotency_key = ?`, key,
	).Scan(&rec.Key, &rec.Status, &rec.Body, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return portidempotency.Record{}, false, nil
		}
		return portidempotency.Record{}, false, fmt.Errorf("checking idempotency key: %w", err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return portidempotency.Record{}, false, err
	}
	if rec.Status == 0 || (r.ttl > 0 && time.Since(rec.CreatedAt) > r.ttl) {
		return portidempotency.Record{}, false, nil
	}
	return rec, true, nil
}

func (r *IdempotencyRepository) Reserve(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, status_code, body, created_at) VALUES (?, 0, x'', ?)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status_code = 0, body = excluded.body, created_at = excluded.created_at
		WHERE idempotency_keys.created_at < ?`,
		key, formatTime(time.Now()), r.cutoff())
	if err != nil {
		return false, fmt.Errorf("reserving idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserving idempotency key: %w", err)
	}
	return n == 1, nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE idempotency_key = ? AND status_code = 0`, key); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, rec portidempotency.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Body == nil {
		rec.Body = []byte{}
	}
	// A live answer wins; a reservation or an expired answer is replaced.
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, status_code, body, created_at) VALUES (?,?,?,?)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status_code = excluded.status_code, body = excluded.body, created_at = excluded.created_at
		WHERE idempotency_keys.status_code = 0 OR idempotency_keys.created_at < ?`,
		rec.Key, rec.Status, rec.Body, formatTime(rec.CreatedAt), r.cutoff()); err != nil {
		return fmt.Errorf("storing idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) cutoff() string {
	if r.ttl <= 0 {
		return ""
	}
	return formatTime(time.Now().Add(-r.ttl))
}
