package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
)

// Repository implements port/idempotency.Store on the idempotency_keys table.
type Repository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// New returns a store whose records expire after ttl. A zero ttl never expires.
func New(pool *pgxpool.Pool, ttl time.Duration) *Repository {
	return &Repository{pool: pool, ttl: ttl}
}

// Get looks up an existing idempotency key. Expired records read as absent.
func (r *Repository) Get(ctx context.Context, key string) (portidempotency.Record, bool, error) {
	query := `SELECT idempotency_key, status_code, body, created_at FROM idempotency_keys WHERE idempotency_key = $1`

	var rec portidempotency.Record
	err := r.pool.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.Status, &rec.Body, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return portidempotency.Record{}, false, nil
		}
		return portidempotency.Record{}, false, fmt.Errorf("checking idempotency key: %w", err)
	}
	if rec.Status == 0 || r.expired(rec.CreatedAt) {
		return portidempotency.Record{}, false, nil
	}
	return rec, true, nil
}

// Reserve inserts a pending row for key. An expired row of either kind is
// taken over.
func (r *Repository) Reserve(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (idempotency_key, status_code, body, created_at)
		VALUES ($1, 0, '', $2)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status_code = 0, body = EXCLUDED.body, created_at = EXCLUDED.created_at
		WHERE idempotency_keys.created_at < $3`

	tag, err := r.pool.Exec(ctx, query, key, time.Now().UTC(), r.cutoff())
	if err != nil {
		return false, fmt.Errorf("reserving idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Release(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND status_code = 0`, key)
	if err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// Put records a response over a reservation. A live answer for the key wins;
// an expired one is replaced.
func (r *Repository) Put(ctx context.Context, rec portidempotency.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Body == nil {
		rec.Body = []byte{}
	}
	query := `
		INSERT INTO idempotency_keys (idempotency_key, status_code, body, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status_code = EXCLUDED.status_code, body = EXCLUDED.body, created_at = EXCLUDED.created_at
		WHERE idempotency_keys.status_code = 0 OR idempotency_keys.created_at < $5`

	if _, err := r.pool.Exec(ctx, query, rec.Key, rec.Status, rec.Body, rec.CreatedAt, r.cutoff()); err != nil {
		return fmt.Errorf("storing idempotency key: %w", err)
	}
	return nil
}

// Purge deletes records older than the ttl and returns how many went.
func (r *Repository) Purge(ctx context.Context) (int64, error) {
	if r.ttl <= 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().UTC().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("purging idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) expired(created time.Time) bool {
	return r.ttl > 0 && time.Since(created) > r.ttl
}

// cutoff is the creation time before which a row no longer counts. The zero
// time never matches when there is no ttl.
func (r *Repository) cutoff() time.Time {
	if r.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(-r.ttl)
}
