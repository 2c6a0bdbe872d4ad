package memory

import (
	"context"
	"errors"
	"time"

	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
)

// IdempotencyStore implements port/idempotency.Store on a TTL cache.
// The first answer wins, as in the SQL stores.
type IdempotencyStore struct {
	cache *Cache[portidempotency.Record]
	ttl   time.Duration
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{cache: NewCache[portidempotency.Record](), ttl: ttl}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (portidempotency.Record, bool, error) {
	rec, err := s.cache.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return portidempotency.Record{}, false, nil
	}
	if err != nil {
		return portidempotency.Record{}, false, err
	}
	if pending(rec) {
		return portidempotency.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	return s.cache.SetIfAbsent(ctx, key, portidempotency.Record{Key: key, CreatedAt: time.Now().UTC()}, s.ttl), nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	s.cache.InvalidateIf(ctx, key, pending)
	return nil
}

func (s *IdempotencyStore) Put(ctx context.Context, rec portidempotency.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.cache.SetUnless(ctx, rec.Key, rec, s.ttl, func(cur portidempotency.Record) bool { return !pending(cur) })
	return nil
}

func pending(rec portidempotency.Record) bool { return rec.Status == 0 }

// Sweeper exposes the underlying cache sweeper to the composition root.
func (s *IdempotencyStore) Sweeper(ctx context.Context, interval time.Duration) {
	s.cache.RunSweeper(ctx, interval)
}
