package idempotency

import (
	"context"
	"time"
)

// Record is a stored response for a previously processed request.
// Status 0 marks a key reserved by a request that has not answered yet.
type Record struct {
	Key       string
	Status    int
	Body      []byte
	CreatedAt time.Time
}

// Store remembers responses by Idempotency-Key.
type Store interface {
	// Get reports only answered records; a pending reservation reads as absent.
	Get(ctx context.Context, key string) (Record, bool, error)
	// Reserve claims key for one in-flight request. It returns false when the
	// key is already claimed or answered.
	Reserve(ctx context.Context, key string) (bool, error)
	// Release drops an unanswered reservation so the key can be retried.
	Release(ctx context.Context, key string) error
	// Put answers key. It overwrites a reservation but never a live answer.
	Put(ctx context.Context, rec Record) error
}
