package locker

import "context"

// AdvisoryLocker serialises critical sections keyed by an int64.
// The Postgres implementation holds a session advisory lock on one pooled
// connection for the duration of fn; the in-memory one uses a keyed mutex.
type AdvisoryLocker interface {
	WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}
