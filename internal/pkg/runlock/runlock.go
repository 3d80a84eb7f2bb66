// Package runlock serializes pipeline runs per newsletter. At most one
// run may be in flight for a given newsletter; overlapping triggers are
// coalesced (skipped), never queued. The default backend is in-process;
// a Redis backend extends the guarantee across instances.
package runlock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants at-most-one in-flight run per newsletter.
type Locker interface {
	// TryAcquire returns true when the caller now holds the run slot
	// for the newsletter. False means a run is already in flight.
	TryAcquire(ctx context.Context, newsletterID string) (bool, error)
	// Release frees the slot. Releasing an unheld slot is a no-op.
	Release(ctx context.Context, newsletterID string) error
}

// New selects the best available backend. A non-nil Redis client wins
// (coalesces runs across instances); otherwise the in-process set is used.
func New(redisClient *redis.Client, ttl time.Duration) Locker {
	if redisClient != nil {
		return NewRedisLocker(redisClient, ttl)
	}
	return NewLocalLocker()
}

// LocalLocker is the in-process backend: a mutex-guarded set of
// newsletter ids with runs in flight.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates the in-process backend.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryAcquire marks the newsletter as running unless it already is.
func (l *LocalLocker) TryAcquire(_ context.Context, newsletterID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[newsletterID]; busy {
		return false, nil
	}
	l.held[newsletterID] = struct{}{}
	return true, nil
}

// Release clears the running mark.
func (l *LocalLocker) Release(_ context.Context, newsletterID string) error {
	l.mu.Lock()
	delete(l.held, newsletterID)
	l.mu.Unlock()
	return nil
}
