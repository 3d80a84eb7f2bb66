package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the caller still owns it,
// so a lock that expired and was re-acquired elsewhere is never released
// by the old holder.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker via SET NX with TTL. The TTL bounds how
// long a crashed instance can block a newsletter's schedule; it should
// comfortably exceed the run soft deadline.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.Mutex
	owners map[string]string // newsletterID -> ownership token
}

// NewRedisLocker creates the Redis backend with the given lock TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, owners: make(map[string]string)}
}

func lockKey(newsletterID string) string {
	return fmt.Sprintf("runlock:newsletter:%s", newsletterID)
}

// TryAcquire attempts SETNX with a fresh ownership token.
func (l *RedisLocker) TryAcquire(ctx context.Context, newsletterID string) (bool, error) {
	b := make([]byte, 16)
	rand.Read(b)
	token := hex.EncodeToString(b)

	ok, err := l.client.SetNX(ctx, lockKey(newsletterID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock for %s: %w", newsletterID, err)
	}
	if ok {
		l.mu.Lock()
		l.owners[newsletterID] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release deletes the lock only if this instance still owns it.
func (l *RedisLocker) Release(ctx context.Context, newsletterID string) error {
	l.mu.Lock()
	token, held := l.owners[newsletterID]
	delete(l.owners, newsletterID)
	l.mu.Unlock()
	if !held {
		return nil
	}
	_, err := releaseScript.Run(ctx, l.client, []string{lockKey(newsletterID)}, token).Result()
	return err
}
