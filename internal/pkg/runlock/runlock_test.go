package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLockerCoalesces(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ok, err := l.TryAcquire(ctx, "nl-1")
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = l.TryAcquire(ctx, "nl-1")
	if err != nil {
		t.Fatalf("second TryAcquire error: %v", err)
	}
	if ok {
		t.Error("second TryAcquire succeeded while run in flight")
	}

	// Different newsletter is independent.
	ok, _ = l.TryAcquire(ctx, "nl-2")
	if !ok {
		t.Error("TryAcquire for another newsletter should succeed")
	}

	if err := l.Release(ctx, "nl-1"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	ok, _ = l.TryAcquire(ctx, "nl-1")
	if !ok {
		t.Error("TryAcquire after Release should succeed")
	}

	// Releasing something never held is a no-op.
	if err := l.Release(ctx, "nl-unknown"); err != nil {
		t.Errorf("Release of unheld slot: %v", err)
	}
}

func TestRedisLockerCoalesces(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	l := NewRedisLocker(client, time.Minute)

	ok, err := l.TryAcquire(ctx, "nl-1")
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = (%v, %v), want (true, nil)", ok, err)
	}

	// A second instance cannot acquire the same newsletter.
	other := NewRedisLocker(client, time.Minute)
	ok, err = other.TryAcquire(ctx, "nl-1")
	if err != nil {
		t.Fatalf("second instance TryAcquire error: %v", err)
	}
	if ok {
		t.Error("second instance acquired a held lock")
	}

	if err := l.Release(ctx, "nl-1"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	ok, _ = other.TryAcquire(ctx, "nl-1")
	if !ok {
		t.Error("TryAcquire after Release should succeed")
	}
}

func TestRedisLockerReleaseOnlyWhenOwned(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisLocker(client, time.Minute)
	b := NewRedisLocker(client, time.Minute)

	if ok, _ := a.TryAcquire(ctx, "nl-1"); !ok {
		t.Fatal("a should acquire")
	}

	// Simulate a's TTL expiring, then b acquiring.
	mr.FastForward(2 * time.Minute)
	if ok, _ := b.TryAcquire(ctx, "nl-1"); !ok {
		t.Fatal("b should acquire after expiry")
	}

	// a's release must not free b's lock.
	if err := a.Release(ctx, "nl-1"); err != nil {
		t.Fatalf("a.Release error: %v", err)
	}
	if ok, _ := a.TryAcquire(ctx, "nl-1"); ok {
		t.Error("lock should still be held by b after a's stale release")
	}
}

func TestNewPicksBackend(t *testing.T) {
	if _, ok := New(nil, time.Minute).(*LocalLocker); !ok {
		t.Error("New(nil) should return the local backend")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	if _, ok := New(client, time.Minute).(*RedisLocker); !ok {
		t.Error("New(client) should return the Redis backend")
	}
}
