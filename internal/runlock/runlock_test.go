package runlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eventsCatalog/internal/utils/logger/sl"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	rel, err := l.Acquire(ctx, "tm")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "tm"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire err = %v, want ErrBusy", err)
	}
	other, err := l.Acquire(ctx, "eb")
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	_ = other(ctx)

	_ = rel(ctx)
	_ = rel(ctx)
	if l.Held("tm") {
		t.Fatal("still held after release")
	}
	if _, err := l.Acquire(ctx, "tm"); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
}

func TestLocalConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(ctx, "same"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestChainReleasesOnPartialFailure(t *testing.T) {
	ctx := context.Background()
	first, second := NewLocal(), NewLocal()

	held, err := second.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	chain := Chain{first, second}
	if _, err := chain.Acquire(ctx, "k"); !errors.Is(err, ErrBusy) {
		t.Fatalf("chain err = %v", err)
	}
	if first.Held("k") {
		t.Fatal("first lock leaked after chain failure")
	}

	_ = held(ctx)
	rel, err := chain.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("chain Acquire: %v", err)
	}
	if !first.Held("k") || !second.Held("k") {
		t.Fatal("chain did not take both locks")
	}
	if err := rel(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if first.Held("k") || second.Held("k") {
		t.Fatal("chain release incomplete")
	}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, client
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniRedis(t)

	a := NewRedisWithClient(sl.Discard(), client, "test:", time.Minute, time.Second)
	b := NewRedisWithClient(sl.Discard(), client, "test:", time.Minute, time.Second)

	rel, err := a.Acquire(ctx, "tm")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := b.Acquire(ctx, "tm"); !errors.Is(err, ErrBusy) {
		t.Fatalf("replica Acquire err = %v", err)
	}
	if err := rel(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := rel(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	relB, err := b.Acquire(ctx, "tm")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = relB(ctx)
}

func TestRedisLockRenewedWhileHeld(t *testing.T) {
	ctx := context.Background()
	m, client := newMiniRedis(t)

	ttl := 300 * time.Millisecond
	a := NewRedisWithClient(sl.Discard(), client, "test:", ttl, time.Second)
	b := NewRedisWithClient(sl.Discard(), client, "test:", ttl, time.Second)

	rel, err := a.Acquire(ctx, "slow")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Without renewal the key would be gone after the second jump.
	m.FastForward(250 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	m.FastForward(250 * time.Millisecond)

	if !m.Exists("test:slow") {
		t.Fatal("lock expired while held")
	}
	if _, err := b.Acquire(ctx, "slow"); !errors.Is(err, ErrBusy) {
		t.Fatalf("replica Acquire err = %v", err)
	}

	if err := rel(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if m.Exists("test:slow") {
		t.Fatal("lock still present after release")
	}
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	m, client := newMiniRedis(t)

	a := NewRedisWithClient(sl.Discard(), client, "test:", time.Minute, time.Second)
	rel, err := a.Acquire(ctx, "tm")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// the lock expired and another replica took it
	if err := m.Set("test:tm", "other-token"); err != nil {
		t.Fatal(err)
	}
	if err := rel(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, err := m.Get("test:tm"); err != nil || got != "other-token" {
		t.Fatalf("foreign lock = %q, %v", got, err)
	}
}
