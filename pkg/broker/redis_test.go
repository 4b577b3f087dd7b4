package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestBroker spins up an in-process Redis and returns a Redis broker
// bound to it plus the server handle for clock control.
func newTestBroker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client), srv
}

func TestPushPopFIFO(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	for _, v := range []string{"first", "second", "third"} {
		if err := b.Push(ctx, "jobs", v); err != nil {
			t.Fatalf("Push(%q) error = %v", v, err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		got, err := b.BlockingPop(ctx, "jobs", time.Second)
		if err != nil {
			t.Fatalf("BlockingPop() error = %v", err)
		}
		if got != want {
			t.Errorf("BlockingPop() = %q, want %q", got, want)
		}
	}
}

func TestBlockingPopTimeout(t *testing.T) {
	b, _ := newTestBroker(t)

	_, err := b.BlockingPop(context.Background(), "empty", 50*time.Millisecond)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("BlockingPop() error = %v, want ErrNotFound", err)
	}
}

func TestSetGetExpiry(t *testing.T) {
	b, srv := newTestBroker(t)
	ctx := context.Background()

	if err := b.Set(ctx, "status:1", "pending", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := b.Get(ctx, "status:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "pending" {
		t.Errorf("Get() = %q, want %q", got, "pending")
	}

	srv.FastForward(2 * time.Minute)

	if _, err := b.Get(ctx, "status:1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestGetMissing(t *testing.T) {
	b, _ := newTestBroker(t)

	if _, err := b.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestListLenAndRange(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := b.Push(ctx, "l", v); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	n, err := b.ListLen(ctx, "l")
	if err != nil {
		t.Fatalf("ListLen() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ListLen() = %d, want %d", n, 3)
	}

	vals, err := b.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	// LPUSH puts the newest element at the head.
	want := []string{"c", "b", "a"}
	if len(vals) != len(want) {
		t.Fatalf("ListRange() returned %d values, want %d", len(vals), len(want))
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("ListRange()[%d] = %q, want %q", i, vals[i], want[i])
		}
	}
}

func TestHashCounters(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.HashIncrBy(ctx, "metrics", "jobs_completed", 1); err != nil {
		t.Fatalf("HashIncrBy() error = %v", err)
	}
	if err := b.HashIncrBy(ctx, "metrics", "jobs_completed", 2); err != nil {
		t.Fatalf("HashIncrBy() error = %v", err)
	}
	if err := b.HashIncrByFloat(ctx, "metrics", "audio_seconds", 1.5); err != nil {
		t.Fatalf("HashIncrByFloat() error = %v", err)
	}

	m, err := b.HashGetAll(ctx, "metrics")
	if err != nil {
		t.Fatalf("HashGetAll() error = %v", err)
	}
	if m["jobs_completed"] != "3" {
		t.Errorf("jobs_completed = %q, want %q", m["jobs_completed"], "3")
	}
	if m["audio_seconds"] != "1.5" {
		t.Errorf("audio_seconds = %q, want %q", m["audio_seconds"], "1.5")
	}
}

func TestScanPrefix(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	for _, k := range []string{"worker:a", "worker:b", "status:x"} {
		if err := b.Set(ctx, k, "1", 0); err != nil {
			t.Fatalf("Set(%q) error = %v", k, err)
		}
	}

	keys, err := b.ScanPrefix(ctx, "worker:")
	if err != nil {
		t.Fatalf("ScanPrefix() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ScanPrefix() returned %d keys, want 2: %v", len(keys), keys)
	}
	for _, k := range keys {
		if k != "worker:a" && k != "worker:b" {
			t.Errorf("ScanPrefix() returned unexpected key %q", k)
		}
	}
}
