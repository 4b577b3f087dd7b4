package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vietvoice/vvtts/pkg/broker"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(broker.NewRedisFromClient(client))
}

func TestGenerateKeyFormat(t *testing.T) {
	fullKey, keyID, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if !strings.HasPrefix(fullKey, KeyPrefix) {
		t.Errorf("full key %q missing prefix %q", fullKey, KeyPrefix)
	}
	if got := len(fullKey) - len(KeyPrefix); got != 32 {
		t.Errorf("token length = %d, want 32", got)
	}
	if len(keyID) != 8 {
		t.Errorf("key id length = %d, want 8", len(keyID))
	}
	if !strings.HasSuffix(fullKey, keyID) {
		t.Errorf("key id %q is not the tail of %q", keyID, fullKey)
	}
}

func TestKeyIDFromFullKey(t *testing.T) {
	fullKey, keyID, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"valid", fullKey, keyID},
		{"wrong prefix", "other_" + fullKey[len(KeyPrefix):], ""},
		{"short token", KeyPrefix + "abc", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyIDFromFullKey(tt.key); got != tt.want {
				t.Errorf("KeyIDFromFullKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestCreateAndValidate(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	fullKey, created, err := mgr.Create(ctx, "test app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Name != "test app" {
		t.Errorf("created.Name = %q, want %q", created.Name, "test app")
	}

	info, err := mgr.Validate(ctx, fullKey)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info == nil {
		t.Fatal("Validate() = nil, want info for a valid key")
	}
	if info.KeyID != created.KeyID {
		t.Errorf("info.KeyID = %q, want %q", info.KeyID, created.KeyID)
	}
	if info.RequestsCount != 0 || info.AudioSeconds != 0 {
		t.Errorf("fresh key usage = (%d, %f), want (0, 0)", info.RequestsCount, info.AudioSeconds)
	}
}

func TestValidateRejectsBadKeys(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	fullKey, _, err := mgr.Create(ctx, "app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Same key id, different secret: the stored hash must not match.
	tampered := fullKey[:len(KeyPrefix)] + strings.Repeat("0", 24) + fullKey[len(fullKey)-8:]

	tests := []struct {
		name string
		key  string
	}{
		{"malformed", "not-a-key"},
		{"unknown id", KeyPrefix + strings.Repeat("f", 32)},
		{"tampered secret", tampered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := mgr.Validate(ctx, tt.key)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if info != nil {
				t.Errorf("Validate(%q) = %+v, want nil", tt.key, info)
			}
		})
	}
}

func TestIncrementUsage(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	fullKey, created, err := mgr.Create(ctx, "app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mgr.IncrementUsage(ctx, created.KeyID, 2.5); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	if err := mgr.IncrementUsage(ctx, created.KeyID, 0); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}

	info, err := mgr.Validate(ctx, fullKey)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.RequestsCount != 2 {
		t.Errorf("RequestsCount = %d, want 2", info.RequestsCount)
	}
	if info.AudioSeconds != 2.5 {
		t.Errorf("AudioSeconds = %f, want 2.5", info.AudioSeconds)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	fullKey, created, err := mgr.Create(ctx, "app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.IncrementUsage(ctx, created.KeyID, 1.0)
		}()
	}
	wg.Wait()

	info, err := mgr.Validate(ctx, fullKey)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.RequestsCount != n {
		t.Errorf("RequestsCount = %d, want %d", info.RequestsCount, n)
	}
	if info.AudioSeconds != float64(n) {
		t.Errorf("AudioSeconds = %f, want %f", info.AudioSeconds, float64(n))
	}
}

func TestDelete(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	fullKey, created, err := mgr.Create(ctx, "app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mgr.IncrementUsage(ctx, created.KeyID, 1); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}

	deleted, err := mgr.Delete(ctx, created.KeyID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true")
	}

	info, err := mgr.Validate(ctx, fullKey)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info != nil {
		t.Errorf("Validate() after delete = %+v, want nil", info)
	}

	deleted, err = mgr.Delete(ctx, created.KeyID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Delete() on missing key = true, want false")
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	for _, name := range []string{"oldest", "middle", "newest"} {
		_, info, err := mgr.Create(ctx, name)
		if err != nil {
			t.Fatalf("Create(%q) error = %v", name, err)
		}
		// Counters must not leak into the listing as phantom credentials.
		if err := mgr.IncrementUsage(ctx, info.KeyID, 1); err != nil {
			t.Fatalf("IncrementUsage() error = %v", err)
		}
	}

	keys, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("List() returned %d keys, want 3", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1].CreatedAt < keys[i].CreatedAt {
			t.Errorf("List() not sorted newest first: %f before %f", keys[i-1].CreatedAt, keys[i].CreatedAt)
		}
	}
	for _, k := range keys {
		if k.RequestsCount != 1 {
			t.Errorf("key %s RequestsCount = %d, want 1", k.KeyID, k.RequestsCount)
		}
	}
}
