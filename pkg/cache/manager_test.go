package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis for unit tests.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	client, mr := setupTestRedis(t)
	manager, err := NewManager(client)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager, mr
}

func TestNewManager_NilRedis(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Error("NewManager should fail with nil redis client")
	}
}

func TestManager_SetAndGet(t *testing.T) {
	manager, mr := newTestManager(t)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/movie/603"}
	body := `{"id":603,"title":"The Matrix","overview":"` + strings.Repeat("red pill ", 200) + `"}`
	entry := &CacheEntry{
		Data:       []byte(body),
		Expires:    time.Now().Add(5 * time.Minute),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	stored, err := mr.Get(key.String())
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if len(stored) >= len(body) {
		t.Errorf("stored %d bytes, expected compression below %d", len(stored), len(body))
	}
	if ttl := mr.TTL(key.String()); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want (0, 5m]", ttl)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != body {
		t.Errorf("Data mismatch")
	}
	if retrieved.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", retrieved.StatusCode)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Get(context.Background(), CacheKey{Endpoint: "/movie/0"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_Corrupted(t *testing.T) {
	manager, mr := newTestManager(t)
	key := CacheKey{Endpoint: "/movie/1"}
	_ = mr.Set(key.String(), "not zstd")

	_, err := manager.Get(context.Background(), key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Set_Expired(t *testing.T) {
	manager, mr := newTestManager(t)
	key := CacheKey{Endpoint: "/movie/2"}

	err := manager.Set(context.Background(), key, &CacheEntry{
		Data:    []byte("{}"),
		Expires: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("expired entry should not be stored")
	}
}

func TestManager_Set_Nil(t *testing.T) {
	manager, _ := newTestManager(t)
	if err := manager.Set(context.Background(), CacheKey{Endpoint: "/x"}, nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestManager_Delete(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/movie/3"}

	_ = manager.Set(ctx, key, &CacheEntry{Data: []byte("{}"), Expires: time.Now().Add(time.Minute), StatusCode: 200})
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}
