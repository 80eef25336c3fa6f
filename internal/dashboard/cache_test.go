package dashboard

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/bitesync/internal/model"
)

// TestMemoryViewCache_TTL は期限切れのビューが返らないことを検証する。
func TestMemoryViewCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryViewCache(time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if ok, err := c.SetIfGeneration(ctx, "u1", 0, &View{Profile: &model.UserProfile{ID: "u1"}}); err != nil || !ok {
		t.Fatalf("SetIfGeneration() = %v, %v", ok, err)
	}
	if v, err := c.Get(ctx, "u1"); err != nil || v.Profile.ID != "u1" {
		t.Fatalf("Get() = %+v, %v", v, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "u1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}

// TestMemoryViewCache_Invalidate は複数ユーザーのビューをまとめて破棄できることを検証する。
func TestMemoryViewCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryViewCache(time.Minute)
	_, _ = c.SetIfGeneration(ctx, "u1", 0, &View{})
	_, _ = c.SetIfGeneration(ctx, "u2", 0, &View{})
	_, _ = c.SetIfGeneration(ctx, "u3", 0, &View{})

	if err := c.Invalidate(ctx, "u1", "u2"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		if _, err := c.Get(ctx, id); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get(%s) error = %v, want ErrCacheMiss", id, err)
		}
	}
	if _, err := c.Get(ctx, "u3"); err != nil {
		t.Errorf("Get(u3) error = %v", err)
	}
}

// TestMemoryViewCache_StaleGenerationRejected は無効化前に取った世代では書き込めないことを検証する。
func TestMemoryViewCache_StaleGenerationRejected(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryViewCache(time.Minute)

	gen, _ := c.Generation(ctx, "u1")
	if err := c.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if ok, _ := c.SetIfGeneration(ctx, "u1", gen, &View{}); ok {
		t.Fatal("write with a stale generation must be rejected")
	}
	if _, err := c.Get(ctx, "u1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}

	fresh, _ := c.Generation(ctx, "u1")
	if ok, _ := c.SetIfGeneration(ctx, "u1", fresh, &View{}); !ok {
		t.Error("write with the current generation should succeed")
	}
}

// TestMemoryViewCache_SweepPrunesGenerations は世代の記録が掃除で捨てられ、
// それでも掃除前の世代での書き込みは拒否されることを検証する。
func TestMemoryViewCache_SweepPrunesGenerations(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryViewCache(time.Minute)

	for _, id := range []string{"u1", "u2", "u3"} {
		_ = c.Invalidate(ctx, id)
	}
	before, _ := c.Generation(ctx, "u1")
	untouched, _ := c.Generation(ctx, "u9")
	c.Sweep()

	if len(c.gens) != 0 {
		t.Errorf("generations after Sweep = %d, want 0", len(c.gens))
	}
	after, _ := c.Generation(ctx, "u1")
	if after < before {
		t.Errorf("generation went backwards: %d -> %d", before, after)
	}
	if ok, _ := c.SetIfGeneration(ctx, "u9", untouched, &View{}); ok {
		t.Error("write begun before the sweep must be rejected")
	}
	if ok, _ := c.SetIfGeneration(ctx, "u1", after, &View{}); !ok {
		t.Error("write with the post-sweep generation should succeed")
	}
}

// TestRedisViewCache_Integration はRedisを使ったキャッシュの往復を検証する。
// TEST_REDIS_URL が設定されていない場合はスキップする。
func TestRedisViewCache_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis integration test")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	c := NewRedisViewCache(client, "bitesync-test:view:", time.Minute)
	name := "Ana"
	view := &View{Profile: &model.UserProfile{ID: "u1", Email: "a@b.com", Name: &name, Role: "user", Team: "unassigned"}}

	_ = client.Del(ctx, c.key("u1"), c.genKey("u1")).Err()

	gen, err := c.Generation(ctx, "u1")
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if ok, err := c.SetIfGeneration(ctx, "u1", gen, view); err != nil || !ok {
		t.Fatalf("SetIfGeneration() = %v, %v", ok, err)
	}
	got, err := c.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Profile.ID != "u1" || got.Profile.Name == nil || *got.Profile.Name != "Ana" {
		t.Errorf("Get() = %+v", got.Profile)
	}

	if err := c.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := c.Get(ctx, "u1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}

	// 別のクライアントから見ても、無効化前の世代での書き込みは拒否される
	other := NewRedisViewCache(client, "bitesync-test:view:", time.Minute)
	if ok, err := other.SetIfGeneration(ctx, "u1", gen, view); err != nil || ok {
		t.Errorf("stale SetIfGeneration() = %v, %v, want false", ok, err)
	}
	next, err := other.Generation(ctx, "u1")
	if err != nil || next != gen+1 {
		t.Errorf("Generation() = %d, %v, want %d", next, err, gen+1)
	}
}

// TestRedisViewCache_KeyPrefix は既定のキー接頭辞を検証する。
func TestRedisViewCache_KeyPrefix(t *testing.T) {
	c := NewRedisViewCache(nil, "", time.Minute)
	if got := c.key("u1"); got != "bitesync:view:u1" {
		t.Errorf("key = %q, want bitesync:view:u1", got)
	}
	if got := c.genKey("u1"); got != "bitesync:view:u1:gen" {
		t.Errorf("genKey = %q, want bitesync:view:u1:gen", got)
	}
}
