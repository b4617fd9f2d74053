package product

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis はminiredisと接続済みクライアントを生成する。
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// TestRedisListCache はRedisの一覧キャッシュを検証する。
func TestRedisListCache(t *testing.T) {
	t.Parallel()

	t.Run("未保存の場合はok=falseを返すこと", func(t *testing.T) {
		t.Parallel()

		_, client := newTestRedis(t)
		cache := NewRedisListCache(client, time.Minute)

		products, gen, ok, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if ok || products != nil || gen != 0 {
			t.Errorf("Get() = (%v, %d, %v), want (nil, 0, false)", products, gen, ok)
		}
	})

	t.Run("保存した一覧を取得できTTLが設定されること", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		cache := NewRedisListCache(client, time.Minute)
		ctx := context.Background()
		want := []Product{{ID: "p-1", Name: "TV", Description: "d", Price: 2000}}

		if err := cache.Set(ctx, 0, want); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		got, _, ok, err := cache.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("Get() = (_, %v, %v), want ok", ok, err)
		}
		if len(got) != 1 || got[0] != want[0] {
			t.Errorf("Get() = %+v, want %+v", got, want)
		}
		if ttl := mr.TTL(defaultListKey); ttl != time.Minute {
			t.Errorf("TTL = %v, want %v", ttl, time.Minute)
		}

		mr.FastForward(2 * time.Minute)
		if _, _, ok, _ := cache.Get(ctx); ok {
			t.Error("TTL経過後もキャッシュが残っている")
		}
	})

	t.Run("空の一覧もキャッシュできること", func(t *testing.T) {
		t.Parallel()

		_, client := newTestRedis(t)
		cache := NewRedisListCache(client, 0)
		ctx := context.Background()

		if err := cache.Set(ctx, 0, []Product{}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		got, _, ok, err := cache.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("Get() = (_, %v, %v), want ok", ok, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Get() = %#v, want empty non-nil slice", got)
		}
	})

	t.Run("Invalidateでキャッシュが破棄されること", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		cache := NewRedisListCache(client, time.Minute)
		ctx := context.Background()

		if err := cache.Set(ctx, 0, []Product{{ID: "p-1"}}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		if err := cache.Invalidate(ctx); err != nil {
			t.Fatalf("Invalidate()でエラーが発生: %v", err)
		}
		if mr.Exists(defaultListKey) {
			t.Error("キーが残っている")
		}
		_, gen, ok, err := cache.Get(ctx)
		if err != nil || ok {
			t.Fatalf("Get() = (_, _, %v, %v), want miss", ok, err)
		}
		if gen != 1 {
			t.Errorf("gen = %d, want 1", gen)
		}
	})

	t.Run("読み取り後に世代が進んだ場合は保存しないこと", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		cache := NewRedisListCache(client, time.Minute)
		ctx := context.Background()

		_, gen, _, err := cache.Get(ctx)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if err := cache.Invalidate(ctx); err != nil {
			t.Fatalf("Invalidate()でエラーが発生: %v", err)
		}
		if err := cache.Set(ctx, gen, []Product{{ID: "stale"}}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		if mr.Exists(defaultListKey) {
			t.Error("古い世代の一覧が保存されている")
		}

		_, gen, _, err = cache.Get(ctx)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if err := cache.Set(ctx, gen, []Product{{ID: "fresh"}}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		got, _, ok, err := cache.Get(ctx)
		if err != nil || !ok {
			t.Fatalf("Get() = (_, _, %v, %v), want ok", ok, err)
		}
		if len(got) != 1 || got[0].ID != "fresh" {
			t.Errorf("Get() = %+v, want [fresh]", got)
		}
	})

	t.Run("Redisが停止している場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		mr, client := newTestRedis(t)
		cache := NewRedisListCache(client, time.Minute)
		mr.Close()

		if _, _, _, err := cache.Get(context.Background()); err == nil {
			t.Error("エラーが返されるべき")
		}
	})
}
