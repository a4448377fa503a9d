package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisad "airbnb_insights/internal/adapters/redis"
	"airbnb_insights/internal/domain"
)

func TestCache_SetGetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	var out domain.AggregationResult
	ok, err := c.Get(ctx, "agg:v1:x", &out)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	in := domain.AggregationResult{
		Request: "g=country|op=count|n=0|o=0",
		Groups:  []domain.GroupValue{{Key: "US", Value: 2, Count: 2}},
		Version: "v1",
	}
	if err := c.Set(ctx, "agg:v1:x", in, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("airbnb:agg:v1:x") {
		t.Fatalf("expected prefixed key in redis, keys=%v", mr.Keys())
	}

	ok, err = c.Get(ctx, "agg:v1:x", &out)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Version != "v1" || len(out.Groups) != 1 || out.Groups[0].Key != "US" {
		t.Fatalf("unexpected cached value: %+v", out)
	}

	if err := c.Del(ctx, "agg:v1:x"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if ok, _ := c.Get(ctx, "agg:v1:x", &out); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestCache_TTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Set(ctx, "k", map[string]int{"n": 1}, 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(6 * time.Second)

	var out map[string]int
	if ok, _ := c.Get(ctx, "k", &out); ok {
		t.Fatalf("expected key to expire")
	}
}
