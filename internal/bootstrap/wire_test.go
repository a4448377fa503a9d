package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"airbnb_insights/internal/shared"
)

func TestOpenSource_FileAndUnknown(t *testing.T) {
	src, closer, err := OpenSource(context.Background(), shared.Config{DataPath: "data/*.csv"}, "file")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer closer()
	if src.Name() != "file" {
		t.Fatalf("name=%q", src.Name())
	}

	if _, _, err := OpenSource(context.Background(), shared.Config{}, "ftp"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestOpenSource_HTTPNeedsAbsoluteURL(t *testing.T) {
	if _, _, err := OpenSource(context.Background(), shared.Config{RemoteURL: "/export.csv"}, "http"); err == nil {
		t.Fatalf("expected error for relative URL")
	}
}

func TestOpenDB_UnknownDriver(t *testing.T) {
	if _, err := OpenDB(context.Background(), shared.Config{StorageDriver: "oracle"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenCache(t *testing.T) {
	if c, _ := OpenCache(context.Background(), shared.Config{}); c != nil {
		t.Fatalf("expected no cache without REDIS_ADDR")
	}

	mr := miniredis.RunT(t)
	c, closer := OpenCache(context.Background(), shared.Config{RedisAddr: mr.Addr()})
	defer closer()
	if c == nil {
		t.Fatalf("expected cache")
	}
	if err := c.Set(context.Background(), "k", 1, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
}
