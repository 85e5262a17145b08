package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDeduplicator_Remember(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()

	sum := HashBytes([]byte("image-bytes"))

	existing, dup, err := d.Remember(ctx, sum, "/static/uploads/a.png")
	if err != nil {
		t.Fatalf("first remember: %v", err)
	}
	if dup {
		t.Fatal("expected first occurrence to be non-duplicate")
	}
	if existing != "" {
		t.Fatalf("expected no existing value, got %q", existing)
	}

	existing, dup, err = d.Remember(ctx, sum, "/static/uploads/b.png")
	if err != nil {
		t.Fatalf("second remember: %v", err)
	}
	if !dup {
		t.Fatal("expected second occurrence to be duplicate")
	}
	if existing != "/static/uploads/a.png" {
		t.Fatalf("expected first stored value, got %q", existing)
	}
}

func TestDeduplicator_Forget(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()
	sum := HashBytes([]byte("payload"))

	if _, _, err := d.Remember(ctx, sum, "v1"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := d.Forget(ctx, sum); err != nil {
		t.Fatalf("forget: %v", err)
	}

	_, dup, err := d.Remember(ctx, sum, "v2")
	if err != nil {
		t.Fatalf("remember after forget: %v", err)
	}
	if dup {
		t.Fatal("expected non-duplicate after forget")
	}
}

func TestDeduplicator_NilSafe(t *testing.T) {
	var d *Deduplicator
	if _, dup, err := d.Remember(context.Background(), "abc", "v"); err != nil || dup {
		t.Fatalf("nil deduplicator must be a no-op, dup=%v err=%v", dup, err)
	}
}
