package mailqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := NewClientWithRedis(rdb, "test:queue:mail")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClient_PushPopRoundtrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	msg := &Message{
		ID:   "verify:alice@example.com",
		Kind: KindVerification,
		To:   "alice@example.com",
		Code: "123456",
	}
	if err := c.Push(ctx, msg); err != nil {
		t.Fatalf("push: %v", err)
	}

	got, err := c.Pop(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if got.ID != msg.ID || got.To != msg.To || got.Code != msg.Code || got.Kind != msg.Kind {
		t.Fatalf("message mismatch: %+v", got)
	}
}

func TestClient_PushDeduplicates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	msg := &Message{ID: "verify:bob@example.com", Kind: KindVerification, To: "bob@example.com", Code: "111111"}
	if err := c.Push(ctx, msg); err != nil {
		t.Fatalf("first push: %v", err)
	}

	err := c.Push(ctx, &Message{ID: msg.ID, Kind: KindVerification, To: msg.To, Code: "222222"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	if n, err := c.Len(ctx); err != nil || n != 1 {
		t.Fatalf("expected queue length 1, got %d (err=%v)", n, err)
	}
}

func TestClient_AckAllowsRequeue(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	msg := &Message{ID: "verify:carol@example.com", Kind: KindVerification, To: "carol@example.com", Code: "333333"}
	if err := c.Push(ctx, msg); err != nil {
		t.Fatalf("push: %v", err)
	}

	popped, err := c.Pop(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if err := c.Ack(ctx, popped); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if err := c.Push(ctx, msg); err != nil {
		t.Fatalf("requeue after ack should succeed: %v", err)
	}
}

func TestClient_PushValidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.Push(ctx, nil); err == nil {
		t.Fatal("nil message must be rejected")
	}
	if err := c.Push(ctx, &Message{Kind: KindVerification, To: "x@example.com"}); err == nil {
		t.Fatal("empty id must be rejected")
	}
}
