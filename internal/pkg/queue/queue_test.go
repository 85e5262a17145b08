package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestQueue_BasicFunctionality(t *testing.T) {
	q := NewQueue(testLogger(), 3, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		job := func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			completed.Add(1)
			return nil
		}
		if !q.Enqueue(job) {
			t.Errorf("failed to enqueue job %d", i)
		}
	}

	// 等待任务完成
	time.Sleep(500 * time.Millisecond)
	q.Shutdown()

	if completed.Load() != 5 {
		t.Errorf("expected 5 completed jobs, got %d", completed.Load())
	}

	stats := q.Stats()
	if stats.Enqueued != 5 {
		t.Errorf("expected 5 enqueued, got %d", stats.Enqueued)
	}
	if stats.Succeeded != 5 {
		t.Errorf("expected 5 succeeded, got %d", stats.Succeeded)
	}
}

func TestQueue_ErrorHandling(t *testing.T) {
	q := NewQueue(testLogger(), 2, 5)

	var errorCount atomic.Int32
	q.SetErrorHandler(func(err error, job Job) {
		errorCount.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	for i := 0; i < 3; i++ {
		idx := i
		q.Enqueue(func(ctx context.Context) error {
			return fmt.Errorf("job %d failed", idx)
		})
	}

	time.Sleep(300 * time.Millisecond)
	q.Shutdown()

	if errorCount.Load() != 3 {
		t.Errorf("expected 3 error callbacks, got %d", errorCount.Load())
	}
	if q.Stats().Failed != 3 {
		t.Errorf("expected 3 failed, got %d", q.Stats().Failed)
	}
}

func TestQueue_PanicRecovery(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		panic("boom")
	})

	var ran atomic.Bool
	q.Enqueue(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	time.Sleep(300 * time.Millisecond)
	q.Shutdown()

	if q.Stats().Panics != 1 {
		t.Errorf("expected 1 panic, got %d", q.Stats().Panics)
	}
	if !ran.Load() {
		t.Error("worker should survive a panicking job")
	}
}

func TestQueue_DropWhenFull(t *testing.T) {
	// 未启动 worker，队列容量 1
	q := NewQueue(testLogger(), 1, 1)

	block := func(ctx context.Context) error { return nil }
	if !q.Enqueue(block) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue(block) {
		t.Fatal("second enqueue should be dropped")
	}
	if q.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", q.Stats().Dropped)
	}
}

func TestQueue_RejectAfterShutdown(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Shutdown()

	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Error("enqueue after shutdown should fail")
	}
	err := q.EnqueueBlocking(context.Background(), func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("blocking enqueue after shutdown should fail")
	}
}

func TestQueue_ShutdownWithTimeout(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	if err := q.ShutdownWithTimeout(2 * time.Second); err != nil {
		t.Fatalf("shutdown should finish within timeout: %v", err)
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatal("second shutdown should report already closed")
	}
}
