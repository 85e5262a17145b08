package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"inkwell/internal/pkg/queue"
)

type mockStore struct {
	otpCalls    atomic.Int64
	orphanCalls atomic.Int64
}

func (m *mockStore) ClearExpiredOTPs(ctx context.Context) (int64, error) {
	m.otpCalls.Add(1)
	return 1, nil
}

func (m *mockStore) DeleteOrphanTags(ctx context.Context) (int64, error) {
	m.orphanCalls.Add(1)
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestScheduler_DispatchesOnStart(t *testing.T) {
	logger := testLogger()
	store := &mockStore{}
	jobs := queue.NewQueue(logger, 1, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs.Start(ctx)

	sched := New(store, jobs, Options{Interval: time.Hour}, logger)
	go sched.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return store.otpCalls.Load() >= 1 })

	// 默认不清理孤儿标签
	if store.orphanCalls.Load() != 0 {
		t.Fatalf("orphan cleanup must be opt-in, got %d calls", store.orphanCalls.Load())
	}
}

func TestScheduler_OrphanCleanupOptIn(t *testing.T) {
	logger := testLogger()
	store := &mockStore{}
	jobs := queue.NewQueue(logger, 1, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs.Start(ctx)

	sched := New(store, jobs, Options{Interval: time.Hour, CleanupOrphans: true}, logger)
	go sched.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return store.otpCalls.Load() >= 1 && store.orphanCalls.Load() >= 1
	})
}

func TestScheduler_PeriodicTicks(t *testing.T) {
	logger := testLogger()
	store := &mockStore{}
	jobs := queue.NewQueue(logger, 1, 32)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs.Start(ctx)

	sched := New(store, jobs, Options{Interval: 20 * time.Millisecond}, logger)
	go sched.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return store.otpCalls.Load() >= 3 })
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	logger := testLogger()
	store := &mockStore{}
	jobs := queue.NewQueue(logger, 1, 8)

	ctx, cancel := context.WithCancel(context.Background())
	jobs.Start(ctx)

	sched := New(store, jobs, Options{Interval: 20 * time.Millisecond}, logger)
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return store.otpCalls.Load() >= 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
