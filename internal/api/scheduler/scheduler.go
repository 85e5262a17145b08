// Package scheduler 周期性触发数据库维护任务。
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"inkwell/internal/pkg/queue"
)

// Store 维护任务需要的存储操作。
type Store interface {
	// ClearExpiredOTPs 清理过期验证码，返回受影响的行数。
	ClearExpiredOTPs(ctx context.Context) (int64, error)
	// DeleteOrphanTags 删除无引用标签，返回删除的行数。
	DeleteOrphanTags(ctx context.Context) (int64, error)
}

// Options 调度配置。
type Options struct {
	Interval       time.Duration // 调度间隔
	CleanupOrphans bool          // 是否清理无引用标签（默认保留）
}

// Scheduler 按固定间隔把维护任务丢进 worker 池执行。
type Scheduler struct {
	store  Store
	jobs   *queue.Queue
	opts   Options
	logger *slog.Logger
}

// New 创建调度器。Interval <= 0 时默认 10 分钟。
func New(store Store, jobs *queue.Queue, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	return &Scheduler{
		store:  store,
		jobs:   jobs,
		opts:   opts,
		logger: logger,
	}
}

// Run 调度循环，直到 ctx 被取消。启动时先跑一轮。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", s.opts.Interval.String()),
		slog.Bool("cleanup_orphan_tags", s.opts.CleanupOrphans))

	s.dispatch()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.dispatch()
		}
	}
}

// dispatch 把本轮维护任务入队；队列满时跳过本轮，等下个周期。
func (s *Scheduler) dispatch() {
	if ok := s.jobs.Enqueue(s.clearExpiredOTPs); !ok {
		s.logger.Warn("skip otp cleanup, job queue full")
	}
	if s.opts.CleanupOrphans {
		if ok := s.jobs.Enqueue(s.deleteOrphanTags); !ok {
			s.logger.Warn("skip orphan tag cleanup, job queue full")
		}
	}
}

func (s *Scheduler) clearExpiredOTPs(ctx context.Context) error {
	n, err := s.store.ClearExpiredOTPs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("expired verification codes cleared", slog.Int64("count", n))
	}
	return nil
}

func (s *Scheduler) deleteOrphanTags(ctx context.Context) error {
	n, err := s.store.DeleteOrphanTags(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("orphan tags deleted", slog.Int64("count", n))
	}
	return nil
}
