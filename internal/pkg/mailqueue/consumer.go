package mailqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inkwell/internal/pkg/metrics"
	"inkwell/internal/pkg/notify"
)

// Consumer 从队列取出邮件并串行投递。
type Consumer struct {
	client   *Client
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewConsumer 创建邮件队列消费者。
func NewConsumer(client *Client, notifier notify.Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:   client,
		notifier: notifier,
		logger:   logger,
	}
}

// Run 消费循环，直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("mail queue consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("mail queue consumer stopping")
			return
		default:
		}

		msg, err := c.client.Pop(ctx, 5*time.Second)
		if errors.Is(err, ErrNoMessage) {
			c.reportDepth(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("pop mail message failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		if err := c.deliver(msg); err != nil {
			c.logger.Warn("mail delivery failed",
				slog.String("id", msg.ID),
				slog.String("to", msg.To),
				slog.String("error", err.Error()))
		}

		// 投递结果无论成败都确认，失败由用户通过重发接口重试
		if err := c.client.Ack(ctx, msg); err != nil {
			c.logger.Warn("ack mail message failed", slog.String("id", msg.ID), slog.String("error", err.Error()))
		}
		c.reportDepth(ctx)
	}
}

func (c *Consumer) deliver(msg *Message) error {
	switch msg.Kind {
	case KindVerification:
		return c.notifier.SendVerificationCode(msg.To, msg.Code)
	default:
		return fmt.Errorf("unknown mail kind: %s", msg.Kind)
	}
}

func (c *Consumer) reportDepth(ctx context.Context) {
	if metrics.MailQueueDepth == nil {
		return
	}
	if depth, err := c.client.Len(ctx); err == nil {
		metrics.MailQueueDepth.Set(float64(depth))
	}
}
