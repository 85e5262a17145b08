// Package mailqueue 提供基于 Redis List 的邮件投递队列。
//
// 生产方（API 进程）将待发送邮件入队后立即返回，消费方在后台串行投递，
// SMTP 抖动不会拖慢注册请求。pending 集合保证同一消息在队列中只出现一次。
package mailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey = "inkwell:queue:mail"
	pendingSuffix   = ":pending"
)

var (
	ErrNoMessage = errors.New("no mail message available")
	ErrExists    = errors.New("mail message already queued")
)

// Message 表示一封待投递的邮件。
type Message struct {
	ID   string `json:"id"`   // 去重标识（如 "verify:<email>"）
	Kind string `json:"kind"` // 邮件类型: verification
	To   string `json:"to"`   // 收件人
	Code string `json:"code"` // 验证码（verification 类型）
}

// KindVerification 注册验证码邮件。
const KindVerification = "verification"

// Client 封装邮件队列的 Redis 操作。
type Client struct {
	rdb      *redis.Client
	queueKey string
}

// NewClient 以地址/密码创建队列客户端。
func NewClient(addr, password, queueKey string) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		queueKey: normalizeKey(queueKey),
	}
}

// NewClientWithRedis 复用已有的 redis.Client 创建队列客户端。
func NewClientWithRedis(rdb *redis.Client, queueKey string) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb, queueKey: normalizeKey(queueKey)}, nil
}

func normalizeKey(key string) string {
	if key == "" {
		return defaultQueueKey
	}
	return key
}

// pushScript 原子执行 SADD + LPUSH，避免中间状态不一致。
// KEYS[1] = pending set, KEYS[2] = queue
// ARGV[1] = message id, ARGV[2] = message JSON
// 返回: 1 = 成功入队, 0 = 消息已存在
var pushScript = redis.NewScript(`
	local added = redis.call('SADD', KEYS[1], ARGV[1])
	if added == 0 then
		return 0
	end
	redis.call('LPUSH', KEYS[2], ARGV[2])
	return 1
`)

// Push 将邮件消息入队。同一 ID 已在队列中时返回 ErrExists。
func (c *Client) Push(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	if msg.ID == "" {
		return errors.New("message id is empty")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	result, err := pushScript.Run(ctx, c.rdb,
		[]string{c.queueKey + pendingSuffix, c.queueKey},
		msg.ID, string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("push message script: %w", err)
	}
	if result == 0 {
		return ErrExists
	}
	return nil
}

// Pop 阻塞等待一条消息，超时返回 ErrNoMessage。
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	if c == nil || c.rdb == nil {
		return nil, errors.New("redis client is not initialized")
	}
	result, err := c.rdb.BRPop(ctx, timeout, c.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, fmt.Errorf("brpop message: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid brpop response: %v", result)
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// Ack 将消息从 pending 集合移除，允许同 ID 消息再次入队。
func (c *Client) Ack(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	if err := c.rdb.SRem(ctx, c.queueKey+pendingSuffix, msg.ID).Err(); err != nil {
		return fmt.Errorf("srem pending: %w", err)
	}
	return nil
}

// Len 返回队列中待投递的消息数。
func (c *Client) Len(ctx context.Context) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, errors.New("redis client is not initialized")
	}
	return c.rdb.LLen(ctx, c.queueKey).Result()
}

// Close 关闭底层 Redis 连接。
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
