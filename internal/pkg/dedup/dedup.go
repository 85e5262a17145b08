package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "inkwell:dedup:content:"

// Deduplicator 基于 Redis SETNX 的内容去重表。
//
// 以内容哈希为键记录首次出现时的取值（如上传文件的 URL），
// 重复出现时返回已记录的取值。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduplicator 创建去重器。ttl <= 0 时默认 24 小时。
func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Remember 记录内容哈希对应的取值。
//
// 若该哈希已有记录，返回已存的取值且 dup=true；否则写入 value 并返回 dup=false。
// Redis 未配置时退化为不去重。
func (d *Deduplicator) Remember(ctx context.Context, sum string, value string) (string, bool, error) {
	if d == nil || d.rdb == nil || sum == "" {
		return "", false, nil
	}
	key := keyPrefix + sum

	ok, err := d.rdb.SetNX(ctx, key, value, d.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("dedup setnx: %w", err)
	}
	if ok {
		return "", false, nil
	}

	existing, err := d.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		// 记录在 SETNX 和 GET 之间过期，按首次出现处理
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup get: %w", err)
	}
	return existing, true, nil
}

// Forget 删除内容哈希的记录。
func (d *Deduplicator) Forget(ctx context.Context, sum string) error {
	if d == nil || d.rdb == nil || sum == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, keyPrefix+sum).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

// HashBytes 返回内容的 sha256 十六进制摘要。
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
