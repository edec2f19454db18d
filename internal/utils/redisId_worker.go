package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdWorker 全局ID生成器：高31位时间戳 + 低32位当日自增序列
type RedisIdWorker struct {
	client *redis.Client
}

const (
	// 开始时间戳（2024-01-01 00:00:00 UTC）
	beginTimestamp = int64(1704067200)
	// 31bit 时间戳最大值
	maxTimestamp = int64((1 << 31) - 1)
	// 32bit 序列号最大值
	maxSequence = int64((1 << 32) - 1)
	// 每日序列 Key 的过期时间，留出一点缓冲
	idKeyTTL = 48 * time.Hour
)

func NewRedisIdWorker(client *redis.Client) *RedisIdWorker {
	return &RedisIdWorker{client: client}
}

// NextId 生成全局唯一ID
func (w *RedisIdWorker) NextId(ctx context.Context, keyPrefix string) (int64, error) {
	now := time.Now()
	timestamp := now.Unix() - beginTimestamp
	if timestamp < 0 {
		return 0, fmt.Errorf("timestamp is before beginTimestamp")
	}
	if timestamp > maxTimestamp {
		return 0, fmt.Errorf("timestamp overflow: %d exceeds %d", timestamp, maxTimestamp)
	}

	// 按天分 Key 自增序列号；Redis 单线程执行 INCR，跨实例也是原子的
	date := now.Format("2006:01:02")
	key := fmt.Sprintf("icr:%s:%s", keyPrefix, date)
	count, err := w.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// 仅在新 Key 创建时设置过期，避免每次写都刷新 TTL
		ok, err := w.client.Expire(ctx, key, idKeyTTL).Result()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("failed to set expiration for key %s", key)
		}
	}
	if count > maxSequence {
		return 0, fmt.Errorf("sequence overflow: %d exceeds %d", count, maxSequence)
	}

	// 时间戳左移32位，与序列号拼接
	return (timestamp << 32) | count, nil
}
