package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 带过期时间的 Redis 计数器，用于消费重试次数和固定窗口限流
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 计数加一并返回新值，第一次计数时设置过期
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get 返回当前计数
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Reset 清除计数
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// Allow 固定窗口限流：窗口内计数不超过 limit 返回 true
func (r *RetryCounter) Allow(ctx context.Context, key string, limit int64) (bool, error) {
	count, err := r.IncrementAndGet(ctx, key)
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

func FormatRetryKey(handler string, id int) string {
	return fmt.Sprintf("retry:%s:%d", handler, id)
}

func FormatRateLimitKey(scope string, userID int) string {
	return fmt.Sprintf("ratelimit:%s:%d", scope, userID)
}
