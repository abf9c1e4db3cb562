package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SetNX 的消费去重
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce 第一次处理返回 true，重复返回 false
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id int) bool {
	key := FormatDedupKey(handler, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.Int("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.Int("id", id),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release 处理失败需要重试时释放去重锁
func (d *Deduper) Release(ctx context.Context, handler string, id int) {
	if err := d.rdb.Del(ctx, FormatDedupKey(handler, id)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("handler", handler),
			zap.Int("id", id),
			zap.Error(err),
		)
	}
}

func FormatDedupKey(handler string, id int) string {
	return fmt.Sprintf("dedup:%s:%d", handler, id)
}
