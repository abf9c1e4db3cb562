package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/internal/model"
)

// BriefCache 每个用户一份仪表盘缓存
type BriefCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBriefCache(rdb *redis.Client, ttl time.Duration) *BriefCache {
	return &BriefCache{rdb: rdb, ttl: ttl}
}

func briefKey(userID int) string {
	return fmt.Sprintf("brief:%d", userID)
}

// Get 未命中返回 nil；时段不一致视为未命中
func (c *BriefCache) Get(ctx context.Context, userID int, timeOfDay string) (*model.Dashboard, error) {
	raw, err := c.rdb.Get(ctx, briefKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read brief cache: %w", err)
	}
	var d model.Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode brief cache: %w", err)
	}
	if d.TimeOfDay != timeOfDay {
		return nil, nil
	}
	return &d, nil
}

func (c *BriefCache) Set(ctx context.Context, userID int, d *model.Dashboard) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode brief: %w", err)
	}
	if err := c.rdb.Set(ctx, briefKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write brief cache: %w", err)
	}
	return nil
}

func (c *BriefCache) Invalidate(ctx context.Context, userID int) error {
	return c.rdb.Del(ctx, briefKey(userID)).Err()
}
