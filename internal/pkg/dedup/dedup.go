// Package dedup 记录已处理的 update ID，防止同一条消息被重复投递时再次执行。
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "todolist:bot:update:"

// UpdateGuard 基于 Redis 的 update 去重器。
type UpdateGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewUpdateGuard 创建去重器，ttl 为记录保留时间。
func NewUpdateGuard(rdb *redis.Client, ttl time.Duration) *UpdateGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &UpdateGuard{rdb: rdb, ttl: ttl}
}

// Seen 判断 updateID 是否已处理过。
func (g *UpdateGuard) Seen(ctx context.Context, updateID int64) (bool, error) {
	if g == nil || g.rdb == nil {
		return false, nil
	}
	err := g.rdb.Get(ctx, key(updateID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup get: %w", err)
	}
	return true, nil
}

// Mark 记录 updateID 已处理。
func (g *UpdateGuard) Mark(ctx context.Context, updateID int64) error {
	if g == nil || g.rdb == nil {
		return nil
	}
	if err := g.rdb.Set(ctx, key(updateID), "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}

func key(updateID int64) string {
	return keyPrefix + strconv.FormatInt(updateID, 10)
}
