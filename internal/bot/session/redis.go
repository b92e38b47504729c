package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "todolist:bot:session:"

// RedisStorage 将状态以 JSON 存入 Redis，带过期时间。
type RedisStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStorage 创建 Redis 存储，ttl <= 0 表示不过期。
func NewRedisStorage(rdb *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{rdb: rdb, ttl: ttl}
}

func (r *RedisStorage) Get(ctx context.Context, chatID int64) (State, error) {
	data, err := r.rdb.Get(ctx, redisKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	return Decode(data)
}

func (r *RedisStorage) Set(ctx context.Context, chatID int64, state State) error {
	if _, idle := state.(Idle); idle {
		return r.Delete(ctx, chatID)
	}
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKey(chatID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, chatID int64) error {
	if err := r.rdb.Del(ctx, redisKey(chatID)).Err(); err != nil {
		return fmt.Errorf("session del: %w", err)
	}
	return nil
}

func redisKey(chatID int64) string {
	return redisKeyPrefix + strconv.FormatInt(chatID, 10)
}
