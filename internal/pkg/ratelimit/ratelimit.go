// Package ratelimit 为机器人发送消息提供基于 Redis 的令牌桶限流。
//
// 一个全局桶限制整体发送速率，另有按聊天 ID 划分的桶限制单个会话的速率。
// 配置了 Redis 时桶状态保存在 Redis，多个 bot 实例共享配额；否则退化为进程内令牌桶。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"todolist/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

tokens = math.min(burst, tokens + (math.max(0, now - ts) * rate) / 1000.0)

local wait_ms = 0
local allowed = tokens >= requested
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms}
`

// Bucket 令牌桶参数，Rate 或 Burst 不大于 0 表示不限流。
type Bucket struct {
	Rate  float64 // token/s
	Burst float64
}

func (b Bucket) disabled() bool {
	return b.Rate <= 0 || b.Burst <= 0
}

// SendLimiter 发送限流器。
type SendLimiter struct {
	rdb     *redis.Client
	prefix  string
	global  Bucket
	perChat Bucket
	script  *redis.Script
	local   *localBuckets // rdb 为 nil 时使用
}

// NewSendLimiter 创建发送限流器。
//
// 参数:
//
//	rdb: Redis 客户端，为 nil 时在进程内限流
//	prefix: 键前缀，为空时使用 "todolist:ratelimit:send"
//	global: 全局桶
//	perChat: 单会话桶
func NewSendLimiter(rdb *redis.Client, prefix string, global, perChat Bucket) *SendLimiter {
	if prefix == "" {
		prefix = "todolist:ratelimit:send"
	}
	l := &SendLimiter{
		rdb:     rdb,
		prefix:  prefix,
		global:  global,
		perChat: perChat,
		script:  redis.NewScript(tokenBucketLua),
	}
	if rdb == nil {
		l.local = newLocalBuckets(global, perChat)
	}
	return l
}

// Wait 阻塞直到全局桶与 chatID 的桶都拿到令牌。
//
// ctx 结束时返回 ErrRateLimitTimeout。
func (l *SendLimiter) Wait(ctx context.Context, chatID int64) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if l.rdb == nil {
		err := l.local.wait(ctx, chatID)
		l.observe(start, err)
		return err
	}
	if err := l.acquire(ctx, l.prefix+":global", l.global); err != nil {
		l.observe(start, err)
		return err
	}
	err := l.acquire(ctx, l.prefix+":chat:"+strconv.FormatInt(chatID, 10), l.perChat)
	l.observe(start, err)
	return err
}

func (l *SendLimiter) observe(start time.Time, err error) {
	metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrRateLimitTimeout) {
		metrics.RateLimitTimeoutTotal.Inc()
	}
}

func (l *SendLimiter) acquire(ctx context.Context, key string, b Bucket) error {
	if b.disabled() {
		return nil
	}
	const jitterMax = 10 * time.Millisecond
	for {
		allowed, waitMs, err := l.tryAcquire(ctx, key, b)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int63n(int64(jitterMax)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrRateLimitTimeout
		case <-timer.C:
		}
	}
}

func (l *SendLimiter) tryAcquire(ctx context.Context, key string, b Bucket) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := l.script.Run(ctx, l.rdb, []string{key}, b.Rate, b.Burst, now, 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, toInt64(values[1]), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

// localBuckets 单进程令牌桶，按聊天 ID 懒创建。
type localBuckets struct {
	global  *rate.Limiter
	perChat Bucket

	mu    sync.Mutex
	chats map[int64]*rate.Limiter
}

func newLocalBuckets(global, perChat Bucket) *localBuckets {
	lb := &localBuckets{perChat: perChat, chats: make(map[int64]*rate.Limiter)}
	if !global.disabled() {
		lb.global = rate.NewLimiter(rate.Limit(global.Rate), int(global.Burst))
	}
	return lb
}

func (lb *localBuckets) chat(chatID int64) *rate.Limiter {
	if lb.perChat.disabled() {
		return nil
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lim, ok := lb.chats[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(lb.perChat.Rate), int(lb.perChat.Burst))
		lb.chats[chatID] = lim
	}
	return lim
}

func (lb *localBuckets) wait(ctx context.Context, chatID int64) error {
	for _, lim := range []*rate.Limiter{lb.global, lb.chat(chatID)} {
		if lim == nil {
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			// ctx 结束，或剩余时间不足以等到令牌
			return ErrRateLimitTimeout
		}
	}
	return nil
}
