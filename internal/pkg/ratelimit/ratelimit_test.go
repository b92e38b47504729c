package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSendLimiter_GlobalBucketConsumesTokens(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSendLimiter(rdb, "test:send", Bucket{Rate: 10, Burst: 2}, Bucket{})
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("wait: %v", err)
	}

	tokensStr, err := rdb.HGet(context.Background(), "test:send:global", "tokens").Result()
	if err != nil {
		t.Fatalf("hget tokens: %v", err)
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		t.Fatalf("parse tokens: %v", err)
	}
	if tokens > 1.1 {
		t.Fatalf("expected tokens to decrease, got %.2f", tokens)
	}
	if rdb.Exists(context.Background(), "test:send:chat:1").Val() != 0 {
		t.Fatalf("disabled per-chat bucket must not touch redis")
	}
}

func TestSendLimiter_PerChatBucketIsolatesChats(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSendLimiter(rdb, "test:send", Bucket{}, Bucket{Rate: 1, Burst: 1})
	if err := limiter.Wait(context.Background(), 100); err != nil {
		t.Fatalf("first chat: %v", err)
	}

	// 另一个会话有自己的桶，不受影响
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, 200); err != nil {
		t.Fatalf("second chat should not wait: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := limiter.Wait(ctx2, 100); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout for exhausted chat, got %v", err)
	}
}

func TestSendLimiter_BlocksUntilToken(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSendLimiter(rdb, "test:send", Bucket{Rate: 10, Burst: 1}, Bucket{})
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("warm wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("blocked wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected blocking, elapsed=%v", elapsed)
	}
}

func TestSendLimiter_ConcurrentWait(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSendLimiter(rdb, "test:send", Bucket{Rate: 5, Burst: 5}, Bucket{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			if err := limiter.Wait(ctx, chat); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	if success != 5 {
		t.Fatalf("expected 5 immediate successes, got %d", success)
	}
}

func TestSendLimiter_NilIsNoop(t *testing.T) {
	var limiter *SendLimiter
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}

func TestSendLimiter_InProcessWithoutRedis(t *testing.T) {
	limiter := NewSendLimiter(nil, "", Bucket{Rate: 1, Burst: 1}, Bucket{})
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, 2); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout from drained global bucket, got %v", err)
	}
}

func TestSendLimiter_InProcessPerChat(t *testing.T) {
	limiter := NewSendLimiter(nil, "", Bucket{}, Bucket{Rate: 1, Burst: 1})
	for _, chatID := range []int64{1, 2} {
		if err := limiter.Wait(context.Background(), chatID); err != nil {
			t.Fatalf("chat %d: %v", chatID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, 1); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected chat 1 to be limited, got %v", err)
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
