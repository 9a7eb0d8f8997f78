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

func TestRateLimiter_AcquireSpendsToken(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:basic", 10, 2)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	tokensStr, err := rdb.HGet(context.Background(), limiter.key, "tokens").Result()
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
}

func TestRateLimiter_AcquireWaitsForRefill(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:block", 10, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("blocked acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected to wait for refill, elapsed=%v", elapsed)
	}
}

func TestRateLimiter_ContextTimeout(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:timeout", 1, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout, got %v", err)
	}
}

func TestRateLimiter_BurstUnderConcurrency(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:concurrent", 5, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(ctx); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 5 {
		t.Fatalf("expected 5 successes within the burst, got %d", success)
	}
}

func TestRateLimiter_DisabledOrNil(t *testing.T) {
	var nilLimiter *RateLimiter
	if err := nilLimiter.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}

	off := NewRedisRateLimiter(nil, nil, "", 0, 0)
	if err := off.Acquire(context.Background()); err != nil {
		t.Fatalf("disabled limiter: %v", err)
	}
	if off.key != DefaultKey {
		t.Errorf("expected default key, got %q", off.key)
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
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
