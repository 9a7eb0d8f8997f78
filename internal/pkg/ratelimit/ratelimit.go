// Package ratelimit shares an upstream call budget across processes through
// a Redis token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/metrics"
	"github.com/redis/go-redis/v9"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// DefaultKey is the bucket shared by every coinwatch instance calling CoinGecko
const DefaultKey = "coinwatch:ratelimit:coingecko"

// KEYS[1] bucket; ARGV rate (tokens/s), burst, now (ms), requested.
// Returns {allowed, wait_ms, tokens_left}.
const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1]) or burst
local ts = tonumber(data[2]) or now

local elapsed = math.max(0, now - ts)
tokens = math.min(burst, tokens + (elapsed * rate) / 1000.0)

local wait_ms = 0
local allowed = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 2000.0))

return {allowed, wait_ms, tostring(tokens)}
`

// RateLimiter blocks callers until the shared bucket has a token
type RateLimiter struct {
	rdb    *redis.Client
	key    string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
}

// NewRedisRateLimiter creates a limiter. A non-positive rate or burst
// disables limiting.
func NewRedisRateLimiter(rdb *redis.Client, logger *slog.Logger, key string, rate, burst float64) *RateLimiter {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RateLimiter{
		rdb:    rdb,
		key:    key,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Acquire waits for one token or until ctx ends
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, err := r.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int63n(int64(jitterMax)))
		r.logger.DebugContext(ctx, "rate limited, waiting", "key", r.key, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			metrics.RateLimitTimeoutTotal.Inc()
			return ErrRateLimitTimeout
		case <-timer.C:
		}
	}
}

func (r *RateLimiter) tryAcquire(ctx context.Context) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := r.script.Run(ctx, r.rdb, []string{r.key}, r.rate, r.burst, now, 1).Result()
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
