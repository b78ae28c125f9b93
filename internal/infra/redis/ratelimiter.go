package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/plusserver-sms/plusserver"
)

const (
	defaultLimitPerSec int64 = 10
	keyPrefix                = "ratelimit"
	window                   = time.Second
	minWait                  = 5 * time.Millisecond
)

// takeScript counts a call in the window at KEYS[1]. It returns 0 when the
// call fits under ARGV[1], otherwise the window's remaining lifetime in ms.
var takeScript = goredis.NewScript(`
local calls = redis.call("INCR", KEYS[1])
if calls == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if calls <= tonumber(ARGV[1]) then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return tonumber(ARGV[2])
end
return ttl
`)

var _ plusserver.Limiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps gateway calls per second across every worker that
// shares the Redis instance and the limit key.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), nil, nil)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow takes one call from the current window of key, if any is left.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	wait, err := r.take(ctx, key)
	return wait == 0, err
}

// Wait blocks until a call for key fits in a window or ctx is done.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait, err := r.take(ctx, key)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// take returns zero when the call was counted, or how long until the
// window of key reopens.
func (r *RedisRateLimiter) take(ctx context.Context, key string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return 0, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now().UTC()
	windowKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, now.Unix())
	ttlMillis, err := takeScript.Run(ctx, r.client, []string{windowKey}, r.limitPerSec, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rate limit for %q: %w", key, err)
	}
	if ttlMillis == 0 {
		return 0, nil
	}

	// The window is keyed by wall-clock second, so it may close before the
	// Redis key expires.
	wait := now.Truncate(window).Add(window).Sub(now)
	if ttl := time.Duration(ttlMillis) * time.Millisecond; ttl < wait {
		wait = ttl
	}
	if wait < minWait {
		wait = minWait
	}
	return wait, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
