package authapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoginLimiter is a fixed-window counter per client address: at most
// max attempts per window, tracked with INCR + EXPIRE.
type RedisLoginLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	max       int
	window    time.Duration
	timeout   time.Duration
}

// NewRedisLoginLimiter builds a limiter over an existing Redis client.
func NewRedisLoginLimiter(client redis.UniversalClient, max int, window time.Duration) (*RedisLoginLimiter, error) {
	if client == nil {
		return nil, errors.New("authapi: nil redis client")
	}
	if max <= 0 {
		max = DefaultConfig().LoginMax
	}
	if window <= 0 {
		window = DefaultConfig().LoginWindow
	}
	return &RedisLoginLimiter{
		client:    client,
		keyPrefix: "login_attempts:",
		max:       max,
		window:    window,
		timeout:   3 * time.Second,
	}, nil
}

// Allow counts this attempt and reports whether it is under the limit.
// Every call increments, so hammering a locked-out address keeps the
// window fresh.
func (l *RedisLoginLimiter) Allow(ctx context.Context, addr string) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	key := l.keyPrefix + addr

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("authapi: limiter incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("authapi: limiter expire: %w", err)
		}
	}
	if count <= int64(l.max) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}
