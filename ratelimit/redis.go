package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "realtime:rl:"

// RedisWindow is a fixed-window limiter whose counters live in Redis, so
// every node enforcing the same prefix shares one budget per origin. The
// window opens on the first INCR of a key and ends when its TTL fires.
type RedisWindow struct {
	cfg    Config
	client *redis.Client
	prefix string
}

// NewRedisWindow wraps an existing client. An empty prefix selects
// "realtime:rl:".
func NewRedisWindow(client *redis.Client, cfg Config, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisWindow{cfg: cfg.withDefaults(), client: client, prefix: prefix}
}

// Admit implements Limiter.
func (l *RedisWindow) Admit(ctx context.Context, origin string) (bool, error) {
	key := l.key(origin)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %q: %w", key, err)
	}
	if n == 1 {
		// First attempt in the window; the TTL defines the window end.
		if err := l.client.PExpire(ctx, key, l.cfg.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: pexpire %q: %w", key, err)
		}
	}
	return n <= int64(l.cfg.MaxAttempts), nil
}

func (l *RedisWindow) key(origin string) string {
	return l.prefix + origin
}

var _ Limiter = (*RedisWindow)(nil)
