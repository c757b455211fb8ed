// Package ratelimit throttles chat senders with a fixed window counter in Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "chat:rl:"

// Limiter allows at most limit messages per window for each network identity.
type Limiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	logger *zap.Logger
}

// New creates a limiter. A nil rdb or a non-positive limit disables limiting.
func New(rdb redis.Cmdable, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Key returns the Redis key counting identity's messages.
func Key(identity string) string { return keyPrefix + identity }

// Allow counts one message for identity and reports whether it is within the limit.
// Redis failures let the message through.
func (l *Limiter) Allow(ctx context.Context, identity string) bool {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true
	}
	key := Key(identity)
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// opens the window with its TTL; INCR keeps the TTL
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		l.logger.Warn("rate limit count failed", zap.String("key", key), zap.Error(err))
		return true
	}
	return incr.Val() <= int64(l.limit)
}
