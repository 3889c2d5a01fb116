package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/pkg/logger"
)

// RedisLimiter is a fixed-window counter shared across instances. The window
// key carries the minute stamp so stale windows expire on their own. Backend
// failures admit the request; the limiter protects capacity, it is not an
// entitlement check.
type RedisLimiter struct {
	client            *redis.Client
	requestsPerMinute int
}

func NewRedisLimiter(client *redis.Client, requestsPerMinute int) *RedisLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RedisLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	window := time.Now().UTC().Format("200601021504")
	redisKey := fmt.Sprintf("ratelimit:%s:%s", key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("Rate limit backend unavailable, admitting request",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	return incr.Val() <= int64(l.requestsPerMinute)
}
