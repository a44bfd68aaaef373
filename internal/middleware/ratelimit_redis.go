package middleware

import (
	"fmt"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRateLimiter is a fixed-window counter shared by every replica.
type RedisRateLimiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	log    *zap.Logger
}

func NewRedisRateLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window, log: logger}
}

// ByUser keys the window on the authenticated caller. It must run after JWT.
func (r *RedisRateLimiter) ByUser() fiber.Handler {
	return r.ByKey(UserID)
}

func (r *RedisRateLimiter) ByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := keyFunc(c)
		if key == "" {
			return c.Next()
		}
		ctx := c.UserContext()
		redisKey := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)

		// NX leaves a running window alone but re-arms a key that lost its TTL
		var incr *redis.IntCmd
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, redisKey)
			pipe.ExpireNX(ctx, redisKey, r.window)
			return nil
		})
		if err != nil {
			// fail open
			r.log.Warn("rate limiter unavailable", zap.String("key", redisKey), zap.Error(err))
			return c.Next()
		}
		count := incr.Val()
		if count > r.limit {
			return apperr.RateLimited("rate limit exceeded")
		}
		return c.Next()
	}
}
