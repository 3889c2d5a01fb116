package ratelimit

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/metrics"
	"github.com/lexybrain/backend/pkg/logger"
)

// Limiter decides whether one more request is admitted for a key. Keys are
// per-caller; the backend may be process-local or shared.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Middleware enforces the limiter per caller, keyed by the authenticated user
// when present and the client IP otherwise.
func Middleware(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if userID := c.Get("X-User-ID"); userID != "" {
			key = userID
		}

		if !limiter.Allow(c.UserContext(), key) {
			metrics.RateLimitRejections.WithLabelValues(c.Route().Path).Inc()
			logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"kind":    "rate_limited",
					"message": "Rate limit exceeded. Please try again later.",
				},
			})
		}

		return c.Next()
	}
}
