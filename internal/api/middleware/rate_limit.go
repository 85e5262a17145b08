package middleware

import (
	"log/slog"
	"net/http"

	"inkwell/internal/pkg/metrics"
	"inkwell/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware 按客户端 IP 对敏感端点限流。
//
// 令牌耗尽时返回 429；Redis 访问失败时放行（限流是保护手段，不是可用性依赖）。
func RateLimitMiddleware(limiter *ratelimit.RateLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			if metrics.RateLimitRejectedTotal != nil {
				metrics.RateLimitRejectedTotal.Inc()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
