package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

// RateLimitMiddleware limits requests per key in fixed windows. When the
// limiter itself fails the request is let through and the error logged.
func RateLimitMiddleware(rateLimiter *service.RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "route:" + keyFunc(c)

		result, err := rateLimiter.Attempt(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			seconds := int((result.RetryAfter + time.Second - 1) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Message: "Too Many Attempts.",
			})
			return
		}

		c.Next()
	}
}

// ClientIPKey keys the limiter by client address and route
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP() + "|" + c.FullPath()
}
