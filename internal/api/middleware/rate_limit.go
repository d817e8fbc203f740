package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"messenger-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by services.RedisService
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// RateLimitMiddleware passes everything through when limiter is nil. A limiter
// error also lets the request through so a Redis outage does not take chat down.
type RateLimitMiddleware struct {
	limiter RateLimiter
	logger  *slog.Logger
}

func NewRateLimitMiddleware(limiter RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// RateLimitIP limits public routes per client IP and path
func (rm *RateLimitMiddleware) RateLimitIP(requests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.Request.URL.Path)
		rm.check(c, key, requests, window, "Too many requests")
	}
}

// WebSocketRateLimit limits handshakes per user; it must run after RequireWSAuth
func (rm *RateLimitMiddleware) WebSocketRateLimit(requests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString(ContextUsername)
		if username == "" {
			response.Unauthorized(c, "unauthenticated")
			return
		}
		key := fmt.Sprintf("rate_limit:websocket:%s", username)
		rm.check(c, key, requests, window, "WebSocket connection rate limit exceeded")
	}
}

func (rm *RateLimitMiddleware) check(c *gin.Context, key string, requests int64, window time.Duration, details string) {
	if rm.limiter == nil || requests <= 0 {
		c.Next()
		return
	}

	allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
	if err != nil {
		rm.logger.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}
	if !allowed {
		response.Error(c, http.StatusTooManyRequests, response.MsgRateLimited,
			fmt.Sprintf("%s. Limit: %d per %v", details, requests, window))
		return
	}

	c.Next()
}
