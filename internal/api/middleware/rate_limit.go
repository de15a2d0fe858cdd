package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"engagement-service/internal/models"
	"engagement-service/pkg/logger"
	"engagement-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter decides whether one more request under key fits the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
	log     *logger.Logger
}

// NewRateLimitMiddleware wraps limiter. A nil limiter disables limiting.
func NewRateLimitMiddleware(limiter RateLimiter, log *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		log:     log,
	}
}

// RateLimit keys on the authenticated user when there is one and on the
// client IP otherwise. A limiter failure lets the request through.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil || requests <= 0 {
			c.Next()
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		key := fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), endpoint)
		if userID, exists := c.Get(ContextUserID); exists {
			key = fmt.Sprintf("rate_limit:%v:%s", userID, endpoint)
		}

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			rm.log.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Code:    response.ErrCodeRateLimited,
				Message: response.Message(response.ErrCodeRateLimited),
				Details: fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window),
			})
			return
		}

		c.Next()
	}
}
