package middleware

import (
	"time"

	"engagement-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LogApi writes one structured line per request.
func LogApi(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"clientIP", c.ClientIP(),
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"userAgent", c.Request.UserAgent(),
			"latency", time.Since(start),
			"proto", c.Request.Proto,
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			kv = append(kv, "error", errs)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("API request", kv...)
		case status >= 400:
			log.Warn("API request", kv...)
		default:
			log.Debug("API request", kv...)
		}
	}
}
