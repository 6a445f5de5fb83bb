package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"room_chat/internal/metrics"
	"room_chat/pkg/logger"
)

// RequestLogger writes one structured line per request and reports it to
// rec. Query strings are left out since they may carry credentials.
func RequestLogger(log logger.Logger, rec metrics.Recorder) gin.HandlerFunc {
	if rec == nil {
		rec = metrics.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		rec.RecordHTTPRequest(c.Request.Method, route, statusCode, latency)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", statusCode,
			"latency", latency,
			"client_ip", c.ClientIP(),
		}
		if userID := UserID(c); userID != "" {
			fields = append(fields, "user_id", userID)
		}

		switch {
		case statusCode >= 500:
			log.Error("HTTP request", fields...)
		case statusCode >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
