package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// LimitSends applies the per-user send limit. It must run after
// RequireAuth. When the limiter backend is unavailable requests pass.
func (m *RateLimitMiddleware) LimitSends() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || m.rateLimitService == nil {
			c.Next()
			return
		}

		result, err := m.rateLimitService.AllowSend(c.Request.Context(), UserID(c))
		if err != nil {
			m.log.Warn("Rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			}
			_ = c.Error(apperrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
