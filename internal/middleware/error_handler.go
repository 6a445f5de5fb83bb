package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Server-side failures are logged with their cause and reported generically.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		apiErr := apperrors.FromError(err)
		if apiErr.Code >= http.StatusInternalServerError {
			log.Error("Request failed", "path", c.FullPath(), "error", err)
		}

		c.JSON(apiErr.Code, apiErr)
	}
}
