package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

type AuthMiddleware struct {
	identityService service.IdentityService
	log             logger.Logger
}

func NewAuthMiddleware(identityService service.IdentityService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		identityService: identityService,
		log:             log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.Request)
		if !ok {
			abortUnauthenticated(c)
			return
		}

		userID, err := m.identityService.Authenticate(c.Request.Context(), token)
		if err != nil {
			if apperrors.CodeFromError(err) != apperrors.CodeUnauthenticated {
				// bootstrap failed after a valid token
				_ = c.Error(err)
				c.Abort()
				return
			}
			m.log.Debug("Authentication failed", "path", c.FullPath())
			abortUnauthenticated(c)
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.FromError(apperrors.ErrUnauthenticated))
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// UserID returns the id set by RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
