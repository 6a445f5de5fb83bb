package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"room_chat/internal/config"
	"room_chat/internal/metrics"
	"room_chat/internal/middleware"
	"room_chat/pkg/logger"
)

// NewRouter wires every route. metricsHandler may be nil to leave /metrics
// out.
func NewRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	metricsHandler http.Handler,
	cfg *config.Config,
	log logger.Logger,
	rec metrics.Recorder,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigin))
	router.Use(middleware.RequestLogger(log, rec))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// authenticates during the handshake itself
	router.GET("/ws", handlers.WebSocket.Connect)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	{
		v1.GET("/me", handlers.User.GetMe)
		v1.GET("/me/rooms", handlers.Room.ListMine)

		rooms := v1.Group("/rooms")
		{
			rooms.POST("", handlers.Room.Create)
			rooms.POST("/dm", handlers.Room.OpenDirect)
			rooms.GET("/:id/messages", handlers.Message.List)
			rooms.PATCH("/:id/name", handlers.Room.Rename)
		}

		v1.POST("/messages", rateLimitMiddleware.LimitSends(), handlers.Message.Send)
		v1.GET("/users/search", handlers.User.Search)
	}

	return router
}
