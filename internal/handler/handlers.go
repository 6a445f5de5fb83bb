package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"room_chat/internal/config"
	"room_chat/internal/metrics"
	"room_chat/internal/realtime"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	User      *UserHandler
	Room      *RoomHandler
	Message   *MessageHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, bus *realtime.Bus, cfg *config.Config, log logger.Logger, rec metrics.Recorder) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(),
		User:      NewUserHandler(services.User, log),
		Room:      NewRoomHandler(services.Room, log),
		Message:   NewMessageHandler(services.Message, log),
		WebSocket: NewWebSocketHandler(services.Identity, services.Room, bus, cfg, log, rec),
	}
}

// bindJSON decodes the request body into req. An empty body leaves req
// untouched.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Invalid("body", "malformed JSON")
	}
	return nil
}
