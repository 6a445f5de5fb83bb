package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"room_chat/internal/middleware"
	"room_chat/internal/service"
	"room_chat/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		log:            log,
	}
}

func (h *MessageHandler) List(c *gin.Context) {
	// unparsable limits fall back to the default
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, err := h.messageService.ListRecent(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type SendMessageRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), middleware.UserID(c), req.RoomID, req.Text)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}
