package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"room_chat/internal/middleware"
	"room_chat/internal/service"
	"room_chat/pkg/logger"
)

type RoomHandler struct {
	roomService service.RoomService
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		log:         log,
	}
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	room, err := h.roomService.CreateGroup(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

type OpenDirectRequest struct {
	OtherUID string `json:"otherUid"`
}

func (h *RoomHandler) OpenDirect(c *gin.Context) {
	var req OpenDirectRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	room, err := h.roomService.OpenDirect(c.Request.Context(), middleware.UserID(c), req.OtherUID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) ListMine(c *gin.Context) {
	rooms, err := h.roomService.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// RenameRoomRequest accepts roomName as an alias of name.
type RenameRoomRequest struct {
	Name     *string `json:"name"`
	RoomName *string `json:"roomName"`
}

func (r RenameRoomRequest) value() string {
	switch {
	case r.Name != nil:
		return *r.Name
	case r.RoomName != nil:
		return *r.RoomName
	default:
		return ""
	}
}

func (h *RoomHandler) Rename(c *gin.Context) {
	var req RenameRoomRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	room, err := h.roomService.Rename(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.value())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, room)
}
