package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"room_chat/internal/config"
	"room_chat/internal/metrics"
	"room_chat/internal/middleware"
	"room_chat/internal/realtime"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type WebSocketHandler struct {
	identityService service.IdentityService
	members         realtime.MembershipChecker
	bus             *realtime.Bus
	upgrader        websocket.Upgrader
	opts            realtime.Options
	log             logger.Logger
	metrics         metrics.Recorder

	// sessions are bound to ctx rather than to their request so that
	// Shutdown can close hijacked connections.
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

func NewWebSocketHandler(identityService service.IdentityService, members realtime.MembershipChecker, bus *realtime.Bus, cfg *config.Config, log logger.Logger, rec metrics.Recorder) *WebSocketHandler {
	ctx, cancel := context.WithCancel(context.Background())

	opts := realtime.Options{
		SendBuffer:      cfg.WebSocket.SendBuffer,
		EventsPerSecond: cfg.WebSocket.EventsPerSecond,
		EventBurst:      cfg.WebSocket.EventBurst,
		PingInterval:    cfg.WebSocket.PingInterval,
		PongWait:        cfg.WebSocket.PongWait,
		WriteWait:       cfg.WebSocket.WriteWait,
		MaxFrameBytes:   cfg.WebSocket.MaxFrameBytes,
		CheckTimeout:    cfg.Database.QueryTimeout,
	}

	allowedOrigin := cfg.CORS.AllowedOrigin
	return &WebSocketHandler{
		identityService: identityService,
		members:         members,
		bus:             bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no Origin
				return origin == "" || allowedOrigin == "*" || strings.EqualFold(origin, allowedOrigin)
			},
		},
		opts:    opts,
		log:     log,
		metrics: rec,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// credential reads the bearer token, falling back to the token query
// parameter for browsers, which cannot set headers on websocket requests.
func credential(r *http.Request) string {
	if token, ok := middleware.BearerToken(r); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	userID, err := h.identityService.Authenticate(c.Request.Context(), credential(c.Request))
	if err != nil {
		h.log.Debug("Rejected websocket handshake", "client_ip", c.ClientIP(), "error", err)
		apiErr := apperrors.FromError(err)
		c.AbortWithStatusJSON(apiErr.Code, apiErr)
		return
	}

	if !h.track() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting_down"})
		return
	}
	defer h.sessions.Done()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "user_id", userID, "error", err)
		return
	}

	session := realtime.NewSession(conn, userID, h.bus, h.members, h.opts, h.log, h.metrics)
	session.Run(h.ctx)
}

func (h *WebSocketHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions.Add(1)
	return true
}

// Shutdown closes every open session and waits for them to finish or for
// ctx to expire.
func (h *WebSocketHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
