package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"room_chat/internal/domain"
	"room_chat/internal/metrics"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// CodeInvalidEvent is sent for frames that cannot be decoded or name an
// unknown event.
const CodeInvalidEvent = "invalid_event"

// MembershipChecker gates room subscriptions.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

type Options struct {
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxFrameBytes   int64
	CheckTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:      64,
		EventsPerSecond: 10,
		EventBurst:      20,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxFrameBytes:   8192,
		CheckTimeout:    5 * time.Second,
	}
}

// Session is one authenticated websocket connection. It is created after
// the handshake succeeded, so it always has a user.
type Session struct {
	id      string
	userID  string
	conn    *websocket.Conn
	bus     *Bus
	members MembershipChecker
	opts    Options
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	log     logger.Logger
	metrics metrics.Recorder
}

func NewSession(conn *websocket.Conn, userID string, bus *Bus, members MembershipChecker, opts Options, log logger.Logger, rec metrics.Recorder) *Session {
	if rec == nil {
		rec = metrics.Nop()
	}
	id := uuid.New().String()
	return &Session{
		id:      id,
		userID:  userID,
		conn:    conn,
		bus:     bus,
		members: members,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.EventBurst),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		log:     log.With("session_id", id, "user_id", userID),
		metrics: rec,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

// Deliver queues frame for the writer without blocking.
func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Drop closes the connection. The pumps notice and the session ends.
func (s *Session) Drop() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Run serves the connection until the peer leaves, the session is dropped
// or ctx is cancelled. It always leaves the bus clean.
func (s *Session) Run(ctx context.Context) {
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	s.bus.Attach(s)
	s.log.Info("Session opened")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx)
	}()

	s.readPump(ctx)

	s.bus.Detach(s)
	s.Drop()
	<-writerDone
	s.log.Info("Session closed")
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.opts.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("Websocket read failed", "error", err)
			}
			return
		}

		if !s.limiter.Allow() {
			s.reply(domain.EventError, domain.ErrorPayload{Error: apperrors.CodeRateLimited})
			continue
		}

		s.handleFrame(ctx, data)
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.reply(domain.EventError, domain.ErrorPayload{Error: CodeInvalidEvent})
		return
	}

	switch frame.Event {
	case domain.EventSubscribeRoom, domain.EventUnsubscribeRoom:
	default:
		s.reply(domain.EventError, domain.ErrorPayload{Error: CodeInvalidEvent})
		return
	}

	var payload domain.RoomPayload
	if len(frame.Data) == 0 || json.Unmarshal(frame.Data, &payload) != nil {
		s.reply(domain.EventError, domain.ErrorPayload{Error: CodeInvalidEvent})
		return
	}
	roomID := strings.TrimSpace(payload.RoomID)
	if roomID == "" {
		s.reply(domain.EventError, domain.ErrorPayload{Error: CodeInvalidEvent})
		return
	}

	if frame.Event == domain.EventUnsubscribeRoom {
		s.bus.Unsubscribe(s, roomID)
		return
	}
	s.subscribe(ctx, roomID)
}

func (s *Session) subscribe(ctx context.Context, roomID string) {
	checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
	defer cancel()

	ok, err := s.members.IsMember(checkCtx, roomID, s.userID)
	if err != nil {
		s.log.Error("Failed to check membership", "room_id", roomID, "error", err)
		s.reply(domain.EventRoomError, domain.RoomErrorPayload{RoomID: roomID, Error: apperrors.CodeFromError(err)})
		return
	}
	if !ok {
		s.reply(domain.EventRoomError, domain.RoomErrorPayload{RoomID: roomID, Error: apperrors.CodeNotAMember})
		return
	}

	if !s.bus.Subscribe(s, roomID) {
		return
	}
	s.reply(domain.EventRoomSubscribed, domain.RoomPayload{RoomID: roomID})
}

// reply sends a frame to this session only.
func (s *Session) reply(event string, payload any) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		s.log.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	if !s.Deliver(frame) {
		s.log.Warn("Outbound buffer full, closing session")
		s.metrics.RecordDrop()
		s.bus.Detach(s)
		s.Drop()
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Drop()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Drop()
				return
			}
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.log.Debug("Failed to send close frame", "error", err)
	}
	s.Drop()
}
