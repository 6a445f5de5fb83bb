package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names exchanged with the server.
const (
	EventNewMessage     = "newMessage"
	EventRoomsChanged   = "roomsChanged"
	EventRoomError      = "roomError"
	EventRoomSubscribed = "roomSubscribed"
	EventError          = "error"

	eventSubscribeRoom   = "subscribeRoom"
	eventUnsubscribeRoom = "unsubscribeRoom"
)

const writeWait = 5 * time.Second

var ErrStreamClosed = errors.New("stream closed")

// Event is one frame received from the server.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message decodes the payload of a newMessage event.
func (e Event) Message() (*Message, error) {
	var msg Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RoomID reads the roomId field carried by roomSubscribed and roomError.
func (e Event) RoomID() string {
	var payload struct {
		RoomID string `json:"roomId"`
	}
	_ = json.Unmarshal(e.Data, &payload)
	return payload.RoomID
}

// Code reads the error field carried by roomError and error.
func (e Event) Code() string {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(e.Data, &payload)
	return payload.Error
}

// Stream is a live websocket connection. Events are read by one goroutine
// and handed out on Events until the connection ends.
type Stream struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}

	writeMu sync.Mutex

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	err       error
}

// Dial opens a stream to wsURL, sending token as a bearer credential.
func Dial(ctx context.Context, wsURL, token string) (*Stream, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode}
			if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil || apiErr.Code == "" {
				apiErr.Code = http.StatusText(resp.StatusCode)
			}
			return nil, apiErr
		}
		return nil, err
	}

	s := &Stream{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// DialClient opens a stream to the server c talks to, with c's token.
func DialClient(ctx context.Context, c *Client) (*Stream, error) {
	return Dial(ctx, c.StreamURL(), c.Token())
}

// Events is closed when the connection ends; Err then reports why.
func (s *Stream) Events() <-chan Event {
	return s.events
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Subscribe(roomID string) error {
	return s.write(eventSubscribeRoom, map[string]string{"roomId": roomID})
}

func (s *Stream) Unsubscribe(roomID string) error {
	return s.write(eventUnsubscribeRoom, map[string]string{"roomId": roomID})
}

// Close sends a normal closure and tears the connection down.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(Event{Name: event, Data: data})
}

func (s *Stream) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.mu.Lock()
			if s.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = ErrStreamClosed
			} else {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			s.mu.Lock()
			s.err = ErrStreamClosed
			s.mu.Unlock()
			return
		}
	}
}
