package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrNoActiveRoom = errors.New("no active room")

// RoomError is a subscription rejected by the server.
type RoomError struct {
	RoomID string
	Code   string
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("room %s: %s", e.RoomID, e.Code)
}

type ConversationOptions struct {
	// HistoryLimit is passed to ListMessages when a room is opened.
	HistoryLimit int
	// OnChange receives the active room's timeline after every change.
	OnChange func([]Message)
	// OnRoomsChanged fires when the server signals the room list moved.
	OnRoomsChanged func()
}

// Conversation keeps the timeline of one active room in sync from both the
// REST responses and the live stream. Run must be pumping the stream for
// Open to complete.
type Conversation struct {
	client   *Client
	stream   *Stream
	timeline *Timeline
	opts     ConversationOptions

	mu      sync.Mutex
	roomID  string
	pending map[string]chan error
}

func NewConversation(client *Client, stream *Stream, opts ConversationOptions) *Conversation {
	return &Conversation{
		client:   client,
		stream:   stream,
		timeline: NewTimeline(opts.OnChange),
		opts:     opts,
		pending:  make(map[string]chan error),
	}
}

func (c *Conversation) Timeline() *Timeline {
	return c.timeline
}

func (c *Conversation) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Open makes roomID the active room. It subscribes before loading history so
// that nothing sent in between is missed; the timeline merges any overlap.
func (c *Conversation) Open(ctx context.Context, roomID string) error {
	ack := make(chan error, 1)

	c.mu.Lock()
	previous := c.roomID
	c.roomID = roomID
	c.pending[roomID] = ack
	c.mu.Unlock()

	c.timeline.Reset()
	if previous != "" && previous != roomID {
		if err := c.stream.Unsubscribe(previous); err != nil {
			return err
		}
	}
	if err := c.stream.Subscribe(roomID); err != nil {
		c.clearPending(roomID)
		return err
	}

	select {
	case err := <-ack:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		c.clearPending(roomID)
		return ctx.Err()
	}

	history, err := c.client.ListMessages(ctx, roomID, c.opts.HistoryLimit)
	if err != nil {
		return err
	}
	if c.RoomID() == roomID {
		c.timeline.Load(history)
	}
	return nil
}

// Send posts text to the active room and merges the response right away.
// The broadcast of the same message is dropped when it arrives.
func (c *Conversation) Send(ctx context.Context, text string) (*Message, error) {
	roomID := c.RoomID()
	if roomID == "" {
		return nil, ErrNoActiveRoom
	}

	msg, err := c.client.Send(ctx, roomID, text)
	if err != nil {
		return nil, err
	}
	if c.RoomID() == roomID {
		c.timeline.Insert(*msg)
	}
	return msg, nil
}

// Run applies stream events until ctx ends or the stream closes.
func (c *Conversation) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.stream.Events():
			if !ok {
				return c.stream.Err()
			}
			c.handle(ev)
		}
	}
}

func (c *Conversation) handle(ev Event) {
	switch ev.Name {
	case EventNewMessage:
		msg, err := ev.Message()
		if err != nil {
			return
		}
		if msg.RoomID == c.RoomID() {
			c.timeline.Insert(*msg)
		}
	case EventRoomsChanged:
		if c.opts.OnRoomsChanged != nil {
			c.opts.OnRoomsChanged()
		}
	case EventRoomSubscribed:
		c.resolve(ev.RoomID(), nil)
	case EventRoomError:
		roomID := ev.RoomID()
		c.resolve(roomID, &RoomError{RoomID: roomID, Code: ev.Code()})
	}
}

func (c *Conversation) resolve(roomID string, err error) {
	c.mu.Lock()
	ack, ok := c.pending[roomID]
	delete(c.pending, roomID)
	c.mu.Unlock()

	if ok {
		ack <- err
	}
}

func (c *Conversation) clearPending(roomID string) {
	c.mu.Lock()
	delete(c.pending, roomID)
	c.mu.Unlock()
}
