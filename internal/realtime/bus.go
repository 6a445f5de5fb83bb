// Package realtime fans committed chat events out to connected websocket
// sessions. Every session listens on its user's personal channel and on any
// room channels it subscribed to.
package realtime

import (
	"encoding/json"
	"sync"

	"room_chat/internal/metrics"
	"room_chat/pkg/logger"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals payload under event. A nil payload yields a frame
// without data.
func EncodeFrame(event string, payload any) ([]byte, error) {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// Subscriber receives frames from the bus. Deliver must not block; it
// returns false when the subscriber cannot keep up, after which the bus
// detaches it and calls Drop.
type Subscriber interface {
	UserID() string
	Deliver(frame []byte) bool
	Drop()
}

type set map[Subscriber]struct{}

// Bus is a single-node broadcast hub. Publishing only reaches subscribers
// attached at that moment; nothing is buffered for late joiners.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[string]set
	users  map[string]set
	joined map[Subscriber]map[string]struct{}

	log     logger.Logger
	metrics metrics.Recorder
}

func NewBus(log logger.Logger, rec metrics.Recorder) *Bus {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Bus{
		rooms:   make(map[string]set),
		users:   make(map[string]set),
		joined:  make(map[Subscriber]map[string]struct{}),
		log:     log,
		metrics: rec,
	}
}

// Attach registers sub on its user's personal channel.
func (b *Bus) Attach(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.joined[sub]; ok {
		return
	}
	b.joined[sub] = make(map[string]struct{})
	add(b.users, sub.UserID(), sub)
}

// Detach removes sub from its personal channel and every room channel.
func (b *Bus) Detach(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked(sub)
}

func (b *Bus) detachLocked(sub Subscriber) bool {
	rooms, ok := b.joined[sub]
	if !ok {
		return false
	}
	for roomID := range rooms {
		remove(b.rooms, roomID, sub)
	}
	remove(b.users, sub.UserID(), sub)
	delete(b.joined, sub)
	return true
}

// Subscribe adds sub to the room channel. It reports false when sub is not
// attached, e.g. because it was dropped concurrently.
func (b *Bus) Subscribe(sub Subscriber, roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rooms, ok := b.joined[sub]
	if !ok {
		return false
	}
	rooms[roomID] = struct{}{}
	add(b.rooms, roomID, sub)
	return true
}

// Unsubscribe is a no-op when sub is not in the room channel.
func (b *Bus) Unsubscribe(sub Subscriber, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rooms, ok := b.joined[sub]; ok {
		delete(rooms, roomID)
	}
	remove(b.rooms, roomID, sub)
}

func (b *Bus) PublishToRoom(roomID, event string, payload any) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		b.log.Error("Failed to encode frame", "event", event, "error", err)
		return
	}

	b.mu.RLock()
	targets := members(b.rooms[roomID])
	b.mu.RUnlock()

	b.deliver(targets, frame, "room")
}

func (b *Bus) PublishToUsers(userIDs []string, event string, payload any) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		b.log.Error("Failed to encode frame", "event", event, "error", err)
		return
	}

	seen := make(map[string]struct{}, len(userIDs))
	var targets []Subscriber
	b.mu.RLock()
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		targets = append(targets, members(b.users[userID])...)
	}
	b.mu.RUnlock()

	b.deliver(targets, frame, "user")
}

func (b *Bus) deliver(targets []Subscriber, frame []byte, channel string) {
	var slow []Subscriber
	for _, sub := range targets {
		if sub.Deliver(frame) {
			b.metrics.RecordDelivery(channel)
			continue
		}
		slow = append(slow, sub)
	}

	for _, sub := range slow {
		b.mu.Lock()
		dropped := b.detachLocked(sub)
		b.mu.Unlock()
		if !dropped {
			continue
		}
		b.metrics.RecordDrop()
		b.log.Warn("Dropping slow subscriber", "user_id", sub.UserID())
		sub.Drop()
	}
}

// RoomSubscribers returns how many subscribers listen on the room channel.
func (b *Bus) RoomSubscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// UserSubscribers returns how many sessions are attached for the user.
func (b *Bus) UserSubscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.users[userID])
}

func add(channels map[string]set, key string, sub Subscriber) {
	subs, ok := channels[key]
	if !ok {
		subs = make(set)
		channels[key] = subs
	}
	subs[sub] = struct{}{}
}

func remove(channels map[string]set, key string, sub Subscriber) {
	subs, ok := channels[key]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(channels, key)
	}
}

func members(subs set) []Subscriber {
	out := make([]Subscriber, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}
