package domain

import (
	"time"
)

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageView is a message with its sender's public profile, as returned by
// send and history and as broadcast to subscribers.
type MessageView struct {
	Message
	Sender PublicProfile `json:"sender"`
}

const (
	MaxMessageLength = 4000

	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 100
)
