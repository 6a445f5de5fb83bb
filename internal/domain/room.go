package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"-"`
}

type Membership struct {
	UserID   string    `json:"userId"`
	RoomID   string    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoomRef is returned by create and open operations.
type RoomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomSummary is a sidebar entry. Name is already resolved for the viewer.
type RoomSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

const (
	DefaultRoomName   = "New Room"
	DirectRoomName    = "Direct Message"
	MaxRoomNameLength = 80

	GroupRoomPrefix  = "r_"
	DirectRoomPrefix = "dm__"
	DirectRoomSep    = "__"
)

func NewGroupRoomID() string {
	return GroupRoomPrefix + uuid.New().String()
}

// DirectRoomID derives the room shared by two users. The result does not
// depend on argument order.
func DirectRoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return DirectRoomPrefix + pair[0] + DirectRoomSep + pair[1]
}

func IsDirectRoomID(roomID string) bool {
	return strings.HasPrefix(roomID, DirectRoomPrefix)
}

// Now returns the store clock: UTC with microsecond precision, which is what
// Postgres keeps for timestamptz.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
