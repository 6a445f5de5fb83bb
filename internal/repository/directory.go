package repository

import (
	"context"
	"strings"

	"room_chat/internal/domain"
)

// DirectoryStore owns all persisted chat state: users, rooms, memberships
// and messages. Multi-row operations are atomic; a failed call leaves no
// partial effects behind.
//
// Missing rooms are reported as errors.ErrRoomNotFound. Every other failure
// wraps errors.ErrStore.
type DirectoryStore interface {
	// EnsureUser creates the user with a placeholder username if it does
	// not exist yet. It reports whether a row was created.
	EnsureUser(ctx context.Context, userID string) (bool, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error)
	// SearchUsers matches fragment case-insensitively against username and
	// display name, excluding excludeID.
	SearchUsers(ctx context.Context, fragment, excludeID string, limit int) ([]*domain.User, error)

	// CreateRoom inserts the room and the creator's membership.
	CreateRoom(ctx context.Context, room *domain.Room, creatorID string) error
	// OpenDirectRoom bootstraps both users, creates the room or bumps its
	// activity, and upserts both memberships. room is updated with the
	// stored row.
	OpenDirectRoom(ctx context.Context, room *domain.Room, userA, userB string) error
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	RenameRoom(ctx context.Context, roomID, name string) (*domain.Room, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error)
	// ListMembers returns member ids keyed by room id.
	ListMembers(ctx context.Context, roomIDs []string) (map[string][]string, error)

	// AppendMessage upserts the sender's membership, advances the room's
	// activity timestamp and inserts the message. msg.CreatedAt is replaced
	// by the stored timestamp, which never precedes an earlier message in
	// the same room.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	// ListRecentMessages returns up to limit messages, newest first.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*domain.MessageView, error)

	Close() error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(fragment string) string {
	return "%" + likeEscaper.Replace(fragment) + "%"
}

func sortedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
