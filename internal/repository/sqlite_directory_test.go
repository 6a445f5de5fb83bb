package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

func newTestSQLite(t *testing.T) DirectoryStore {
	t.Helper()
	store, err := OpenSQLite(":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newMessage(roomID, senderID, text string) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: domain.Now(),
	}
}

func createGroup(t *testing.T, store DirectoryStore, creator string) *domain.Room {
	t.Helper()
	ctx := context.Background()
	_, err := store.EnsureUser(ctx, creator)
	require.NoError(t, err)

	now := domain.Now()
	room := &domain.Room{ID: domain.NewGroupRoomID(), Name: domain.DefaultRoomName, LastActivityAt: now, CreatedAt: now}
	require.NoError(t, store.CreateRoom(ctx, room, creator))
	return room
}

func TestSQLiteEnsureUserIsIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	created, err := store.EnsureUser(ctx, "abcdefgh-1234")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.EnsureUser(ctx, "abcdefgh-1234")
	require.NoError(t, err)
	assert.False(t, created)

	users, err := store.GetUsersByIDs(ctx, []string{"abcdefgh-1234"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user_abcdefgh", users[0].Username)
	assert.Nil(t, users[0].DisplayName)
}

func TestSQLiteEnsureUserResolvesPlaceholderClash(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.EnsureUser(ctx, "abcdefgh-one")
	require.NoError(t, err)
	created, err := store.EnsureUser(ctx, "abcdefgh-two")
	require.NoError(t, err)
	assert.True(t, created)

	users, err := store.GetUsersByIDs(ctx, []string{"abcdefgh-two"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user_abcdefgh-two", users[0].Username)
}

func TestSQLiteSearchUsers(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"alice000", "alina000", "bob00000", "percent%"} {
		_, err := store.EnsureUser(ctx, id)
		require.NoError(t, err)
	}

	users, err := store.SearchUsers(ctx, "ALI", "alice000", 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alina000", users[0].ID)

	users, err = store.SearchUsers(ctx, "%", "", 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "percent%", users[0].ID)

	users, err = store.SearchUsers(ctx, "user_", "", 2)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSQLiteCreateRoomAddsCreator(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	room := createGroup(t, store, "alice")

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRoomName, got.Name)
	assert.True(t, room.LastActivityAt.Equal(got.LastActivityAt))

	member, err := store.IsMember(ctx, room.ID, "alice")
	require.NoError(t, err)
	assert.True(t, member)

	member, err = store.IsMember(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestSQLiteGetRoomNotFound(t *testing.T) {
	store := newTestSQLite(t)

	_, err := store.GetRoom(context.Background(), "r_missing")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	_, err = store.RenameRoom(context.Background(), "r_missing", "x")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
}

func TestSQLiteOpenDirectRoomReopens(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	first := domain.Now()
	room := &domain.Room{
		ID:             domain.DirectRoomID("alice", "bob"),
		Name:           domain.DirectRoomName,
		LastActivityAt: first,
		CreatedAt:      first,
	}
	require.NoError(t, store.OpenDirectRoom(ctx, room, "alice", "bob"))

	for _, uid := range []string{"alice", "bob"} {
		member, err := store.IsMember(ctx, room.ID, uid)
		require.NoError(t, err)
		assert.True(t, member, uid)
	}

	later := first.Add(time.Second)
	again := &domain.Room{
		ID:             domain.DirectRoomID("bob", "alice"),
		Name:           domain.DirectRoomName,
		LastActivityAt: later,
		CreatedAt:      later,
	}
	require.NoError(t, store.OpenDirectRoom(ctx, again, "bob", "alice"))
	assert.Equal(t, room.ID, again.ID)
	assert.True(t, later.Equal(again.LastActivityAt))
	assert.True(t, first.Equal(again.CreatedAt))

	rooms, err := store.ListRoomsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestSQLiteAppendMessageJoinsSender(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	room := createGroup(t, store, "alice")

	_, err := store.EnsureUser(ctx, "bob")
	require.NoError(t, err)

	msg := newMessage(room.ID, "bob", "hi")
	require.NoError(t, store.AppendMessage(ctx, msg))

	member, err := store.IsMember(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.True(t, member)

	got, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, msg.CreatedAt.Equal(got.LastActivityAt))
}

func TestSQLiteAppendMessageMissingRoom(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	_, err := store.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	err = store.AppendMessage(ctx, newMessage("r_missing", "alice", "hi"))
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	rooms, err := store.ListRoomsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestSQLiteAppendMessageNeverMovesActivityBack(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	room := createGroup(t, store, "alice")

	late := newMessage(room.ID, "alice", "late clock")
	late.CreatedAt = late.CreatedAt.Add(time.Hour)
	require.NoError(t, store.AppendMessage(ctx, late))

	early := newMessage(room.ID, "alice", "normal clock")
	require.NoError(t, store.AppendMessage(ctx, early))
	assert.False(t, early.CreatedAt.Before(late.CreatedAt))

	history, err := store.ListRecentMessages(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, early.ID, history[0].ID)
	assert.Equal(t, late.ID, history[1].ID)
}

func TestSQLiteListRecentMessagesNewestFirst(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	room := createGroup(t, store, "alice")

	var ids []string
	for i := 0; i < 5; i++ {
		msg := newMessage(room.ID, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, store.AppendMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	history, err := store.ListRecentMessages(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[4], history[0].ID)
	assert.Equal(t, ids[3], history[1].ID)
	assert.Equal(t, ids[2], history[2].ID)
	assert.Equal(t, "alice", history[0].Sender.ID)
	assert.Equal(t, "user_alice", history[0].Sender.Username)
}

func TestSQLiteListRoomsOrderedByActivity(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	older := createGroup(t, store, "alice")
	newer := createGroup(t, store, "alice")

	require.NoError(t, store.AppendMessage(ctx, newMessage(older.ID, "alice", "bump")))

	rooms, err := store.ListRoomsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, older.ID, rooms[0].ID)
	assert.Equal(t, newer.ID, rooms[1].ID)

	members, err := store.ListMembers(ctx, []string{older.ID, newer.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members[older.ID])
	assert.Equal(t, []string{"alice"}, members[newer.ID])
}

func TestSQLiteConcurrentSends(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	room := createGroup(t, store, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.AppendMessage(ctx, newMessage(room.ID, "alice", fmt.Sprintf("m%d", i))))
		}(i)
	}
	wg.Wait()

	history, err := store.ListRecentMessages(ctx, room.ID, 100)
	require.NoError(t, err)
	assert.Len(t, history, 20)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
	}
}
