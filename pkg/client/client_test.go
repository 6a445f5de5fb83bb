package client_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"room_chat/internal/testsupport"
	"room_chat/pkg/client"
)

const waitFor = 3 * time.Second

type participant struct {
	api  *client.Client
	conv *client.Conversation
}

func join(t *testing.T, srv *testsupport.Server, userID string, opts client.ConversationOptions) *participant {
	t.Helper()

	api := client.New(srv.URL(), testsupport.Token(t, userID), nil)
	stream, err := client.DialClient(context.Background(), api)
	require.NoError(t, err)

	conv := client.NewConversation(api, stream, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conv.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = stream.Close()
		<-done
	})
	return &participant{api: api, conv: conv}
}

func countID(messages []client.Message, id string) int {
	n := 0
	for _, m := range messages {
		if m.ID == id {
			n++
		}
	}
	return n
}

func hasText(tl *client.Timeline, text string) func() bool {
	return func() bool {
		for _, m := range tl.Messages() {
			if m.Text == text {
				return true
			}
		}
		return false
	}
}

func TestTeamScenario(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	var bobRoomsChanged atomic.Int32
	alice := join(t, srv, "alice", client.ConversationOptions{})
	bob := join(t, srv, "bob", client.ConversationOptions{
		OnRoomsChanged: func() { bobRoomsChanged.Add(1) },
	})

	team, err := alice.api.CreateRoom(ctx, "Team")
	require.NoError(t, err)
	_, err = bob.api.Send(ctx, team.ID, "joined")
	require.NoError(t, err)

	require.NoError(t, alice.conv.Open(ctx, team.ID))
	require.NoError(t, bob.conv.Open(ctx, team.ID))
	require.Equal(t, 1, bob.conv.Timeline().Len())
	before := bobRoomsChanged.Load()

	hi, err := alice.conv.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, countID(alice.conv.Timeline().Messages(), hi.ID))

	// bye only reaches alice's timeline by broadcast, after the hi broadcast
	_, err = alice.api.Send(ctx, team.ID, "bye")
	require.NoError(t, err)

	require.Eventually(t, hasText(alice.conv.Timeline(), "bye"), waitFor, 10*time.Millisecond)
	require.Eventually(t, hasText(bob.conv.Timeline(), "bye"), waitFor, 10*time.Millisecond)

	aliceView := alice.conv.Timeline().Messages()
	bobView := bob.conv.Timeline().Messages()

	assert.Equal(t, 1, countID(aliceView, hi.ID))
	assert.Equal(t, 1, countID(bobView, hi.ID))
	require.Len(t, bobView, 3)
	assert.Equal(t, []string{"joined", "hi", "bye"}, []string{bobView[0].Text, bobView[1].Text, bobView[2].Text})
	assert.Equal(t, "user_alice", bobView[1].Sender.Username)

	assert.Eventually(t, func() bool { return bobRoomsChanged.Load() > before }, waitFor, 10*time.Millisecond)
}

func TestOpenRejectsNonMember(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	alice := join(t, srv, "alice", client.ConversationOptions{})
	mallory := join(t, srv, "mallory", client.ConversationOptions{})

	team, err := alice.api.CreateRoom(ctx, "Team")
	require.NoError(t, err)

	err = mallory.conv.Open(ctx, team.ID)
	var roomErr *client.RoomError
	require.ErrorAs(t, err, &roomErr)
	assert.Equal(t, team.ID, roomErr.RoomID)
	assert.Equal(t, "not_a_member", roomErr.Code)
}

func TestSendWithoutRoom(t *testing.T) {
	srv := testsupport.NewServer(t)
	alice := join(t, srv, "alice", client.ConversationOptions{})

	_, err := alice.conv.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, client.ErrNoActiveRoom)
}

func TestSwitchingRoomsStopsOldBroadcasts(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	alice := join(t, srv, "alice", client.ConversationOptions{})
	bob := client.New(srv.URL(), testsupport.Token(t, "bob"), nil)

	first, err := alice.api.CreateRoom(ctx, "First")
	require.NoError(t, err)
	second, err := alice.api.CreateRoom(ctx, "Second")
	require.NoError(t, err)

	require.NoError(t, alice.conv.Open(ctx, first.ID))
	require.NoError(t, alice.conv.Open(ctx, second.ID))
	assert.Equal(t, second.ID, alice.conv.RoomID())

	_, err = bob.Send(ctx, first.ID, "elsewhere")
	require.NoError(t, err)
	_, err = bob.Send(ctx, second.ID, "here")
	require.NoError(t, err)

	require.Eventually(t, hasText(alice.conv.Timeline(), "here"), waitFor, 10*time.Millisecond)
	assert.False(t, hasText(alice.conv.Timeline(), "elsewhere")())
}

func TestConcurrentDirectRooms(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	alice := client.New(srv.URL(), testsupport.Token(t, "alice"), nil)
	bob := client.New(srv.URL(), testsupport.Token(t, "bob"), nil)

	var wg sync.WaitGroup
	refs := make([]*client.RoomRef, 2)
	for i, pair := range []struct {
		c     *client.Client
		other string
	}{{alice, "bob"}, {bob, "alice"}} {
		wg.Add(1)
		go func(i int, c *client.Client, other string) {
			defer wg.Done()
			ref, err := c.OpenDirect(ctx, other)
			assert.NoError(t, err)
			refs[i] = ref
		}(i, pair.c, pair.other)
	}
	wg.Wait()

	require.NotNil(t, refs[0])
	require.NotNil(t, refs[1])
	assert.Equal(t, refs[0].ID, refs[1].ID)
	assert.Equal(t, "user_bob", refs[0].Name)
	assert.Equal(t, "user_alice", refs[1].Name)

	for _, c := range []*client.Client{alice, bob} {
		rooms, err := c.ListRooms(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, refs[0].ID, rooms[0].ID)
	}
}

func TestClientErrors(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	alice := client.New(srv.URL(), testsupport.Token(t, "alice"), nil)
	_, err := alice.OpenDirect(ctx, "alice")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "invalid_input", apiErr.Code)
	assert.Equal(t, "otherUid", apiErr.Field)

	_, err = alice.ListMessages(ctx, "r_missing", 10)
	assert.True(t, client.IsCode(err, "room_not_found"))

	anon := client.New(srv.URL(), "", nil)
	_, err = anon.Me(ctx)
	assert.True(t, client.IsCode(err, "unauthenticated"))

	_, err = client.DialClient(ctx, anon)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestClientProfileAndSearch(t *testing.T) {
	srv := testsupport.NewServer(t)
	ctx := context.Background()

	alice := client.New(srv.URL(), testsupport.Token(t, "alice"), nil)
	bob := client.New(srv.URL(), testsupport.Token(t, "bob"), nil)

	me, err := bob.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", me.ID)
	assert.Equal(t, "user_bob", me.Name())

	users, err := alice.SearchUsers(ctx, "BO")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)

	room, err := alice.CreateRoom(ctx, "Team")
	require.NoError(t, err)
	renamed, err := alice.Rename(ctx, room.ID, "Core")
	require.NoError(t, err)
	assert.Equal(t, "Core", renamed.Name)
}
