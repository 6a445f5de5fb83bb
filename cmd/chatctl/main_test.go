package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"room_chat/internal/testsupport"
	"room_chat/pkg/jwt"
)

// syncBuffer lets the tail goroutine write while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := runCLI(t, "token", "--user", "alice", "--secret", "s3cret", "--issuer", "dev")
	require.NoError(t, err)

	claims, err := jwt.ValidateToken(strings.TrimSpace(out), "s3cret", "dev")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID())

	_, err = runCLI(t, "token", "--secret", "s3cret")
	assert.EqualError(t, err, "usage: chatctl token --user <id> [--secret s] [--issuer i] [--ttl d]")
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCLI(t, "bogus")
	assert.EqualError(t, err, `unknown command "bogus"`)
}

func TestCommandsNeedToken(t *testing.T) {
	_, err := runCLI(t, "--server", "http://127.0.0.1:1", "--token", "", "rooms")
	assert.ErrorContains(t, err, "no token")
}

func TestRoomCommands(t *testing.T) {
	srv := testsupport.NewServer(t)
	alice := []string{"--server", srv.URL(), "--token", testsupport.Token(t, "alice")}

	out, err := runCLI(t, append(alice, "create", "Team", "Room")...)
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 2)
	roomID := fields[0]
	assert.Equal(t, "Team Room", fields[1])

	out, err = runCLI(t, append(alice, "send", roomID, "hello", "there")...)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, err = runCLI(t, append(alice, "rooms")...)
	require.NoError(t, err)
	assert.Contains(t, out, roomID+"\tTeam Room\t")

	out, err = runCLI(t, append(alice, "dm", "bob")...)
	require.NoError(t, err)
	assert.Equal(t, "dm__alice__bob\tuser_bob\n", out)

	out, err = runCLI(t, append(alice, "search", "bob")...)
	require.NoError(t, err)
	assert.Equal(t, "bob\tuser_bob\n", out)

	out, err = runCLI(t, append(alice, "rename", roomID, "Core")...)
	require.NoError(t, err)
	assert.Equal(t, roomID+"\tCore\n", out)

	out, err = runCLI(t, append(alice, "me")...)
	require.NoError(t, err)
	assert.Equal(t, "alice\tuser_alice\n", out)

	_, err = runCLI(t, append(alice, "send", roomID)...)
	assert.EqualError(t, err, "usage: chatctl send <room-id> <text>")
}

func TestTailFollowsRoom(t *testing.T) {
	srv := testsupport.NewServer(t)
	token := testsupport.Token(t, "alice")
	alice := []string{"--server", srv.URL(), "--token", token}

	out, err := runCLI(t, append(alice, "create", "Team")...)
	require.NoError(t, err)
	roomID := strings.Split(out, "\t")[0]
	_, err = runCLI(t, append(alice, "send", roomID, "before")...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var tailOut syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, append(alice, "tail", roomID), &tailOut)
	}()

	require.Eventually(t, func() bool { return strings.Contains(tailOut.String(), "before") }, 3*time.Second, 10*time.Millisecond)

	_, err = runCLI(t, append(alice, "send", roomID, "after")...)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(tailOut.String(), "after") }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("tail did not stop")
	}
	assert.Equal(t, 1, strings.Count(tailOut.String(), "user_alice: after"))
}
