package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"room_chat/internal/config"
	"room_chat/internal/repository"
	"room_chat/pkg/jwt"
	"room_chat/pkg/logger"
)

const (
	testSecret = "test-secret"
	testIssuer = "room-chat-test"
)

type published struct {
	RoomID  string
	UserIDs []string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published

	// onRoom runs before a room event is recorded, outside the lock.
	onRoom func(roomID, event string, payload any)
}

func (p *recordingPublisher) PublishToRoom(roomID, event string, payload any) {
	if p.onRoom != nil {
		p.onRoom(roomID, event, payload)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{RoomID: roomID, Event: event, Payload: payload})
}

func (p *recordingPublisher) PublishToUsers(userIDs []string, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := append([]string(nil), userIDs...)
	p.events = append(p.events, published{UserIDs: ids, Event: event, Payload: payload})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type fixture struct {
	directory repository.DirectoryStore
	publisher *recordingPublisher
	services  *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	directory, err := repository.OpenSQLite(":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { directory.Close() })

	cfg := &config.Config{
		Database: config.DatabaseConfig{QueryTimeout: 5 * time.Second},
		JWT:      config.JWTConfig{Secret: testSecret, Issuer: testIssuer, TTL: time.Hour},
		Chat:     config.ChatConfig{SendLimitPerMinute: 60},
	}
	publisher := &recordingPublisher{}
	repos := repository.NewRepositories(directory, nil, logger.NewNop())

	return &fixture{
		directory: directory,
		publisher: publisher,
		services:  NewServices(repos, publisher, cfg, logger.NewNop(), nil),
	}
}

// login authenticates userID through the identity service, which also
// bootstraps the user row.
func (f *fixture) login(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, testSecret, testIssuer, time.Hour)
	require.NoError(t, err)
	got, err := f.services.Identity.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, userID, got)
	return got
}
