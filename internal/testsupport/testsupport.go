// Package testsupport starts a complete chat server on an in-memory SQLite
// store for handler and client tests.
package testsupport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"room_chat/internal/app"
	"room_chat/internal/config"
	"room_chat/internal/repository"
	"room_chat/pkg/jwt"
	"room_chat/pkg/logger"
)

const (
	Secret = "test-secret"
	Issuer = "room-chat-test"
)

// Config returns defaults suitable for tests.
func Config() *config.Config {
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			DSN:          ":memory:",
			QueryTimeout: 5 * time.Second,
		},
		JWT: config.JWTConfig{Secret: Secret, Issuer: Issuer, TTL: time.Hour},
		Chat: config.ChatConfig{
			SendLimitPerMinute: 60,
		},
		WebSocket: config.WebSocketConfig{
			EventsPerSecond: 100,
			EventBurst:      100,
			SendBuffer:      64,
			PingInterval:    time.Second,
			PongWait:        2 * time.Second,
			WriteWait:       time.Second,
			MaxFrameBytes:   8192,
		},
		CORS: config.CORSConfig{AllowedOrigin: "http://localhost:5173"},
	}
}

type Server struct {
	App      *app.App
	HTTP     *httptest.Server
	Registry *prometheus.Registry
}

// NewServer starts the full router on an httptest server.
func NewServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	directory, err := repository.OpenSQLite(":memory:", log)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	a := app.New(Config(), repository.NewRepositories(directory, nil, log), log, registry)
	srv := httptest.NewServer(a.Router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
		srv.Close()
		directory.Close()
	})

	return &Server{App: a, HTTP: srv, Registry: registry}
}

func (s *Server) URL() string {
	return s.HTTP.URL
}

// WebSocketURL is the ws:// address of the realtime endpoint.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// Token mints a credential for userID.
func Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, Secret, Issuer, time.Hour)
	require.NoError(t, err)
	return token
}
