// Package app assembles the chat server from its storage backends.
package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"room_chat/internal/config"
	"room_chat/internal/handler"
	"room_chat/internal/metrics"
	"room_chat/internal/middleware"
	"room_chat/internal/realtime"
	"room_chat/internal/repository"
	"room_chat/internal/service"
	"room_chat/pkg/logger"
)

type App struct {
	Config   *config.Config
	Repos    *repository.Repositories
	Bus      *realtime.Bus
	Services *service.Services
	Handlers *handler.Handlers
	Router   *gin.Engine
}

// New wires services, the fanout bus and the HTTP router on top of repos.
// A nil registry disables metrics.
func New(cfg *config.Config, repos *repository.Repositories, log logger.Logger, registry *prometheus.Registry) *App {
	var (
		rec            metrics.Recorder = metrics.Nop()
		metricsHandler http.Handler
	)
	if registry != nil {
		rec = metrics.NewCollector(registry)
		metricsHandler = metrics.Handler(registry)
	}

	bus := realtime.NewBus(log.With("component", "bus"), rec)
	services := service.NewServices(repos, bus, cfg, log, rec)
	handlers := handler.NewHandlers(services, bus, cfg, log, rec)

	authMiddleware := middleware.NewAuthMiddleware(services.Identity, log)
	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if services.RateLimit != nil {
		rateLimitMiddleware = middleware.NewRateLimitMiddleware(services.RateLimit, log)
	}

	router := handler.NewRouter(handlers, authMiddleware, rateLimitMiddleware, metricsHandler, cfg, log, rec)

	return &App{
		Config:   cfg,
		Repos:    repos,
		Bus:      bus,
		Services: services,
		Handlers: handlers,
		Router:   router,
	}
}

// Shutdown closes open websocket sessions. The HTTP server is shut down by
// the caller.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Handlers.WebSocket.Shutdown(ctx)
}
