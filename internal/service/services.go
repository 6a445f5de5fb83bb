package service

import (
	"context"
	"time"

	"room_chat/internal/config"
	"room_chat/internal/metrics"
	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

// Publisher pushes committed changes to connected clients.
type Publisher interface {
	PublishToRoom(roomID, event string, payload any)
	PublishToUsers(userIDs []string, event string, payload any)
}

type Services struct {
	Identity  IdentityService
	Room      RoomService
	Message   MessageService
	User      UserService
	// RateLimit is nil when send rate limiting is disabled.
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, publisher Publisher, cfg *config.Config, log logger.Logger, rec metrics.Recorder) *Services {
	if rec == nil {
		rec = metrics.Nop()
	}
	timeout := cfg.Database.QueryTimeout

	services := &Services{
		Identity: NewIdentityService(repos.Directory, cfg.JWT, timeout, log),
		Room:     NewRoomService(repos.Directory, publisher, timeout, log),
		Message:  NewMessageService(repos.Directory, publisher, timeout, log, rec),
		User:     NewUserService(repos.Directory, timeout, log),
	}

	if repos.RateLimit != nil {
		services.RateLimit = NewRateLimitService(repos.RateLimit, cfg.Chat.SendLimitPerMinute, time.Minute, log)
	}

	return services
}

// withTimeout bounds a store call. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
