package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"room_chat/internal/config"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/jwt"
	"room_chat/pkg/logger"
)

// IdentityService turns a bearer credential into a user id and makes sure
// that user exists in the directory.
type IdentityService interface {
	Authenticate(ctx context.Context, credential string) (string, error)
}

type identityService struct {
	directory repository.DirectoryStore
	cfg       config.JWTConfig
	timeout   time.Duration
	log       logger.Logger

	// ids already bootstrapped by this process
	known sync.Map
	// collapses concurrent first contacts of one user into a single upsert
	bootstrap singleflight.Group
}

func NewIdentityService(directory repository.DirectoryStore, cfg config.JWTConfig, timeout time.Duration, log logger.Logger) IdentityService {
	return &identityService{
		directory: directory,
		cfg:       cfg,
		timeout:   timeout,
		log:       log,
	}
}

func (s *identityService) Authenticate(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", apperrors.ErrUnauthenticated
	}

	claims, err := jwt.ValidateToken(credential, s.cfg.Secret, s.cfg.Issuer)
	if err != nil {
		s.log.Debug("Token rejected", "error", err)
		return "", apperrors.ErrUnauthenticated
	}
	userID := claims.UserID()

	if _, ok := s.known.Load(userID); ok {
		return userID, nil
	}

	_, err, _ = s.bootstrap.Do(userID, func() (any, error) {
		storeCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		created, err := s.directory.EnsureUser(storeCtx, userID)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Info("User bootstrapped", "user_id", userID)
		}
		s.known.Store(userID, struct{}{})
		return nil, nil
	})
	if err != nil {
		return "", err
	}

	return userID, nil
}
