package service

import (
	"context"
	"strings"
	"time"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

const maxSearchResults = 20

type UserService interface {
	GetMe(ctx context.Context, userID string) (*domain.PublicProfile, error)
	// Search finds other users whose username or display name contains
	// query, ignoring case. A blank query matches nobody.
	Search(ctx context.Context, userID, query string) ([]domain.PublicProfile, error)
}

type userService struct {
	directory repository.DirectoryStore
	timeout   time.Duration
	log       logger.Logger
}

func NewUserService(directory repository.DirectoryStore, timeout time.Duration, log logger.Logger) UserService {
	return &userService{
		directory: directory,
		timeout:   timeout,
		log:       log,
	}
}

func (s *userService) GetMe(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.directory.GetUsersByIDs(storeCtx, []string{userID})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperrors.ErrUserNotFound
	}
	profile := users[0].Profile()
	return &profile, nil
}

func (s *userService) Search(ctx context.Context, userID, query string) ([]domain.PublicProfile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.PublicProfile{}, nil
	}

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.directory.SearchUsers(storeCtx, query, userID, maxSearchResults)
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}
