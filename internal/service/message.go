package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"room_chat/internal/domain"
	"room_chat/internal/metrics"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type MessageService interface {
	// Send persists text in roomID and joins the sender to the room if
	// needed. Subscribers are notified only after the write committed.
	Send(ctx context.Context, senderID, roomID, text string) (*domain.MessageView, error)
	// ListRecent returns up to limit of the newest messages, oldest first.
	ListRecent(ctx context.Context, requesterID, roomID string, limit int) ([]*domain.MessageView, error)
}

type messageService struct {
	directory repository.DirectoryStore
	publisher Publisher
	timeout   time.Duration
	log       logger.Logger
	metrics   metrics.Recorder
}

func NewMessageService(directory repository.DirectoryStore, publisher Publisher, timeout time.Duration, log logger.Logger, rec metrics.Recorder) MessageService {
	if rec == nil {
		rec = metrics.Nop()
	}
	return &messageService{
		directory: directory,
		publisher: publisher,
		timeout:   timeout,
		log:       log,
		metrics:   rec,
	}
}

func (s *messageService) Send(ctx context.Context, senderID, roomID, text string) (*domain.MessageView, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, apperrors.Invalid("roomId", "required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.Invalid("text", "must not be empty")
	}
	if utf8.RuneCountInString(text) > domain.MaxMessageLength {
		return nil, apperrors.Invalid("text", "must be at most 4000 characters")
	}

	// A client that goes away mid-request must not abort a send the store
	// may already be committing.
	storeCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	senders, err := s.directory.GetUsersByIDs(storeCtx, []string{senderID})
	if err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		return nil, apperrors.ErrUserNotFound
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: domain.Now(),
	}
	if err := s.directory.AppendMessage(storeCtx, msg); err != nil {
		return nil, err
	}
	s.metrics.RecordMessageSent()

	view := &domain.MessageView{Message: *msg, Sender: senders[0].Profile()}

	s.publisher.PublishToRoom(roomID, domain.EventNewMessage, view)

	members, err := s.directory.ListMembers(storeCtx, []string{roomID})
	if err != nil {
		s.log.Error("Failed to list members for notification", "room_id", roomID, "error", err)
		members = map[string][]string{roomID: {senderID}}
	}
	s.publisher.PublishToUsers(members[roomID], domain.EventRoomsChanged, nil)

	return view, nil
}

func (s *messageService) ListRecent(ctx context.Context, requesterID, roomID string, limit int) ([]*domain.MessageView, error) {
	limit = clampHistoryLimit(limit)

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.directory.GetRoom(storeCtx, roomID); err != nil {
		return nil, err
	}
	member, err := s.directory.IsMember(storeCtx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperrors.ErrNotAMember
	}

	messages, err := s.directory.ListRecentMessages(storeCtx, roomID, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// clampHistoryLimit maps 0 (unset) to the default and everything else into
// [1, MaxHistoryLimit].
func clampHistoryLimit(limit int) int {
	switch {
	case limit == 0:
		return domain.DefaultHistoryLimit
	case limit < 1:
		return 1
	case limit > domain.MaxHistoryLimit:
		return domain.MaxHistoryLimit
	default:
		return limit
	}
}
