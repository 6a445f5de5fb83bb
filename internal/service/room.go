package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RoomService interface {
	CreateGroup(ctx context.Context, userID, name string) (*domain.RoomRef, error)
	// OpenDirect creates or reopens the direct room between userID and
	// otherID. Both users end up as members.
	OpenDirect(ctx context.Context, userID, otherID string) (*domain.RoomRef, error)
	// ListForUser returns the caller's rooms, most recently active first,
	// with direct rooms named after the other participant.
	ListForUser(ctx context.Context, userID string) ([]*domain.RoomSummary, error)
	Rename(ctx context.Context, userID, roomID, name string) (*domain.RoomSummary, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

type roomService struct {
	directory repository.DirectoryStore
	publisher Publisher
	timeout   time.Duration
	log       logger.Logger
}

func NewRoomService(directory repository.DirectoryStore, publisher Publisher, timeout time.Duration, log logger.Logger) RoomService {
	return &roomService{
		directory: directory,
		publisher: publisher,
		timeout:   timeout,
		log:       log,
	}
}

func (s *roomService) CreateGroup(ctx context.Context, userID, name string) (*domain.RoomRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.DefaultRoomName
	}
	if utf8.RuneCountInString(name) > domain.MaxRoomNameLength {
		return nil, apperrors.Invalid("name", "must be at most 80 characters")
	}

	now := domain.Now()
	room := &domain.Room{
		ID:             domain.NewGroupRoomID(),
		Name:           name,
		LastActivityAt: now,
		CreatedAt:      now,
	}

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.directory.CreateRoom(storeCtx, room, userID); err != nil {
		return nil, err
	}
	s.log.Info("Room created", "room_id", room.ID, "user_id", userID)

	s.publisher.PublishToUsers([]string{userID}, domain.EventRoomsChanged, nil)

	return &domain.RoomRef{ID: room.ID, Name: room.Name}, nil
}

func (s *roomService) OpenDirect(ctx context.Context, userID, otherID string) (*domain.RoomRef, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, apperrors.Invalid("otherUid", "required")
	}
	if otherID == userID {
		return nil, apperrors.Invalid("otherUid", "cannot open a direct room with yourself")
	}
	// a separator inside either id would make the derived room id ambiguous
	if strings.Contains(otherID, domain.DirectRoomSep) {
		return nil, apperrors.Invalid("otherUid", "must not contain "+domain.DirectRoomSep)
	}
	if strings.Contains(userID, domain.DirectRoomSep) {
		return nil, apperrors.Invalid("otherUid", "direct rooms are unavailable for this account")
	}

	now := domain.Now()
	room := &domain.Room{
		ID:             domain.DirectRoomID(userID, otherID),
		Name:           domain.DirectRoomName,
		LastActivityAt: now,
		CreatedAt:      now,
	}

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.directory.OpenDirectRoom(storeCtx, room, userID, otherID); err != nil {
		return nil, err
	}

	s.publisher.PublishToUsers([]string{userID, otherID}, domain.EventRoomsChanged, nil)

	name := domain.DirectRoomName
	users, err := s.directory.GetUsersByIDs(storeCtx, []string{otherID})
	if err != nil {
		s.log.Warn("Failed to resolve direct room name", "room_id", room.ID, "error", err)
	} else if len(users) == 1 {
		name = users[0].Name()
	}

	return &domain.RoomRef{ID: room.ID, Name: name}, nil
}

func (s *roomService) ListForUser(ctx context.Context, userID string) ([]*domain.RoomSummary, error) {
	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rooms, err := s.directory.ListRoomsForUser(storeCtx, userID)
	if err != nil {
		return nil, err
	}

	names, err := s.directRoomNames(storeCtx, userID, rooms)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		name := room.Name
		if n, ok := names[room.ID]; ok {
			name = n
		}
		summaries = append(summaries, &domain.RoomSummary{
			ID:             room.ID,
			Name:           name,
			LastActivityAt: room.LastActivityAt,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID < b.ID
	})

	return summaries, nil
}

// directRoomNames maps each direct room in rooms to the label the viewer
// sees: the other member's display name, then username, then the generic
// direct room name.
func (s *roomService) directRoomNames(ctx context.Context, viewerID string, rooms []*domain.Room) (map[string]string, error) {
	var directIDs []string
	for _, room := range rooms {
		if domain.IsDirectRoomID(room.ID) {
			directIDs = append(directIDs, room.ID)
		}
	}
	names := make(map[string]string, len(directIDs))
	if len(directIDs) == 0 {
		return names, nil
	}

	members, err := s.directory.ListMembers(ctx, directIDs)
	if err != nil {
		return nil, err
	}

	counterpart := make(map[string]string, len(directIDs))
	var otherIDs []string
	for _, roomID := range directIDs {
		for _, memberID := range members[roomID] {
			if memberID != viewerID {
				counterpart[roomID] = memberID
				otherIDs = append(otherIDs, memberID)
				break
			}
		}
	}

	users, err := s.directory.GetUsersByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, roomID := range directIDs {
		name := domain.DirectRoomName
		if u, ok := byID[counterpart[roomID]]; ok && u.Name() != "" {
			name = u.Name()
		}
		names[roomID] = name
	}
	return names, nil
}

func (s *roomService) Rename(ctx context.Context, userID, roomID, name string) (*domain.RoomSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxRoomNameLength {
		return nil, apperrors.Invalid("name", "must be 1 to 80 characters")
	}

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.directory.GetRoom(storeCtx, roomID); err != nil {
		return nil, err
	}
	member, err := s.directory.IsMember(storeCtx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperrors.ErrNotAMember
	}

	room, err := s.directory.RenameRoom(storeCtx, roomID, name)
	if err != nil {
		return nil, err
	}
	s.log.Info("Room renamed", "room_id", roomID, "user_id", userID)

	summary := &domain.RoomSummary{ID: room.ID, Name: room.Name, LastActivityAt: room.LastActivityAt}
	if domain.IsDirectRoomID(room.ID) {
		names, err := s.directRoomNames(storeCtx, userID, []*domain.Room{room})
		if err == nil {
			summary.Name = names[room.ID]
		}
	}

	s.notifyMembers(storeCtx, roomID)

	return summary, nil
}

func (s *roomService) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.directory.IsMember(storeCtx, roomID, userID)
}

func (s *roomService) notifyMembers(ctx context.Context, roomID string) {
	members, err := s.directory.ListMembers(ctx, []string{roomID})
	if err != nil {
		s.log.Error("Failed to list members for notification", "room_id", roomID, "error", err)
		return
	}
	s.publisher.PublishToUsers(members[roomID], domain.EventRoomsChanged, nil)
}
