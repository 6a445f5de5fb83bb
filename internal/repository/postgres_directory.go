package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresDirectory struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostgresDirectory(db *pgxpool.Pool, log logger.Logger) DirectoryStore {
	return &postgresDirectory{db: db, log: log}
}

func (r *postgresDirectory) EnsureUser(ctx context.Context, userID string) (bool, error) {
	created, err := pgEnsureUser(ctx, r.db, userID)
	if err != nil {
		r.log.Error("Failed to ensure user", "user_id", userID, "error", err)
		return false, apperrors.Store("ensure user", err)
	}
	return created, nil
}

// pgEnsureUser inserts userID with the first free placeholder username.
// ON CONFLICT without a target swallows both id and username clashes, so a
// surrounding transaction is never aborted by a concurrent bootstrap.
func pgEnsureUser(ctx context.Context, q pgQuerier, userID string) (bool, error) {
	candidates := append(domain.PlaceholderUsernames(userID),
		domain.PlaceholderUsername(userID)+"_"+uuid.New().String()[:8])

	for _, username := range candidates {
		tag, err := q.Exec(ctx, `
			INSERT INTO users (id, username, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, userID, username, domain.Now())
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 1 {
			return true, nil
		}

		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	return false, errors.New("no free placeholder username")
}

func (r *postgresDirectory) GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		r.log.Error("Failed to get users", "error", err)
		return nil, apperrors.Store("get users", err)
	}
	defer rows.Close()

	return r.scanUsers(rows)
}

func (r *postgresDirectory) SearchUsers(ctx context.Context, fragment, excludeID string, limit int) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE (username ILIKE $1 ESCAPE '\' OR display_name ILIKE $1 ESCAPE '\')
		  AND id <> $2
		ORDER BY username
		LIMIT $3
	`, containsPattern(fragment), excludeID, limit)
	if err != nil {
		r.log.Error("Failed to search users", "error", err)
		return nil, apperrors.Store("search users", err)
	}
	defer rows.Close()

	return r.scanUsers(rows)
}

func (r *postgresDirectory) scanUsers(rows pgx.Rows) ([]*domain.User, error) {
	users := []*domain.User{}
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.CreatedAt); err != nil {
			r.log.Error("Failed to scan user", "error", err)
			return nil, apperrors.Store("scan user", err)
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate users", err)
	}
	return users, nil
}

func (r *postgresDirectory) CreateRoom(ctx context.Context, room *domain.Room, creatorID string) error {
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, last_activity_at, created_at)
			VALUES ($1, $2, $3, $4)
		`, room.ID, room.Name, room.LastActivityAt, room.CreatedAt); err != nil {
			return err
		}
		return pgUpsertMembership(ctx, tx, creatorID, room.ID, room.CreatedAt)
	})
	if err != nil {
		r.log.Error("Failed to create room", "room_id", room.ID, "error", err)
		return apperrors.Store("create room", err)
	}
	return nil
}

func (r *postgresDirectory) OpenDirectRoom(ctx context.Context, room *domain.Room, userA, userB string) error {
	first, second := sortedPair(userA, userB)

	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Fixed lock order keeps concurrent opens from both sides deadlock free.
		for _, id := range []string{first, second} {
			if _, err := pgEnsureUser(ctx, tx, id); err != nil {
				return err
			}
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO rooms (id, name, last_activity_at, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET last_activity_at = GREATEST(rooms.last_activity_at, EXCLUDED.last_activity_at)
			RETURNING name, last_activity_at, created_at
		`, room.ID, room.Name, room.LastActivityAt, room.CreatedAt).Scan(
			&room.Name, &room.LastActivityAt, &room.CreatedAt,
		); err != nil {
			return err
		}

		for _, id := range []string{first, second} {
			if err := pgUpsertMembership(ctx, tx, id, room.ID, room.LastActivityAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to open direct room", "room_id", room.ID, "error", err)
		return apperrors.Store("open direct room", err)
	}
	room.LastActivityAt = room.LastActivityAt.UTC()
	room.CreatedAt = room.CreatedAt.UTC()
	return nil
}

func pgUpsertMembership(ctx context.Context, q pgQuerier, userID, roomID string, joinedAt time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO memberships (user_id, room_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, room_id) DO NOTHING
	`, userID, roomID, joinedAt)
	return err
}

func (r *postgresDirectory) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, last_activity_at, created_at
		FROM rooms
		WHERE id = $1
	`, roomID).Scan(&room.ID, &room.Name, &room.LastActivityAt, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room", "room_id", roomID, "error", err)
		return nil, apperrors.Store("get room", err)
	}
	normalizeRoom(room)
	return room, nil
}

func (r *postgresDirectory) RenameRoom(ctx context.Context, roomID, name string) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.QueryRow(ctx, `
		UPDATE rooms
		SET name = $2
		WHERE id = $1
		RETURNING id, name, last_activity_at, created_at
	`, roomID, name).Scan(&room.ID, &room.Name, &room.LastActivityAt, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to rename room", "room_id", roomID, "error", err)
		return nil, apperrors.Store("rename room", err)
	}
	normalizeRoom(room)
	return room, nil
}

func (r *postgresDirectory) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM memberships WHERE room_id = $1 AND user_id = $2)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check membership", "room_id", roomID, "user_id", userID, "error", err)
		return false, apperrors.Store("check membership", err)
	}
	return exists, nil
}

func (r *postgresDirectory) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.name, r.last_activity_at, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.user_id = $1
		ORDER BY r.last_activity_at DESC, r.id
	`, userID)
	if err != nil {
		r.log.Error("Failed to list rooms", "user_id", userID, "error", err)
		return nil, apperrors.Store("list rooms", err)
	}
	defer rows.Close()

	rooms := []*domain.Room{}
	for rows.Next() {
		room := &domain.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.LastActivityAt, &room.CreatedAt); err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, apperrors.Store("scan room", err)
		}
		normalizeRoom(room)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate rooms", err)
	}
	return rooms, nil
}

func (r *postgresDirectory) ListMembers(ctx context.Context, roomIDs []string) (map[string][]string, error) {
	members := make(map[string][]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return members, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT room_id, user_id
		FROM memberships
		WHERE room_id = ANY($1)
		ORDER BY room_id, user_id
	`, roomIDs)
	if err != nil {
		r.log.Error("Failed to list members", "error", err)
		return nil, apperrors.Store("list members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roomID, userID string
		if err := rows.Scan(&roomID, &userID); err != nil {
			return nil, apperrors.Store("scan member", err)
		}
		members[roomID] = append(members[roomID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate members", err)
	}
	return members, nil
}

func (r *postgresDirectory) AppendMessage(ctx context.Context, msg *domain.Message) error {
	errNoRoom := errors.New("room vanished")

	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// The row lock taken here serialises concurrent sends into the room,
		// so activity and message timestamps advance in commit order.
		var activity time.Time
		err := tx.QueryRow(ctx, `
			UPDATE rooms
			SET last_activity_at = GREATEST(last_activity_at, $2)
			WHERE id = $1
			RETURNING last_activity_at
		`, msg.RoomID, msg.CreatedAt).Scan(&activity)
		if errors.Is(err, pgx.ErrNoRows) {
			return errNoRoom
		}
		if err != nil {
			return err
		}

		if err := pgUpsertMembership(ctx, tx, msg.SenderID, msg.RoomID, activity); err != nil {
			return err
		}

		msg.CreatedAt = activity.UTC()
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, room_id, sender_id, text, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, msg.RoomID, msg.SenderID, msg.Text, msg.CreatedAt)
		return err
	})
	if errors.Is(err, errNoRoom) {
		return apperrors.ErrRoomNotFound
	}
	if err != nil {
		r.log.Error("Failed to append message", "room_id", msg.RoomID, "error", err)
		return apperrors.Store("append message", err)
	}
	return nil
}

func (r *postgresDirectory) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*domain.MessageView, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.text, m.created_at,
		       u.id, u.username, u.display_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "room_id", roomID, "error", err)
		return nil, apperrors.Store("list messages", err)
	}
	defer rows.Close()

	messages := []*domain.MessageView{}
	for rows.Next() {
		m := &domain.MessageView{}
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.Text, &m.CreatedAt,
			&m.Sender.ID, &m.Sender.Username, &m.Sender.DisplayName,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, apperrors.Store("scan message", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate messages", err)
	}
	return messages, nil
}

func (r *postgresDirectory) Close() error {
	r.db.Close()
	return nil
}

func normalizeRoom(room *domain.Room) {
	room.LastActivityAt = room.LastActivityAt.UTC()
	room.CreatedAt = room.CreatedAt.UTC()
}
