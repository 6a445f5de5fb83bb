package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteDirectory keeps timestamps as unix microseconds and runs on a single
// connection, which serialises writers the way row locks do in Postgres.
type sqliteDirectory struct {
	db  *sql.DB
	log logger.Logger
}

// OpenSQLite opens dsn (":memory:" works), applies the schema and returns
// the store.
func OpenSQLite(dsn string, log logger.Logger) (DirectoryStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := MigrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteDirectory{db: db, log: log}, nil
}

func (r *sqliteDirectory) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func (r *sqliteDirectory) EnsureUser(ctx context.Context, userID string) (bool, error) {
	created, err := sqliteEnsureUser(ctx, r.db, userID)
	if err != nil {
		r.log.Error("Failed to ensure user", "user_id", userID, "error", err)
		return false, apperrors.Store("ensure user", err)
	}
	return created, nil
}

func sqliteEnsureUser(ctx context.Context, q sqlQuerier, userID string) (bool, error) {
	candidates := append(domain.PlaceholderUsernames(userID),
		domain.PlaceholderUsername(userID)+"_"+uuid.New().String()[:8])

	for _, username := range candidates {
		res, err := q.ExecContext(ctx, `
			INSERT INTO users (id, username, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, userID, username, toMicros(domain.Now()))
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return true, nil
		}

		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	return false, errors.New("no free placeholder username")
}

func (r *sqliteDirectory) GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		r.log.Error("Failed to get users", "error", err)
		return nil, apperrors.Store("get users", err)
	}
	defer rows.Close()

	return r.scanUsers(rows)
}

func (r *sqliteDirectory) SearchUsers(ctx context.Context, fragment, excludeID string, limit int) ([]*domain.User, error) {
	// LIKE is case-insensitive for ASCII in SQLite.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE (username LIKE ?1 ESCAPE '\' OR display_name LIKE ?1 ESCAPE '\')
		  AND id <> ?2
		ORDER BY username
		LIMIT ?3
	`, containsPattern(fragment), excludeID, limit)
	if err != nil {
		r.log.Error("Failed to search users", "error", err)
		return nil, apperrors.Store("search users", err)
	}
	defer rows.Close()

	return r.scanUsers(rows)
}

func (r *sqliteDirectory) scanUsers(rows *sql.Rows) ([]*domain.User, error) {
	users := []*domain.User{}
	for rows.Next() {
		var (
			user    domain.User
			display sql.NullString
			created int64
		)
		if err := rows.Scan(&user.ID, &user.Username, &display, &created); err != nil {
			r.log.Error("Failed to scan user", "error", err)
			return nil, apperrors.Store("scan user", err)
		}
		if display.Valid {
			user.DisplayName = &display.String
		}
		user.CreatedAt = fromMicros(created)
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate users", err)
	}
	return users, nil
}

func (r *sqliteDirectory) CreateRoom(ctx context.Context, room *domain.Room, creatorID string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, last_activity_at, created_at)
			VALUES (?, ?, ?, ?)
		`, room.ID, room.Name, toMicros(room.LastActivityAt), toMicros(room.CreatedAt)); err != nil {
			return err
		}
		return sqliteUpsertMembership(ctx, tx, creatorID, room.ID, room.CreatedAt)
	})
	if err != nil {
		r.log.Error("Failed to create room", "room_id", room.ID, "error", err)
		return apperrors.Store("create room", err)
	}
	return nil
}

func (r *sqliteDirectory) OpenDirectRoom(ctx context.Context, room *domain.Room, userA, userB string) error {
	first, second := sortedPair(userA, userB)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{first, second} {
			if _, err := sqliteEnsureUser(ctx, tx, id); err != nil {
				return err
			}
		}

		var activity, created int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO rooms (id, name, last_activity_at, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET last_activity_at = MAX(rooms.last_activity_at, excluded.last_activity_at)
			RETURNING name, last_activity_at, created_at
		`, room.ID, room.Name, toMicros(room.LastActivityAt), toMicros(room.CreatedAt)).Scan(
			&room.Name, &activity, &created,
		); err != nil {
			return err
		}
		room.LastActivityAt = fromMicros(activity)
		room.CreatedAt = fromMicros(created)

		for _, id := range []string{first, second} {
			if err := sqliteUpsertMembership(ctx, tx, id, room.ID, room.LastActivityAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to open direct room", "room_id", room.ID, "error", err)
		return apperrors.Store("open direct room", err)
	}
	return nil
}

func sqliteUpsertMembership(ctx context.Context, q sqlQuerier, userID, roomID string, joinedAt time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO memberships (user_id, room_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, room_id) DO NOTHING
	`, userID, roomID, toMicros(joinedAt))
	return err
}

func (r *sqliteDirectory) scanRoom(row interface{ Scan(...any) error }) (*domain.Room, error) {
	var (
		room              domain.Room
		activity, created int64
	)
	if err := row.Scan(&room.ID, &room.Name, &activity, &created); err != nil {
		return nil, err
	}
	room.LastActivityAt = fromMicros(activity)
	room.CreatedAt = fromMicros(created)
	return &room, nil
}

func (r *sqliteDirectory) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := r.scanRoom(r.db.QueryRowContext(ctx, `
		SELECT id, name, last_activity_at, created_at
		FROM rooms
		WHERE id = ?
	`, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to get room", "room_id", roomID, "error", err)
		return nil, apperrors.Store("get room", err)
	}
	return room, nil
}

func (r *sqliteDirectory) RenameRoom(ctx context.Context, roomID, name string) (*domain.Room, error) {
	room, err := r.scanRoom(r.db.QueryRowContext(ctx, `
		UPDATE rooms
		SET name = ?
		WHERE id = ?
		RETURNING id, name, last_activity_at, created_at
	`, name, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRoomNotFound
		}
		r.log.Error("Failed to rename room", "room_id", roomID, "error", err)
		return nil, apperrors.Store("rename room", err)
	}
	return room, nil
}

func (r *sqliteDirectory) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM memberships WHERE room_id = ? AND user_id = ?)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check membership", "room_id", roomID, "user_id", userID, "error", err)
		return false, apperrors.Store("check membership", err)
	}
	return exists, nil
}

func (r *sqliteDirectory) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.last_activity_at, r.created_at
		FROM rooms r
		JOIN memberships m ON m.room_id = r.id
		WHERE m.user_id = ?
		ORDER BY r.last_activity_at DESC, r.id
	`, userID)
	if err != nil {
		r.log.Error("Failed to list rooms", "user_id", userID, "error", err)
		return nil, apperrors.Store("list rooms", err)
	}
	defer rows.Close()

	rooms := []*domain.Room{}
	for rows.Next() {
		room, err := r.scanRoom(rows)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, apperrors.Store("scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate rooms", err)
	}
	return rooms, nil
}

func (r *sqliteDirectory) ListMembers(ctx context.Context, roomIDs []string) (map[string][]string, error) {
	members := make(map[string][]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return members, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, user_id
		FROM memberships
		WHERE room_id IN (`+placeholders(len(roomIDs))+`)
		ORDER BY room_id, user_id
	`, stringArgs(roomIDs)...)
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

func (r *sqliteDirectory) AppendMessage(ctx context.Context, msg *domain.Message) error {
	errNoRoom := errors.New("room vanished")

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var activity int64
		err := tx.QueryRowContext(ctx, `
			UPDATE rooms
			SET last_activity_at = MAX(last_activity_at, ?)
			WHERE id = ?
			RETURNING last_activity_at
		`, toMicros(msg.CreatedAt), msg.RoomID).Scan(&activity)
		if errors.Is(err, sql.ErrNoRows) {
			return errNoRoom
		}
		if err != nil {
			return err
		}

		stamp := fromMicros(activity)
		if err := sqliteUpsertMembership(ctx, tx, msg.SenderID, msg.RoomID, stamp); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, room_id, sender_id, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, msg.ID, msg.RoomID, msg.SenderID, msg.Text, activity); err != nil {
			return err
		}
		msg.CreatedAt = stamp
		return nil
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

func (r *sqliteDirectory) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*domain.MessageView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.text, m.created_at,
		       u.id, u.username, u.display_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "room_id", roomID, "error", err)
		return nil, apperrors.Store("list messages", err)
	}
	defer rows.Close()

	messages := []*domain.MessageView{}
	for rows.Next() {
		var (
			m       domain.MessageView
			created int64
			display sql.NullString
		)
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.Text, &created,
			&m.Sender.ID, &m.Sender.Username, &display,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, apperrors.Store("scan message", err)
		}
		m.CreatedAt = fromMicros(created)
		if display.Valid {
			m.Sender.DisplayName = &display.String
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterate messages", err)
	}
	return messages, nil
}

func (r *sqliteDirectory) Close() error {
	return r.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
