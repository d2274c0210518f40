package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// SQLiteRegistry is the file-backed registry used in development and
// single-node deployments.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry creates a new SQLite registry.
// If dbPath is empty, defaults to "./data/registry.db"
func NewSQLiteRegistry(ctx context.Context, dbPath string) (*SQLiteRegistry, error) {
	if dbPath == "" {
		dbPath = "./data/registry.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	r := &SQLiteRegistry{db: db}

	// Initialize schema
	if err := r.initSchema(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// initSchema creates tables if they don't exist.
func (r *SQLiteRegistry) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		uuid TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		owner_uuid TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		message_count INTEGER NOT NULL DEFAULT 0,
		participant_count INTEGER NOT NULL DEFAULT 0,
		last_message_at DATETIME,
		slow_mode_seconds INTEGER NOT NULL DEFAULT 0,
		daily_message_cap INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id INTEGER NOT NULL,
		user_uuid TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		joined_at DATETIME NOT NULL,
		UNIQUE(room_id, user_uuid)
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_code ON rooms(code);
	CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);
	CREATE INDEX IF NOT EXISTS idx_participants_room ON room_participants(room_id, status);
	`

	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() {
	r.db.Close()
}

// Ping checks the database connection.
func (r *SQLiteRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const roomColumns = `id, code, uuid, title, owner_uuid, status, message_count,
	participant_count, last_message_at, slow_mode_seconds, daily_message_cap,
	created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*models.Room, error) {
	room := &models.Room{}
	var uuidStr, ownerStr string
	err := row.Scan(
		&room.ID,
		&room.Code,
		&uuidStr,
		&room.Title,
		&ownerStr,
		&room.Status,
		&room.MessageCount,
		&room.ParticipantCount,
		&room.LastMessageAt,
		&room.SlowModeSeconds,
		&room.DailyMessageCap,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	room.UUID = uuid.MustParse(uuidStr)
	room.OwnerUUID = uuid.MustParse(ownerStr)
	return room, nil
}

// CreateRoom creates a new room with a fresh UUID.
func (r *SQLiteRegistry) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (code, uuid, title, owner_uuid, status, slow_mode_seconds, daily_message_cap, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?, ?, ?)
	`, in.Code, uuid.New().String(), in.Title, in.OwnerUUID.String(),
		in.SlowModeSeconds, in.DailyMessageCap, now, now)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetRoom(ctx, id)
}

// GetRoom retrieves a room by ID.
func (r *SQLiteRegistry) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// GetRoomByCode retrieves a room by its human code.
func (r *SQLiteRegistry) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE code = ?
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves non-deleted rooms with pagination.
func (r *SQLiteRegistry) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE status != 'deleted'`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE status != 'deleted'
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, *room)
	}

	return rooms, total, rows.Err()
}

// UpdateRoomStatus sets a room's lifecycle status.
func (r *SQLiteRegistry) UpdateRoomStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	return err
}

// IncrementMessageCount increments the denormalized counter and stamps
// last_message_at. Not transactional with the partition insert.
func (r *SQLiteRegistry) IncrementMessageCount(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`, at, at, id)
	return err
}

// SetMessageCount overwrites the counter; used by the out-of-band recount.
func (r *SQLiteRegistry) SetMessageCount(ctx context.Context, id int64, count int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET message_count = ?, updated_at = ? WHERE id = ?
	`, count, time.Now().UTC(), id)
	return err
}

// CountRooms returns the total number of non-deleted rooms.
func (r *SQLiteRegistry) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE status != 'deleted'`).Scan(&count)
	return count, err
}

// AddParticipant inserts or reactivates a membership row.
func (r *SQLiteRegistry) AddParticipant(ctx context.Context, p *models.Participant) error {
	now := time.Now().UTC()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO room_participants (room_id, user_uuid, display_name, avatar, role, status, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, user_uuid) DO UPDATE SET
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			role = excluded.role,
			status = excluded.status
	`, p.RoomID, p.UserUUID.String(), p.DisplayName, p.Avatar, p.Role, p.Status, p.JoinedAt)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE rooms SET participant_count = (
			SELECT COUNT(*) FROM room_participants
			WHERE room_id = ? AND status = 'active'
		) WHERE id = ?
	`, p.RoomID, p.RoomID)
	return err
}

// GetParticipant retrieves a membership row.
func (r *SQLiteRegistry) GetParticipant(ctx context.Context, roomID int64, userUUID uuid.UUID) (*models.Participant, error) {
	p := &models.Participant{}
	var userStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT room_id, user_uuid, display_name, avatar, role, status, joined_at
		FROM room_participants WHERE room_id = ? AND user_uuid = ?
	`, roomID, userUUID.String()).Scan(
		&p.RoomID,
		&userStr,
		&p.DisplayName,
		&p.Avatar,
		&p.Role,
		&p.Status,
		&p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.UserUUID = uuid.MustParse(userStr)
	return p, nil
}

// SetParticipantStatus updates a membership status (active/left/banned).
func (r *SQLiteRegistry) SetParticipantStatus(ctx context.Context, roomID int64, userUUID uuid.UUID, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE room_participants SET status = ? WHERE room_id = ? AND user_uuid = ?
	`, status, roomID, userUUID.String())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE rooms SET participant_count = (
			SELECT COUNT(*) FROM room_participants
			WHERE room_id = ? AND status = 'active'
		) WHERE id = ?
	`, roomID, roomID)
	return err
}

// ListActiveParticipants returns active members of a room.
func (r *SQLiteRegistry) ListActiveParticipants(ctx context.Context, roomID int64) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, user_uuid, display_name, avatar, role, status, joined_at
		FROM room_participants
		WHERE room_id = ? AND status = 'active'
		ORDER BY joined_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var userStr string
		err := rows.Scan(&p.RoomID, &userStr, &p.DisplayName, &p.Avatar, &p.Role, &p.Status, &p.JoinedAt)
		if err != nil {
			return nil, err
		}
		p.UserUUID = uuid.MustParse(userStr)
		participants = append(participants, p)
	}

	return participants, rows.Err()
}
