package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// PostgresRegistry is the registry backend for multi-node deployments. The
// partition layer stays file-local either way; only room metadata and
// membership are shared.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgreSQL registry with a connection pool.
func NewPostgresRegistry(ctx context.Context, databaseURL string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	r := &PostgresRegistry{pool: pool}
	if err := r.initSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRegistry) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id BIGSERIAL PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		uuid UUID UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		owner_uuid UUID NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		message_count BIGINT NOT NULL DEFAULT 0,
		participant_count BIGINT NOT NULL DEFAULT 0,
		last_message_at TIMESTAMPTZ,
		slow_mode_seconds INT NOT NULL DEFAULT 0,
		daily_message_cap INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id BIGINT NOT NULL,
		user_uuid UUID NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(room_id, user_uuid)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_room ON room_participants(room_id, status);
	`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

// Ping checks the database connection.
func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const pgRoomColumns = `id, code, uuid, title, owner_uuid, status, message_count,
	participant_count, last_message_at, slow_mode_seconds, daily_message_cap,
	created_at, updated_at`

func scanPgRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID,
		&room.Code,
		&room.UUID,
		&room.Title,
		&room.OwnerUUID,
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
	return room, nil
}

// CreateRoom creates a new room with a fresh UUID.
func (r *PostgresRegistry) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO rooms (code, uuid, title, owner_uuid, slow_mode_seconds, daily_message_cap)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+pgRoomColumns+`
	`, in.Code, uuid.New(), in.Title, in.OwnerUUID, in.SlowModeSeconds, in.DailyMessageCap)
	return scanPgRoom(row)
}

// GetRoom retrieves a room by ID.
func (r *PostgresRegistry) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room, err := scanPgRoom(r.pool.QueryRow(ctx, `
		SELECT `+pgRoomColumns+` FROM rooms WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// GetRoomByCode retrieves a room by its human code.
func (r *PostgresRegistry) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := scanPgRoom(r.pool.QueryRow(ctx, `
		SELECT `+pgRoomColumns+` FROM rooms WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves non-deleted rooms with pagination.
func (r *PostgresRegistry) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE status != 'deleted'`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+pgRoomColumns+`
		FROM rooms
		WHERE status != 'deleted'
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanPgRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, *room)
	}

	return rooms, total, rows.Err()
}

// UpdateRoomStatus sets a room's lifecycle status.
func (r *PostgresRegistry) UpdateRoomStatus(ctx context.Context, id int64, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	return err
}

// IncrementMessageCount increments the denormalized counter and stamps
// last_message_at. Not transactional with the partition insert.
func (r *PostgresRegistry) IncrementMessageCount(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1, last_message_at = $1, updated_at = $1
		WHERE id = $2
	`, at, id)
	return err
}

// SetMessageCount overwrites the counter; used by the out-of-band recount.
func (r *PostgresRegistry) SetMessageCount(ctx context.Context, id int64, count int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET message_count = $1, updated_at = NOW() WHERE id = $2
	`, count, id)
	return err
}

// CountRooms returns the total number of non-deleted rooms.
func (r *PostgresRegistry) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms WHERE status != 'deleted'`).Scan(&count)
	return count, err
}

// AddParticipant inserts or reactivates a membership row.
func (r *PostgresRegistry) AddParticipant(ctx context.Context, p *models.Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_uuid, display_name, avatar, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_uuid) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar = EXCLUDED.avatar,
			role = EXCLUDED.role,
			status = EXCLUDED.status
	`, p.RoomID, p.UserUUID, p.DisplayName, p.Avatar, p.Role, p.Status)
	if err != nil {
		return err
	}
	return r.refreshParticipantCount(ctx, p.RoomID)
}

// GetParticipant retrieves a membership row.
func (r *PostgresRegistry) GetParticipant(ctx context.Context, roomID int64, userUUID uuid.UUID) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.pool.QueryRow(ctx, `
		SELECT room_id, user_uuid, display_name, avatar, role, status, joined_at
		FROM room_participants WHERE room_id = $1 AND user_uuid = $2
	`, roomID, userUUID).Scan(
		&p.RoomID,
		&p.UserUUID,
		&p.DisplayName,
		&p.Avatar,
		&p.Role,
		&p.Status,
		&p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// SetParticipantStatus updates a membership status (active/left/banned).
func (r *PostgresRegistry) SetParticipantStatus(ctx context.Context, roomID int64, userUUID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE room_participants SET status = $1 WHERE room_id = $2 AND user_uuid = $3
	`, status, roomID, userUUID)
	if err != nil {
		return err
	}
	return r.refreshParticipantCount(ctx, roomID)
}

// ListActiveParticipants returns active members of a room.
func (r *PostgresRegistry) ListActiveParticipants(ctx context.Context, roomID int64) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT room_id, user_uuid, display_name, avatar, role, status, joined_at
		FROM room_participants
		WHERE room_id = $1 AND status = 'active'
		ORDER BY joined_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		err := rows.Scan(&p.RoomID, &p.UserUUID, &p.DisplayName, &p.Avatar, &p.Role, &p.Status, &p.JoinedAt)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (r *PostgresRegistry) refreshParticipantCount(ctx context.Context, roomID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET participant_count = (
			SELECT COUNT(*) FROM room_participants
			WHERE room_id = $1 AND status = 'active'
		) WHERE id = $1
	`, roomID)
	return err
}
