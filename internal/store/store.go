package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// CreateRoomInput carries the caller-supplied fields for a new room.
type CreateRoomInput struct {
	Code            string
	Title           string
	OwnerUUID       uuid.UUID
	SlowModeSeconds int
	DailyMessageCap int
}

// Registry defines the interface for the central room registry.
// Both PostgresRegistry and SQLiteRegistry implement this interface.
// Counters held here are denormalized display aggregates; the per-room
// partition is the source of truth for message data.
type Registry interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	UpdateRoomStatus(ctx context.Context, id int64, status string) error
	IncrementMessageCount(ctx context.Context, id int64, at time.Time) error
	SetMessageCount(ctx context.Context, id int64, count int64) error
	CountRooms(ctx context.Context) (int64, error)

	// Participant operations
	AddParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, roomID int64, userUUID uuid.UUID) (*models.Participant, error)
	SetParticipantStatus(ctx context.Context, roomID int64, userUUID uuid.UUID, status string) error
	ListActiveParticipants(ctx context.Context, roomID int64) ([]models.Participant, error)
}
