// Package presence tracks which participants are currently online in a room
// and relays transient typing indicators. Nothing here is durable; partition
// files never see this data.
package presence

import (
	"context"
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// onlineWindow is how long after the last heartbeat a user counts as online.
const onlineWindow = 90 * time.Second

// typingRetention bounds how long typing events stay queryable.
const typingRetention = 30 * time.Second

// Store is the presence backend. RedisStore serves deployments where stream
// connections span processes; MemoryStore serves development and tests.
type Store interface {
	// Heartbeat marks the user as online in the room.
	Heartbeat(ctx context.Context, roomID int64, userUUID string) error
	// Online returns the user uuids currently online in the room.
	Online(ctx context.Context, roomID int64) ([]string, error)
	// PublishTyping records a typing start/stop transition.
	PublishTyping(ctx context.Context, ev models.TypingEvent) error
	// TypingAfter returns typing events recorded strictly after since.
	TypingAfter(ctx context.Context, roomID int64, since time.Time) ([]models.TypingEvent, error)
	// Close releases backend resources.
	Close() error
}
