package models

import (
	"time"

	"github.com/google/uuid"
)

// Room statuses.
const (
	RoomActive   = "active"
	RoomArchived = "archived"
	RoomDeleted  = "deleted"
)

// Room is a row in the central registry. Counters are denormalized display
// aggregates; the partition is the source of truth for message data.
type Room struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	UUID             uuid.UUID  `json:"uuid"`
	Title            string     `json:"title"`
	OwnerUUID        uuid.UUID  `json:"owner_uuid"`
	Status           string     `json:"status"`
	MessageCount     int64      `json:"message_count"`
	ParticipantCount int64      `json:"participant_count"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	SlowModeSeconds  int        `json:"slow_mode_seconds"`
	DailyMessageCap  int        `json:"daily_message_cap"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Participant statuses and roles.
const (
	ParticipantActive = "active"
	ParticipantLeft   = "left"
	ParticipantBanned = "banned"

	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Participant is a room membership row in the central registry.
type Participant struct {
	RoomID      int64     `json:"room_id"`
	UserUUID    uuid.UUID `json:"user_uuid"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joined_at"`
}

// CanPost reports whether the participant may write or subscribe.
func (p *Participant) CanPost() bool {
	return p != nil && p.Status == ParticipantActive
}

// RosterEntry is one participant in a participants_update frame.
type RosterEntry struct {
	UserUUID    string `json:"user_uuid"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role"`
	Online      bool   `json:"online"`
}
