// Package events builds the push-format frames delivered to streaming
// clients. Events are transient: built, written to the wire, forgotten.
package events

import (
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// Wire event names.
const (
	EventConnected          = "connected"
	EventMessageSent        = "message.sent"
	EventUserTyping         = "user.typing"
	EventParticipantsUpdate = "participants_update"
	EventHeartbeat          = "heartbeat"
	EventError              = "error"
)

// MessagePayload is the message body inside a message.sent frame. IsMine is
// computed per recipient, so the same row produces different frames for
// different connections.
type MessagePayload struct {
	ID           int64  `json:"id"`
	Content      string `json:"content"`
	Type         string `json:"message_type"`
	SenderUUID   string `json:"sender_uuid,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`
	ReplyToID    *int64 `json:"reply_to_id,omitempty"`
	ThreadRootID *int64 `json:"thread_root_id,omitempty"`
	IsSystem     bool   `json:"is_system,omitempty"`
	IsMine       bool   `json:"is_mine"`
	CreatedAt    string `json:"created_at"`
}

// MessageSent builds a message.sent frame for one recipient.
func MessageSent(roomID int64, m *models.Message, isMine bool) Frame {
	return Frame{
		Event: EventMessageSent,
		Data: map[string]any{
			"type":    "message",
			"room_id": roomID,
			"message": MessagePayload{
				ID:           m.ID,
				Content:      m.Content,
				Type:         m.Type,
				SenderUUID:   m.SenderUUID,
				SenderName:   m.SenderName,
				ReplyToID:    m.ReplyToID,
				ThreadRootID: m.ThreadRootID,
				IsSystem:     m.IsSystem,
				IsMine:       isMine,
				CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
			},
		},
	}
}

// UserTyping builds a user.typing frame.
func UserTyping(ev models.TypingEvent) Frame {
	return Frame{
		Event: EventUserTyping,
		Data: map[string]any{
			"type":      "typing",
			"room_id":   ev.RoomID,
			"user_uuid": ev.UserUUID,
			"action":    ev.Action,
		},
	}
}

// ParticipantsUpdate builds a roster frame.
func ParticipantsUpdate(roomID int64, roster []models.RosterEntry) Frame {
	if roster == nil {
		roster = []models.RosterEntry{}
	}
	return Frame{
		Event: EventParticipantsUpdate,
		Data: map[string]any{
			"type":         "participants",
			"room_id":      roomID,
			"participants": roster,
		},
	}
}

// Heartbeat builds a keep-alive frame; intermediary proxies see traffic and
// keep the connection open.
func Heartbeat(at time.Time) Frame {
	return Frame{
		Event: EventHeartbeat,
		Data:  map[string]any{"timestamp": at.UTC().Format(time.RFC3339)},
	}
}

// Connected builds the frame emitted on entry to the streaming state.
func Connected(roomID int64) Frame {
	return Frame{
		Event: EventConnected,
		Data:  map[string]any{"room_id": roomID},
	}
}

// StreamError builds a structured error frame for the client.
func StreamError(detail string) Frame {
	return Frame{
		Event: EventError,
		Data:  map[string]any{"error": detail},
	}
}
