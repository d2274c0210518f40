package models

import "time"

// Message types.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeFile   = "file"
	TypeVoice  = "voice"
	TypeVideo  = "video"
	TypeSystem = "system"
)

// ValidMessageType reports whether t is a recognized message type.
func ValidMessageType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeVoice, TypeVideo, TypeSystem:
		return true
	}
	return false
}

// Message is a row in a room partition. IDs are partition-local and strictly
// increasing in insertion order. ReplyToID and ThreadRootID reference ids
// within the same partition; they stay valid after the referenced row is
// soft-deleted.
type Message struct {
	ID               int64     `json:"id"`
	SenderUUID       string    `json:"sender_uuid,omitempty"` // empty for system messages
	SenderName       string    `json:"sender_name,omitempty"`
	Type             string    `json:"type"`
	Content          string    `json:"content"`
	ContentEncrypted string    `json:"content_encrypted,omitempty"`
	ReplyToID        *int64    `json:"reply_to_id,omitempty"`
	ThreadRootID     *int64    `json:"thread_root_id,omitempty"`
	IsEdited         bool      `json:"is_edited"`
	IsDeleted        bool      `json:"is_deleted"`
	IsPinned         bool      `json:"is_pinned"`
	IsSystem         bool      `json:"is_system"`
	Reactions        string    `json:"reactions,omitempty"` // JSON object, emoji -> count
	Mentions         string    `json:"mentions,omitempty"`  // JSON array of user uuids
	ReplyCount       int64     `json:"reply_count"`
	ReactionCount    int64     `json:"reaction_count"`
	ReadCount        int64     `json:"read_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MessageRead is a read receipt, unique per (message, reader).
type MessageRead struct {
	ID         int64     `json:"id"`
	MessageID  int64     `json:"message_id"`
	ReaderUUID string    `json:"reader_uuid"`
	ReadAt     time.Time `json:"read_at"`
}

// Translation is a cached translation of a message.
type Translation struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	Locale    string    `json:"locale"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is file metadata attached to a message. The bytes themselves
// live outside this system.
type Attachment struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	MimeType  string    `json:"mime_type,omitempty"`
	ByteSize  int64     `json:"byte_size"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyStats is one row of a partition's room_daily_stats table.
type DailyStats struct {
	Date          string `json:"date"` // YYYY-MM-DD
	MessageCount  int64  `json:"message_count"`
	ActiveSenders int64  `json:"active_senders"`
	FileCount     int64  `json:"file_count"`
}

// Typing actions.
const (
	TypingStart = "start"
	TypingStop  = "stop"
)

// TypingEvent is a transient typing indicator, never persisted.
type TypingEvent struct {
	RoomID   int64     `json:"room_id"`
	UserUUID string    `json:"user_uuid"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}
