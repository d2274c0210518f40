// Package chat implements the message write path: validation, per-room
// policy, the partition append, and the denormalized registry counters.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/metrics"
	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
)

// Service validates and appends messages into room partitions.
type Service struct {
	registry    store.Registry
	provisioner *partition.Provisioner
	presence    presence.Store
	maxLength   int
	logger      zerolog.Logger
}

// NewService creates a message write service.
func NewService(registry store.Registry, prov *partition.Provisioner, pres presence.Store, maxLength int, logger zerolog.Logger) *Service {
	if maxLength <= 0 {
		maxLength = 4096
	}
	return &Service{
		registry:    registry,
		provisioner: prov,
		presence:    pres,
		maxLength:   maxLength,
		logger:      logger,
	}
}

// AppendInput carries the caller-supplied fields of a new message.
type AppendInput struct {
	Type             string
	Content          string
	ContentEncrypted string
	ReplyToID        *int64
	Mentions         string // JSON array of user uuids
}

// Append validates the payload and per-room policy, then persists the
// message and returns it with its partition-local id filled in. A nil sender
// is a system message and bypasses every policy check. No partial
// persistence: every check runs before the first write.
func (s *Service) Append(ctx context.Context, roomID int64, sender *models.Identity, in AppendInput) (*models.Message, error) {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %d: %w", roomID, err)
	}
	if room == nil || room.Status != models.RoomActive {
		return nil, &ValidationError{Field: "room", Reason: "not found or inactive"}
	}

	if in.Type == "" {
		in.Type = models.TypeText
	}
	if sender == nil {
		in.Type = models.TypeSystem
	}
	if !models.ValidMessageType(in.Type) {
		metrics.PolicyRejections.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Field: "type", Reason: "unrecognized"}
	}
	if in.Content == "" {
		metrics.PolicyRejections.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Field: "content", Reason: "is required"}
	}
	if len(in.Content) > s.maxLength {
		metrics.PolicyRejections.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d bytes", s.maxLength)}
	}

	var senderName string
	if sender != nil {
		p, err := s.registry.GetParticipant(ctx, roomID, sender.UUID)
		if err != nil {
			return nil, fmt.Errorf("load participant: %w", err)
		}
		if p == nil || p.Status == models.ParticipantLeft {
			metrics.PolicyRejections.WithLabelValues("banned").Inc()
			return nil, &AuthorizationError{Reason: "not a participant"}
		}
		if p.Status == models.ParticipantBanned {
			metrics.PolicyRejections.WithLabelValues("banned").Inc()
			return nil, &AuthorizationError{Reason: "banned"}
		}
		senderName = p.DisplayName
	}

	part, err := s.provisioner.Open(ctx, roomID, room.CreatedAt)
	if err != nil {
		return nil, err
	}

	if sender != nil {
		if err := s.checkSlowMode(ctx, room, part, sender.UUID.String()); err != nil {
			return nil, err
		}
		if err := s.checkDailyCap(ctx, room, part); err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		Type:             in.Type,
		Content:          in.Content,
		ContentEncrypted: in.ContentEncrypted,
		ReplyToID:        in.ReplyToID,
		Mentions:         in.Mentions,
		IsSystem:         sender == nil,
	}
	if sender != nil {
		msg.SenderUUID = sender.UUID.String()
		msg.SenderName = senderName
	}

	if in.ReplyToID != nil {
		// Replying to a soft-deleted message is permitted; only a dangling id
		// is rejected. The thread root is inherited from the parent.
		parent, err := part.GetMessage(ctx, *in.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, &ValidationError{Field: "reply_to_id", Reason: "not found in this room"}
		}
		if parent.ThreadRootID != nil {
			msg.ThreadRootID = parent.ThreadRootID
		} else {
			msg.ThreadRootID = &parent.ID
		}
	}

	if err := part.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := part.BumpDailyStats(ctx, msg.CreatedAt.Format("2006-01-02")); err != nil {
		s.logger.Error().Err(err).Int64("room_id", roomID).Msg("daily stats update failed")
	}

	// The registry counter lives outside the partition transaction; a crash
	// here leaves it stale. It is a display aggregate, reconciled by the
	// out-of-band recount.
	if err := s.registry.IncrementMessageCount(ctx, roomID, msg.CreatedAt); err != nil {
		s.logger.Error().Err(err).Int64("room_id", roomID).Msg("registry counter update failed")
	}

	metrics.MessagesAppended.WithLabelValues(msg.Type).Inc()
	return msg, nil
}

func (s *Service) checkSlowMode(ctx context.Context, room *models.Room, part *partition.Partition, senderUUID string) error {
	if room.SlowModeSeconds <= 0 {
		return nil
	}

	last, err := part.LastMessageTimeBySender(ctx, senderUUID)
	if err != nil {
		return err
	}
	if last == nil {
		return nil
	}

	cooldown := time.Duration(room.SlowModeSeconds) * time.Second
	elapsed := time.Since(*last)
	if elapsed < cooldown {
		metrics.PolicyRejections.WithLabelValues(PolicySlowMode).Inc()
		return &PolicyError{Reason: PolicySlowMode, RetryAfter: cooldown - elapsed}
	}
	return nil
}

func (s *Service) checkDailyCap(ctx context.Context, room *models.Room, part *partition.Partition) error {
	if room.DailyMessageCap <= 0 {
		return nil
	}

	stats, err := part.DailyStats(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		return err
	}
	if stats.MessageCount >= int64(room.DailyMessageCap) {
		metrics.PolicyRejections.WithLabelValues(PolicyDailyCap).Inc()
		return &PolicyError{Reason: PolicyDailyCap}
	}
	return nil
}

// MarkRead records a read receipt in the room's partition. First read
// inserts, repeats are no-ops.
func (s *Service) MarkRead(ctx context.Context, roomID int64, reader *models.Identity, messageID int64) error {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load room %d: %w", roomID, err)
	}
	if room == nil {
		return &ValidationError{Field: "room", Reason: "not found"}
	}

	p, err := s.registry.GetParticipant(ctx, roomID, reader.UUID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if !p.CanPost() {
		return &AuthorizationError{Reason: "not an active participant"}
	}

	part, err := s.provisioner.Open(ctx, roomID, room.CreatedAt)
	if err != nil {
		return err
	}
	_, err = part.MarkRead(ctx, messageID, reader.UUID.String())
	return err
}

// Typing publishes a transient typing indicator for delivery to the room's
// streaming clients.
func (s *Service) Typing(ctx context.Context, roomID int64, identity *models.Identity, action string) error {
	if action != models.TypingStart && action != models.TypingStop {
		return &ValidationError{Field: "action", Reason: `must be "start" or "stop"`}
	}

	p, err := s.registry.GetParticipant(ctx, roomID, identity.UUID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if !p.CanPost() {
		return &AuthorizationError{Reason: "not an active participant"}
	}

	return s.presence.PublishTyping(ctx, models.TypingEvent{
		RoomID:   roomID,
		UserUUID: identity.UUID.String(),
		Action:   action,
		At:       time.Now(),
	})
}

// Recount recomputes a room's registry message counter from its partition.
// This is the out-of-band reconciliation for the eventual-consistency gap
// between partition rows and the denormalized counter.
func (s *Service) Recount(ctx context.Context, roomID int64) (int64, error) {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("load room %d: %w", roomID, err)
	}
	if room == nil {
		return 0, &ValidationError{Field: "room", Reason: "not found"}
	}

	part, err := s.provisioner.Open(ctx, roomID, room.CreatedAt)
	if err != nil {
		return 0, err
	}
	n, err := part.CountMessages(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.registry.SetMessageCount(ctx, roomID, n); err != nil {
		return 0, err
	}
	return n, nil
}
