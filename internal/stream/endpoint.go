// Package stream implements the long-lived delivery connection: a per-client
// loop that polls the room partition for new rows and pushes frames until
// the client goes away. There is no shared in-process event bus; writer and
// readers coordinate only through the partition file, trading up to a poll
// interval of latency for operational simplicity.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/events"
	"github.com/jinyphp/chat-sub002/internal/metrics"
	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
)

// pollLimit bounds how many rows one poll iteration delivers.
const pollLimit = 200

// Partition is the slice of a room partition the delivery loop reads.
type Partition interface {
	MessagesAfter(ctx context.Context, lastID int64, limit int) ([]models.Message, error)
	LatestMessageID(ctx context.Context) (int64, error)
}

// Opener resolves a room's partition. Satisfied by the provisioner via
// ProvisionerOpener; faked in tests to assert no partition access happens
// before authorization.
type Opener interface {
	Open(ctx context.Context, roomID int64, createdAt time.Time) (Partition, error)
}

// ProvisionerOpener adapts *partition.Provisioner to the Opener interface.
type ProvisionerOpener struct {
	Provisioner *partition.Provisioner
}

func (o ProvisionerOpener) Open(ctx context.Context, roomID int64, createdAt time.Time) (Partition, error) {
	return o.Provisioner.Open(ctx, roomID, createdAt)
}

// Sink receives encoded frames. The HTTP layer wraps the response writer and
// flusher; tests use a buffer.
type Sink interface {
	WriteFrame(f events.Frame) error
}

// Endpoint serves streaming connections. Each connection walks the states
// Connecting -> Streaming -> Closed; Closed only releases per-connection
// resources and never touches the partition.
type Endpoint struct {
	registry store.Registry
	opener   Opener
	presence presence.Store
	logger   zerolog.Logger

	pollInterval      time.Duration
	rosterInterval    time.Duration
	heartbeatInterval time.Duration
}

// NewEndpoint creates a streaming endpoint.
func NewEndpoint(registry store.Registry, opener Opener, pres presence.Store, logger zerolog.Logger, poll, roster, heartbeat time.Duration) *Endpoint {
	if poll <= 0 {
		poll = time.Second
	}
	if roster <= 0 {
		roster = 30 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Endpoint{
		registry:          registry,
		opener:            opener,
		presence:          pres,
		logger:            logger,
		pollInterval:      poll,
		rosterInterval:    roster,
		heartbeatInterval: heartbeat,
	}
}

// Serve runs one connection until the client disconnects (ctx cancellation)
// or the sink fails. The Connecting state authorizes the identity against
// the registry before any partition access; an unauthorized caller never
// causes a partition open.
func (e *Endpoint) Serve(ctx context.Context, sink Sink, roomID int64, identity *models.Identity) error {
	connID := ulid.Make().String()
	logger := e.logger.With().
		Str("conn_id", connID).
		Int64("room_id", roomID).
		Str("user_uuid", identity.UUID.String()).
		Logger()

	// Connecting: authorize first, open the partition second.
	room, err := e.registry.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || room.Status != models.RoomActive {
		return &chat.AuthorizationError{Reason: "room not available"}
	}

	p, err := e.registry.GetParticipant(ctx, roomID, identity.UUID)
	if err != nil {
		return err
	}
	if !p.CanPost() {
		return &chat.AuthorizationError{Reason: "not an active participant"}
	}

	part, err := e.opener.Open(ctx, roomID, room.CreatedAt)
	if err != nil {
		return err
	}

	lastID, err := part.LatestMessageID(ctx)
	if err != nil {
		return err
	}

	// Streaming.
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()
	logger.Info().Int64("last_id", lastID).Msg("stream opened")

	if err := e.emit(sink, events.Connected(roomID)); err != nil {
		return err
	}
	e.presence.Heartbeat(ctx, roomID, identity.UUID.String())

	poll := time.NewTicker(e.pollInterval)
	defer poll.Stop()
	roster := time.NewTicker(e.rosterInterval)
	defer roster.Stop()
	heartbeat := time.NewTicker(e.heartbeatInterval)
	defer heartbeat.Stop()

	typingMark := time.Now()

	for {
		select {
		case <-ctx.Done():
			// Closed: client disconnect detected; nothing to tear down
			// beyond the tickers.
			logger.Info().Msg("stream closed")
			return nil

		case <-poll.C:
			// The select may pick a pending tick over ctx.Done(); a
			// cancelled context is a normal disconnect, not a read error.
			if ctx.Err() != nil {
				logger.Info().Msg("stream closed")
				return nil
			}
			lastID, typingMark, err = e.pollOnce(ctx, sink, part, roomID, identity, lastID, typingMark)
			if err != nil {
				logger.Error().Err(err).Msg("stream write failed")
				return err
			}

		case <-roster.C:
			e.presence.Heartbeat(ctx, roomID, identity.UUID.String())
			entries, rerr := e.roster(ctx, roomID)
			if rerr != nil {
				if err := e.reportError(sink, logger, rerr); err != nil {
					return err
				}
				continue
			}
			if err := e.emit(sink, events.ParticipantsUpdate(roomID, entries)); err != nil {
				logger.Error().Err(err).Msg("stream write failed")
				return err
			}

		case <-heartbeat.C:
			if err := e.emit(sink, events.Heartbeat(time.Now())); err != nil {
				logger.Error().Err(err).Msg("stream write failed")
				return err
			}
		}
	}
}

// pollOnce delivers new messages and typing transitions. Data-source errors
// are reported to the client without ending the stream; only a sink failure
// propagates.
func (e *Endpoint) pollOnce(ctx context.Context, sink Sink, part Partition, roomID int64, identity *models.Identity, lastID int64, typingMark time.Time) (int64, time.Time, error) {
	msgs, err := part.MessagesAfter(ctx, lastID, pollLimit)
	if err != nil {
		if ctx.Err() != nil {
			return lastID, typingMark, nil
		}
		if werr := e.reportError(sink, e.logger, err); werr != nil {
			return lastID, typingMark, werr
		}
		return lastID, typingMark, nil
	}
	for i := range msgs {
		m := &msgs[i]
		isMine := m.SenderUUID != "" && m.SenderUUID == identity.UUID.String()
		if err := e.emit(sink, events.MessageSent(roomID, m, isMine)); err != nil {
			return lastID, typingMark, err
		}
		lastID = m.ID
	}

	typing, err := e.presence.TypingAfter(ctx, roomID, typingMark)
	if err != nil {
		if ctx.Err() != nil {
			return lastID, typingMark, nil
		}
		if werr := e.reportError(sink, e.logger, err); werr != nil {
			return lastID, typingMark, werr
		}
		return lastID, typingMark, nil
	}
	for _, ev := range typing {
		// Echo suppression: the typist already knows.
		if ev.UserUUID == identity.UUID.String() {
			if ev.At.After(typingMark) {
				typingMark = ev.At
			}
			continue
		}
		if err := e.emit(sink, events.UserTyping(ev)); err != nil {
			return lastID, typingMark, err
		}
		if ev.At.After(typingMark) {
			typingMark = ev.At
		}
	}

	return lastID, typingMark, nil
}

// roster recomputes the active participant list with online flags.
func (e *Endpoint) roster(ctx context.Context, roomID int64) ([]models.RosterEntry, error) {
	participants, err := e.registry.ListActiveParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	online, err := e.presence.Online(ctx, roomID)
	if err != nil {
		return nil, err
	}

	onlineSet := make(map[string]bool, len(online))
	for _, u := range online {
		onlineSet[u] = true
	}

	entries := make([]models.RosterEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, models.RosterEntry{
			UserUUID:    p.UserUUID.String(),
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Role:        p.Role,
			Online:      onlineSet[p.UserUUID.String()],
		})
	}
	return entries, nil
}

func (e *Endpoint) emit(sink Sink, f events.Frame) error {
	if err := sink.WriteFrame(f); err != nil {
		return err
	}
	metrics.FramesSent.WithLabelValues(f.Event).Inc()
	return nil
}

// reportError logs a streaming-iteration error and forwards it to the client
// as an error frame. The loop continues afterwards: transient partition or
// presence failures must not kill the connection. A failure to write the
// error frame itself means the client is gone and is returned.
func (e *Endpoint) reportError(sink Sink, logger zerolog.Logger, cause error) error {
	metrics.StreamErrors.Inc()
	logger.Error().Err(cause).Msg("streaming iteration failed")

	detail := "internal error"
	var se *partition.StorageError
	if errors.As(cause, &se) {
		detail = "storage unavailable"
	}
	return e.emit(sink, events.StreamError(detail))
}
