package handlers

import (
	"errors"
	"net/http"

	"github.com/jinyphp/chat-sub002/internal/api/middleware"
	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/events"
	"github.com/jinyphp/chat-sub002/internal/partition"
)

// sseSink adapts an http.ResponseWriter to the stream.Sink interface. The
// SSE headers go out on the first frame, so an authorization failure inside
// the delivery loop can still surface as a plain JSON error response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) WriteFrame(f events.Frame) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := f.WriteTo(s.w); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream handles the long-lived delivery connection (authenticated). The
// connection stays open until the client disconnects; events arrive as
// `event: <name>\ndata: <json>\n\n` frames.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sink := &sseSink{w: w, flusher: flusher}
	if err := h.stream.Serve(r.Context(), sink, roomID, identity); err != nil {
		if sink.started {
			// Frames already went out; the loop logged the failure and the
			// connection is gone either way.
			return
		}
		var authErr *chat.AuthorizationError
		if errors.As(err, &authErr) {
			h.Error(w, http.StatusForbidden, authErr.Reason)
			return
		}
		var provErr *partition.ProvisioningError
		if errors.As(err, &provErr) {
			h.Error(w, http.StatusServiceUnavailable, "room storage unavailable")
			return
		}
		h.logger.Error().Err(err).Int64("room_id", roomID).Msg("stream setup failed")
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
