package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/channels"
	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
	"github.com/jinyphp/chat-sub002/internal/stream"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	registry    store.Registry
	provisioner *partition.Provisioner
	presence    presence.Store
	chat        *chat.Service
	stream      *stream.Endpoint
	channels    *channels.Authorizer
	logger      zerolog.Logger
}

// NewHandler creates a new Handler with the given collaborators.
func NewHandler(registry store.Registry, prov *partition.Provisioner, pres presence.Store, chatSvc *chat.Service, streamEp *stream.Endpoint, auth *channels.Authorizer, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		provisioner: prov,
		presence:    pres,
		chat:        chatSvc,
		stream:      streamEp,
		channels:    auth,
		logger:      logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ServiceError maps domain errors onto HTTP responses. Storage and
// provisioning failures stay opaque to the caller.
func (h *Handler) ServiceError(w http.ResponseWriter, err error) {
	var validationErr *chat.ValidationError
	var policyErr *chat.PolicyError
	var authErr *chat.AuthorizationError

	switch {
	case errors.As(err, &validationErr):
		h.Error(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.As(err, &policyErr):
		if policyErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(policyErr.RetryAfter.Seconds())+1))
		}
		h.Error(w, http.StatusTooManyRequests, policyErr.Error())
	case errors.As(err, &authErr):
		h.Error(w, http.StatusForbidden, authErr.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// roomIDParam parses the {id} URL parameter.
func roomIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
