package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jinyphp/chat-sub002/internal/api/middleware"
)

// BroadcastAuthRequest represents a channel subscription authorization request.
type BroadcastAuthRequest struct {
	ChannelName string `json:"channel_name"`
	SocketID    string `json:"socket_id,omitempty"`
}

// BroadcastAuth authorizes a subscription to a named channel (authenticated).
// Grants carry only the subscriber's public profile; rejections carry nothing.
func (h *Handler) BroadcastAuth(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req BroadcastAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelName == "" {
		h.Error(w, http.StatusBadRequest, "channel_name is required")
		return
	}

	profile, ok := h.channels.Authorize(r.Context(), identity, req.ChannelName)
	if !ok {
		h.Error(w, http.StatusForbidden, "channel access denied")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"channel_name": req.ChannelName,
		"profile":      profile,
	})
}
