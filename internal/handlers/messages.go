package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jinyphp/chat-sub002/internal/api/middleware"
	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/models"
)

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Type             string `json:"type,omitempty"`
	Content          string `json:"content"`
	ContentEncrypted string `json:"content_encrypted,omitempty"`
	ReplyToID        *int64 `json:"reply_to_id,omitempty"`
	Mentions         string `json:"mentions,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	SenderUUID   string `json:"sender_uuid,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`
	ReplyToID    *int64 `json:"reply_to_id,omitempty"`
	ThreadRootID *int64 `json:"thread_root_id,omitempty"`
	IsDeleted    bool   `json:"is_deleted"`
	IsSystem     bool   `json:"is_system"`
	ReplyCount   int64  `json:"reply_count"`
	ReadCount    int64  `json:"read_count"`
	CreatedAt    string `json:"created_at"`
}

func messageResponse(m *models.Message) MessageResponse {
	resp := MessageResponse{
		ID:           m.ID,
		Type:         m.Type,
		Content:      m.Content,
		SenderUUID:   m.SenderUUID,
		SenderName:   m.SenderName,
		ReplyToID:    m.ReplyToID,
		ThreadRootID: m.ThreadRootID,
		IsDeleted:    m.IsDeleted,
		IsSystem:     m.IsSystem,
		ReplyCount:   m.ReplyCount,
		ReadCount:    m.ReadCount,
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
	}
	// Soft-deleted rows still resolve for thread rendering, but their
	// content does not leave the server.
	if m.IsDeleted {
		resp.Content = ""
	}
	return resp
}

// PostMessage handles appending a message to a room (authenticated).
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
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

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Append(r.Context(), roomID, identity, chat.AppendInput{
		Type:             req.Type,
		Content:          req.Content,
		ContentEncrypted: req.ContentEncrypted,
		ReplyToID:        req.ReplyToID,
		Mentions:         req.Mentions,
	})
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, messageResponse(msg))
}

// GetMessages handles fetching messages appended after a known id
// (authenticated, participants only).
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
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

	room, err := h.registry.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	p, err := h.registry.GetParticipant(r.Context(), roomID, identity.UUID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !p.CanPost() {
		h.Error(w, http.StatusForbidden, "not an active participant")
		return
	}

	var after int64
	if a, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64); err == nil && a >= 0 {
		after = a
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 200 {
		limit = 200
	}

	part, err := h.provisioner.Open(r.Context(), roomID, room.CreatedAt)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	msgs, err := part.MessagesAfter(r.Context(), after, limit)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	responses := make([]MessageResponse, len(msgs))
	for i := range msgs {
		responses[i] = messageResponse(&msgs[i])
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"room_id":  roomID,
		"messages": responses,
	})
}

// MarkReadRequest represents the read receipt request.
type MarkReadRequest struct {
	MessageID int64 `json:"message_id"`
}

// MarkRead records a read receipt (authenticated).
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
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

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID <= 0 {
		h.Error(w, http.StatusBadRequest, "message_id is required")
		return
	}

	if err := h.chat.MarkRead(r.Context(), roomID, identity, req.MessageID); err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// TypingRequest represents the typing indicator request.
type TypingRequest struct {
	Action string `json:"action"`
}

// Typing publishes a typing indicator (authenticated).
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
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

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.chat.Typing(r.Context(), roomID, identity, req.Action); err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}
