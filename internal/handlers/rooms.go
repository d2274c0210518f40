package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/jinyphp/chat-sub002/internal/api/middleware"
	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/store"
)

// Room code validation: alphanumeric, hyphens, underscores, 1-50 chars
var roomCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	SlowModeSeconds int    `json:"slow_mode_seconds,omitempty"`
	DailyMessageCap int    `json:"daily_message_cap,omitempty"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID               int64  `json:"id"`
	Code             string `json:"code"`
	UUID             string `json:"uuid"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	MessageCount     int64  `json:"message_count"`
	ParticipantCount int64  `json:"participant_count"`
}

func roomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:               room.ID,
		Code:             room.Code,
		UUID:             room.UUID.String(),
		Title:            room.Title,
		Status:           room.Status,
		MessageCount:     room.MessageCount,
		ParticipantCount: room.ParticipantCount,
	}
}

// CreateRoom handles room creation (authenticated). The creator becomes the
// owner and first active participant.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		h.Error(w, http.StatusBadRequest, "code is required")
		return
	}
	if !roomCodeRegex.MatchString(req.Code) {
		h.Error(w, http.StatusBadRequest, "code must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return
	}

	room, err := h.registry.CreateRoom(r.Context(), store.CreateRoomInput{
		Code:            req.Code,
		Title:           req.Title,
		OwnerUUID:       identity.UUID,
		SlowModeSeconds: req.SlowModeSeconds,
		DailyMessageCap: req.DailyMessageCap,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	err = h.registry.AddParticipant(r.Context(), &models.Participant{
		RoomID:      room.ID,
		UserUUID:    identity.UUID,
		DisplayName: identity.Name,
		Role:        models.RoleOwner,
		Status:      models.ParticipantActive,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to add owner")
		return
	}

	h.JSON(w, http.StatusCreated, roomResponse(room))
}

// ListRooms handles listing rooms with pagination.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	rooms, total, err := h.registry.ListRooms(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	responses := make([]RoomResponse, len(rooms))
	for i := range rooms {
		responses[i] = roomResponse(&rooms[i])
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"rooms": responses,
		"total": total,
	})
}

// JoinRoomRequest represents the join request body.
type JoinRoomRequest struct {
	DisplayName string `json:"display_name,omitempty"`
}

// JoinRoom adds the authenticated identity as an active member.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
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
	if room == nil || room.Status != models.RoomActive {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	// A banned member cannot rejoin by knocking again.
	existing, err := h.registry.GetParticipant(r.Context(), roomID, identity.UUID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil && existing.Status == models.ParticipantBanned {
		h.Error(w, http.StatusForbidden, "banned from this room")
		return
	}

	var req JoinRoomRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = identity.Name
	}

	err = h.registry.AddParticipant(r.Context(), &models.Participant{
		RoomID:      roomID,
		UserUUID:    identity.UUID,
		DisplayName: name,
		Role:        models.RoleMember,
		Status:      models.ParticipantActive,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// LeaveRoom marks the authenticated identity as having left.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
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

	if err := h.registry.SetParticipantStatus(r.Context(), roomID, identity.UUID, models.ParticipantLeft); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to leave room")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "left"})
}
