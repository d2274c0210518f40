package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/partition"
)

// partitionError maps partition-layer errors to status codes. Missing files
// are 404, everything else is a storage failure.
func (h *Handler) partitionError(w http.ResponseWriter, err error) {
	var provErr *partition.ProvisioningError
	if errors.As(err, &provErr) {
		h.Error(w, http.StatusNotFound, "partition not found")
		return
	}
	h.logger.Error().Err(err).Msg("partition operation failed")
	h.Error(w, http.StatusInternalServerError, "partition operation failed")
}

// ListPartitions handles GET /admin/partitions (admin only). An optional
// date=YYYY-MM-DD query narrows the scan to one day's directory.
func (h *Handler) ListPartitions(w http.ResponseWriter, r *http.Request) {
	var (
		infos []partition.PartitionInfo
		err   error
	)
	if date := r.URL.Query().Get("date"); date != "" {
		day, perr := time.Parse("2006-01-02", date)
		if perr != nil {
			h.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		infos, err = h.provisioner.ListByDate(day.Year(), int(day.Month()), day.Day())
	} else {
		infos, err = h.provisioner.ListAll()
	}
	if err != nil {
		h.partitionError(w, err)
		return
	}
	if infos == nil {
		infos = []partition.PartitionInfo{}
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"count":      len(infos),
		"partitions": infos,
	})
}

// PartitionStats handles GET /admin/partitions/stats?year=&month= (admin only).
func (h *Handler) PartitionStats(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 2000 || year > 9999 {
		h.Error(w, http.StatusBadRequest, "year is required")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		h.Error(w, http.StatusBadRequest, "month must be 1-12")
		return
	}

	stats, err := h.provisioner.MonthlyStats(year, month)
	if err != nil {
		h.partitionError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, stats)
}

// PartitionSize handles GET /admin/partitions/{roomID}/size (admin only).
func (h *Handler) PartitionSize(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}
	size, err := h.provisioner.SizeOf(roomID)
	if err != nil {
		h.partitionError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"room_id":    roomID,
		"size_bytes": size,
	})
}

// BackupPartition handles POST /admin/partitions/{roomID}/backup (admin only).
func (h *Handler) BackupPartition(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	dest, err := h.provisioner.Backup(roomID, filepath.Join(h.provisioner.Root(), "backups"))
	if err != nil {
		h.partitionError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"backup":  dest,
	})
}

// OptimizePartition handles POST /admin/partitions/{roomID}/optimize (admin only).
func (h *Handler) OptimizePartition(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}
	if err := h.provisioner.Optimize(roomID); err != nil {
		h.partitionError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"status":  "optimized",
	})
}

// DeletePartition handles DELETE /admin/partitions/{roomID} (admin only). The
// room must be marked deleted in the registry first; the partition file goes
// away permanently.
func (h *Handler) DeletePartition(w http.ResponseWriter, r *http.Request) {
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
	if room != nil && room.Status != models.RoomDeleted {
		h.Error(w, http.StatusConflict, "room must be deleted before its partition is removed")
		return
	}

	if err := h.provisioner.Delete(roomID); err != nil {
		h.partitionError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"status":  "deleted",
	})
}

// SetRoomStatusRequest represents the room status change request.
type SetRoomStatusRequest struct {
	Status string `json:"status"`
}

// SetRoomStatus handles POST /admin/rooms/{roomID}/status (admin only).
// Archiving or deleting a room stops writes immediately; the partition file
// stays until removed separately.
func (h *Handler) SetRoomStatus(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	var req SetRoomStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Status {
	case models.RoomActive, models.RoomArchived, models.RoomDeleted:
	default:
		h.Error(w, http.StatusBadRequest, "status must be active, archived, or deleted")
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

	if err := h.registry.UpdateRoomStatus(r.Context(), roomID, req.Status); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update room")
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"room_id": roomID,
		"status":  req.Status,
	})
}

// RecountRoom handles POST /admin/rooms/{roomID}/recount (admin only). It
// replaces the registry's denormalized message counter with the partition's
// authoritative row count.
func (h *Handler) RecountRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	count, err := h.chat.Recount(r.Context(), roomID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"room_id":       roomID,
		"message_count": count,
	})
}
