package http

import (
	"log"
	"net/http"
	"strconv"

	"ledgersync/internal/domain/snapshot"
	"ledgersync/internal/shared/middleware"
)

type SnapshotHandler struct {
	snapshots *snapshot.Service
}

func NewSnapshotHandler(snapshots *snapshot.Service) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// HandleCurrent handles GET /api/snapshots/current
func (h *SnapshotHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snap, err := h.snapshots.Current(r.Context(), userID)
	if err != nil {
		log.Printf("Error loading current snapshot for user %d: %v", userID, err)
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleList handles GET /api/snapshots?limit=N
func (h *SnapshotHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	snaps, err := h.snapshots.List(r.Context(), userID, limit)
	if err != nil {
		log.Printf("Error listing snapshots for user %d: %v", userID, err)
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []*snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// HandleRecompute handles POST /api/snapshots/recompute
func (h *SnapshotHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snap, err := h.snapshots.Recompute(r.Context(), userID)
	if err != nil {
		log.Printf("Error recomputing snapshot for user %d: %v", userID, err)
		http.Error(w, "Failed to recompute snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
