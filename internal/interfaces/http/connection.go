package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/openfinance"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/middleware"
)

const maxConnectionBodySize = 64 << 10

// JobSubmitter queues background work.
type JobSubmitter interface {
	Submit(job scheduler.Job) error
}

type ConnectionHandler struct {
	connections *connection.Service
	syncer      scheduler.Syncer
	jobs        JobSubmitter
}

func NewConnectionHandler(connections *connection.Service, syncer scheduler.Syncer, jobs JobSubmitter) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, syncer: syncer, jobs: jobs}
}

type BeginExchangeRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

type SyncAcceptedResponse struct {
	ConnectionID string `json:"connectionId"`
	Status       string `json:"status"`
}

// HandleListConnections handles GET /api/connections
func (h *ConnectionHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.connections.List(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing connections for user %d: %v", userID, err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}
	if conns == nil {
		conns = []*connection.Connection{}
	}

	writeJSON(w, http.StatusOK, conns)
}

// HandleBeginExchange handles POST /api/connections/exchange
func (h *ConnectionHandler) HandleBeginExchange(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req BeginExchangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConnectionBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pending, err := h.connections.BeginExchange(r.Context(), connection.BeginParams{
		OwnerID:         userID,
		PublicToken:     req.PublicToken,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
	})
	if err != nil {
		writeConnectionError(w, userID, "begin exchange", err)
		return
	}

	writeJSON(w, http.StatusCreated, pending)
}

// HandleCompleteExchange handles POST /api/connections/exchange/{id}/complete
func (h *ConnectionHandler) HandleCompleteExchange(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.connections.CompleteExchange(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeConnectionError(w, userID, "complete exchange", err)
		return
	}

	if h.jobs != nil {
		if err := h.jobs.Submit(scheduler.NewConnectionSyncJob(userID, conn.ID, h.syncer)); err != nil {
			log.Printf("Connection %s: initial sync not queued: %v", conn.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, conn)
}

// HandleDeleteConnection handles DELETE /api/connections/{id}
func (h *ConnectionHandler) HandleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.connections.Disconnect(r.Context(), userID, r.PathValue("id")); err != nil {
		writeConnectionError(w, userID, "disconnect", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSyncConnection handles POST /api/connections/{id}/sync.
// By default the sync is queued and 202 is returned; ?wait=true runs it inline.
func (h *ConnectionHandler) HandleSyncConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	connectionID := r.PathValue("id")

	if r.URL.Query().Get("wait") == "true" || h.jobs == nil {
		result, err := h.syncer.SyncConnection(r.Context(), userID, connectionID)
		if err != nil {
			writeConnectionError(w, userID, "sync", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	conn, err := h.connections.Get(r.Context(), userID, connectionID)
	if err != nil {
		writeConnectionError(w, userID, "sync", err)
		return
	}
	if conn.Status == connection.StatusDisconnected {
		writeConnectionError(w, userID, "sync", connection.ErrDisconnected)
		return
	}

	err = h.jobs.Submit(scheduler.NewConnectionSyncJob(userID, conn.ID, h.syncer))
	switch {
	case errors.Is(err, scheduler.ErrDuplicateJob):
		writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{ConnectionID: conn.ID, Status: "pending"})
		return
	case err != nil:
		log.Printf("Connection %s: sync not queued: %v", conn.ID, err)
		http.Error(w, "Sync queue is busy, try again later", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{ConnectionID: conn.ID, Status: "queued"})
}

func writeConnectionError(w http.ResponseWriter, userID int64, op string, err error) {
	switch {
	case errors.Is(err, connection.ErrConnectionNotFound), errors.Is(err, connection.ErrExchangeNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, connection.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, connection.ErrDisconnected):
		http.Error(w, "Connection is disconnected", http.StatusConflict)
	case errors.Is(err, connection.ErrDuplicateConnection):
		http.Error(w, "Connection already linked", http.StatusConflict)
	case errors.Is(err, connection.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, openfinance.ErrProviderUnauthorized), errors.Is(err, openfinance.ErrCredential):
		http.Error(w, "Connection needs to be re-linked", http.StatusConflict)
	case errors.Is(err, openfinance.ErrProviderTransient), errors.Is(err, openfinance.ErrProviderMutation),
		errors.Is(err, openfinance.ErrInvalidPayload):
		log.Printf("User %d: %s: %v", userID, op, err)
		http.Error(w, "Provider unavailable", http.StatusBadGateway)
	default:
		log.Printf("User %d: %s failed: %v", userID, op, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
