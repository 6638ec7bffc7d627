package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"ledgersync/internal/domain/notification"
	"ledgersync/internal/shared/middleware"
)

const (
	defaultPerPage       = 20
	maxPerPage           = 100
	maxDeviceRequestSize = 4 << 10
)

type NotificationHandler struct {
	notifications *notification.Service
}

func NewNotificationHandler(notifications *notification.Service) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type RegisterDeviceRequest struct {
	Token      string `json:"token"`
	DeviceType string `json:"deviceType"`
}

type NotificationPage struct {
	Items   []*notification.Notification `json:"items"`
	Page    int                          `json:"page"`
	PerPage int                          `json:"perPage"`
	Total   int                          `json:"total"`
	Pages   int                          `json:"pages"`
}

// HandleNotifications handles GET /api/notifications?page=N&perPage=M
func (h *NotificationHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", defaultPerPage)
	if perPage > maxPerPage {
		perPage = defaultPerPage
	}

	items, total, err := h.notifications.ListNotifications(r.Context(), userID, page, perPage)
	if err != nil {
		log.Printf("User %d: failed to list notifications: %v", userID, err)
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}

	writeJSON(w, http.StatusOK, NotificationPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
	})
}

// HandleRegisterDevice handles POST /api/notifications/devices
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeviceRequestSize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.notifications.RegisterDevice(r.Context(), notification.CreateDeviceTokenParams{
		UserID:     userID,
		Token:      req.Token,
		DeviceType: req.DeviceType,
	})
	switch {
	case errors.Is(err, notification.ErrInvalidToken), errors.Is(err, notification.ErrInvalidDeviceType):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("User %d: failed to register device: %v", userID, err)
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}
