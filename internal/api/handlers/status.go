package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	library  Library
	tracking Tracking
	session  Session
	logger   *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(library Library, tracking Tracking, session Session, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		library:  library,
		tracking: tracking,
		session:  session,
		logger:   logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	HistoryEntries   int    `json:"history_entries"`
	PendingSync      int    `json:"pending_sync"`
	MediaListEntries int    `json:"media_list_entries"`
	StorageIdentity  bool   `json:"storage_identity"`
	StorageUser      string `json:"storage_user,omitempty"`
	TrackingIdentity bool   `json:"tracking_identity"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	history, err := h.library.History()
	if err != nil {
		h.logger.WithError(err).Error("Failed to read history")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	userID, hasStorage, hasTracking := h.session.State()
	writeJSON(w, http.StatusOK, StatusResponse{
		HistoryEntries:   len(history),
		PendingSync:      h.tracking.PendingCount(),
		MediaListEntries: len(h.tracking.MediaList()),
		StorageIdentity:  hasStorage,
		StorageUser:      userID,
		TrackingIdentity: hasTracking,
	})
}
