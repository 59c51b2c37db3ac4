package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

// WatchlistHandler manages the watchlist
type WatchlistHandler struct {
	library Library
	logger  *logrus.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(library Library, logger *logrus.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		library: library,
		logger:  logger,
	}
}

// Add puts a media item on the watchlist
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var entry models.WatchlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if entry.MediaID <= 0 {
		writeError(w, http.StatusBadRequest, "mediaId is required")
		return
	}

	if err := h.library.AddToWatchlist(r.Context(), entry); err != nil {
		h.logger.WithError(err).WithField("media_id", entry.MediaID).Error("Failed to add to watchlist")
		writeError(w, http.StatusInternalServerError, "Failed to add to watchlist")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// Remove takes a media item off the local watchlist
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid media id")
		return
	}

	if err := h.library.RemoveFromWatchlist(mediaID); err != nil {
		h.logger.WithError(err).WithField("media_id", mediaID).Error("Failed to remove from watchlist")
		writeError(w, http.StatusInternalServerError, "Failed to remove from watchlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get reports whether a media item is on the watchlist
func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid media id")
		return
	}

	in, err := h.library.IsInWatchlist(mediaID)
	if err != nil {
		h.logger.WithError(err).WithField("media_id", mediaID).Error("Failed to read watchlist")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mediaId":     mediaID,
		"inWatchlist": in,
	})
}
