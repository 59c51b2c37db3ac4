package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

// HistoryHandler exposes the watch history
type HistoryHandler struct {
	library Library
	logger  *logrus.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(library Library, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{
		library: library,
		logger:  logger,
	}
}

// List returns the history, newest first
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.library.History()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list history")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Add records a history entry
func (h *HistoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var entry models.HistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if entry.MediaID <= 0 {
		writeError(w, http.StatusBadRequest, "mediaId is required")
		return
	}

	if err := h.library.AddToHistory(r.Context(), entry); err != nil {
		h.logger.WithError(err).WithField("media_id", entry.MediaID).Error("Failed to add history entry")
		writeError(w, http.StatusInternalServerError, "Failed to add history entry")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// Remove deletes a single history entry
func (h *HistoryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid media id")
		return
	}

	if err := h.library.RemoveFromHistory(r.Context(), mediaID); err != nil {
		h.logger.WithError(err).WithField("media_id", mediaID).Error("Failed to remove history entry")
		writeError(w, http.StatusInternalServerError, "Failed to remove history entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear deletes the whole history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.library.ClearHistory(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear history")
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Progress returns the stored position of an episode
func (h *HistoryHandler) Progress(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(r, "mediaId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid media id")
		return
	}
	episode, ok := pathInt(r, "episode")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid episode")
		return
	}

	record, err := h.library.GetEpisodeProgress(r.Context(), mediaID, episode)
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No progress recorded")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"media_id": mediaID,
			"episode":  episode,
		}).Error("Failed to read progress")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}
