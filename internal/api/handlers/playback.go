package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

// PlaybackHandler receives events from the player
type PlaybackHandler struct {
	library  Library
	tracking Tracking
	logger   *logrus.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(library Library, tracking Tracking, logger *logrus.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		library:  library,
		tracking: tracking,
		logger:   logger,
	}
}

// ProgressRequest is one playback tick
type ProgressRequest struct {
	MediaID  int     `json:"mediaId"`
	Episode  int     `json:"episode"`
	Progress float64 `json:"progress"`
	Duration float64 `json:"duration"`
}

// Progress handles a playback tick
func (h *PlaybackHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if req.MediaID <= 0 || req.Episode <= 0 || req.Progress < 0 {
		writeError(w, http.StatusBadRequest, "mediaId, episode and progress are required")
		return
	}

	pushed, err := h.library.SaveEpisodeProgress(r.Context(), models.EpisodeProgressRecord{
		MediaID:         req.MediaID,
		Episode:         req.Episode,
		ProgressSeconds: req.Progress,
		DurationSeconds: req.Duration,
	})
	if err != nil {
		h.logger.WithError(err).WithField("media_id", req.MediaID).Error("Failed to save progress")
		writeError(w, http.StatusInternalServerError, "Failed to save progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"pushed": pushed})
}

// Complete handles a finished episode
func (h *PlaybackHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var entry models.HistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if entry.MediaID <= 0 || entry.WatchedEpisode <= 0 {
		writeError(w, http.StatusBadRequest, "mediaId and watchedEpisode are required")
		return
	}

	if err := h.tracking.MarkEpisodeComplete(r.Context(), entry); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"media_id": entry.MediaID,
			"episode":  entry.WatchedEpisode,
		}).Error("Failed to record completed episode")
		writeError(w, http.StatusInternalServerError, "Failed to record completion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
