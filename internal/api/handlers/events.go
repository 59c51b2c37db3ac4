package handlers

import (
	"errors"
	"net/http"

	"github.com/amaumene/watchsync/internal/controllers"
	"github.com/sirupsen/logrus"
)

// EventsHandler receives focus and connectivity signals and explicit flush requests
type EventsHandler struct {
	session Session
	logger  *logrus.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(session Session, logger *logrus.Logger) *EventsHandler {
	return &EventsHandler{
		session: session,
		logger:  logger,
	}
}

// Focus handles the player window regaining focus
func (h *EventsHandler) Focus(w http.ResponseWriter, r *http.Request) {
	h.session.OnFocus(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Online handles the player regaining connectivity
func (h *EventsHandler) Online(w http.ResponseWriter, r *http.Request) {
	h.session.OnOnline(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// FlushResponse is the outcome of an explicit flush
type FlushResponse struct {
	controllers.FlushResult
	Error string `json:"error,omitempty"`
}

// Flush runs a flush of the pending queue and waits for it
func (h *EventsHandler) Flush(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.FlushNow(r.Context())
	if errors.Is(err, controllers.ErrFlushInProgress) {
		writeJSON(w, http.StatusConflict, FlushResponse{FlushResult: result, Error: err.Error()})
		return
	}

	resp := FlushResponse{FlushResult: result}
	if err != nil {
		h.logger.WithError(err).Warn("Requested flush did not complete")
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
