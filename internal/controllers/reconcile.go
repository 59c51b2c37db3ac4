package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrMirrorUnavailable is returned when no mirror is reachable for the user
var ErrMirrorUnavailable = errors.New("mirror unavailable")

// MergeResult counts what a history merge moved in each direction
type MergeResult struct {
	Pulled int `json:"pulled"`
	Pushed int `json:"pushed"`
	Total  int `json:"total"`
}

// Reconciler merges the mirrored history into the local store.
// The later timestamp wins per media; nothing is ever deleted.
type Reconciler struct {
	store   LocalStore
	mirror  Mirror
	publish func([]models.HistoryEntry)
	logger  *logrus.Logger

	mu   sync.Mutex
	done map[string]bool
}

// NewReconciler creates a reconciler. publish receives the merged history.
func NewReconciler(store LocalStore, mirror Mirror, publish func([]models.HistoryEntry), logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		mirror:  mirror,
		publish: publish,
		logger:  logger,
		done:    make(map[string]bool),
	}
}

// Reconcile merges once per session for userID. Later calls are no-ops until Forget.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done[userID] {
		return nil
	}
	if _, err := r.merge(ctx, userID); err != nil {
		return err
	}
	r.done[userID] = true
	return nil
}

// Merge runs a merge regardless of earlier sessions
func (r *Reconciler) Merge(ctx context.Context, userID string) (MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merge(ctx, userID)
}

// Forget ends the session of userID so the next Reconcile merges again
func (r *Reconciler) Forget(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.done, userID)
}

func (r *Reconciler) merge(ctx context.Context, userID string) (MergeResult, error) {
	var result MergeResult
	if !r.mirror.Available(userID) {
		return result, fmt.Errorf("%w for user %s", ErrMirrorUnavailable, userID)
	}

	remote, err := r.mirror.FetchHistory(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to fetch remote history: %w", err)
	}

	local, err := r.store.ListHistory()
	if err != nil {
		return result, err
	}
	localByID := make(map[int]*models.HistoryEntry, len(local))
	for _, e := range local {
		localByID[e.MediaID] = e
	}

	remoteByID := make(map[int]models.HistoryEntry, len(remote))
	for _, e := range remote {
		remoteByID[e.MediaID] = e

		existing, ok := localByID[e.MediaID]
		if ok && existing.Timestamp >= e.Timestamp {
			continue
		}
		entry := e
		if err := r.store.PutHistory(&entry); err != nil {
			return result, err
		}
		result.Pulled++
	}

	for _, e := range local {
		if rem, ok := remoteByID[e.MediaID]; ok && rem.Timestamp >= e.Timestamp {
			continue
		}
		if err := r.mirror.UpsertHistory(ctx, userID, *e); err != nil {
			r.logger.WithError(err).WithField("media_id", e.MediaID).Warn("Failed to push local history entry")
			continue
		}
		result.Pushed++
	}

	merged, err := r.store.ListHistory()
	if err != nil {
		return result, err
	}
	result.Total = len(merged)
	metrics.Reconciliations.Inc()

	r.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"pulled":  result.Pulled,
		"pushed":  result.Pushed,
		"total":   result.Total,
	}).Info("History reconciled")

	if r.publish != nil {
		r.publish(values(merged))
	}
	return result, nil
}

func values(entries []*models.HistoryEntry) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	return out
}
