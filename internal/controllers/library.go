package controllers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

// LibraryController owns the user's history, episode progress and watchlist.
// Local writes are authoritative and their errors are returned; mirror writes
// are best-effort.
type LibraryController struct {
	store    LocalStore
	mirror   Mirror
	storage  StorageIdentity
	throttle *ProgressThrottle
	status   *StatusManager
	logger   *logrus.Logger
	now      func() time.Time

	mu        sync.RWMutex
	observers []func([]models.HistoryEntry)
}

// NewLibraryController creates a new library controller
func NewLibraryController(store LocalStore, mirror Mirror, storage StorageIdentity, throttle *ProgressThrottle, logger *logrus.Logger) *LibraryController {
	return &LibraryController{
		store:    store,
		mirror:   mirror,
		storage:  storage,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// SetStatusManager sets the status manager used for tracker transitions
func (c *LibraryController) SetStatusManager(status *StatusManager) {
	c.status = status
}

// Subscribe registers fn to receive the sorted history after every change
func (c *LibraryController) Subscribe(fn func([]models.HistoryEntry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Publish hands entries to every observer
func (c *LibraryController) Publish(entries []models.HistoryEntry) {
	c.mu.RLock()
	observers := make([]func([]models.HistoryEntry), len(c.observers))
	copy(observers, c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(entries)
	}
}

func (c *LibraryController) notify() {
	entries, err := c.store.ListHistory()
	if err != nil {
		c.logger.WithError(err).Error("Failed to read history for observers")
		return
	}
	c.Publish(values(entries))
}

// mirrorUser returns the user records may be mirrored for, if any
func (c *LibraryController) mirrorUser() (string, bool) {
	userID, present := c.storage.Identity()
	if !present || !c.mirror.Available(userID) {
		return "", false
	}
	return userID, true
}

// AddToHistory stores the entry locally, then mirrors it
func (c *LibraryController) AddToHistory(ctx context.Context, entry models.HistoryEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = c.now().UnixMilli()
	}
	if err := c.store.PutHistory(&entry); err != nil {
		return err
	}

	if userID, ok := c.mirrorUser(); ok {
		if err := c.mirror.UpsertHistory(ctx, userID, entry); err != nil {
			c.logger.WithField("media_id", entry.MediaID).Debug("History entry kept local only")
		}
	}

	c.notify()
	return nil
}

// RemoveFromHistory deletes a single entry locally, then from the mirror
func (c *LibraryController) RemoveFromHistory(ctx context.Context, mediaID int) error {
	if err := c.store.DeleteHistory(mediaID); err != nil {
		return err
	}

	if userID, ok := c.mirrorUser(); ok {
		if err := c.mirror.DeleteHistory(ctx, userID, mediaID); err != nil {
			c.logger.WithField("media_id", mediaID).Debug("History entry still mirrored")
		}
	}

	c.notify()
	return nil
}

// ClearHistory removes every entry. The keys are captured before the local
// clear so the mirror can delete the same set.
func (c *LibraryController) ClearHistory(ctx context.Context) error {
	keys, err := c.store.HistoryKeys()
	if err != nil {
		return err
	}
	if err := c.store.ClearHistory(); err != nil {
		return err
	}

	if userID, ok := c.mirrorUser(); ok {
		if err := c.mirror.ClearHistory(ctx, userID, keys); err != nil {
			c.logger.WithField("count", len(keys)).Debug("Mirrored history not cleared")
		}
	}

	c.logger.WithField("count", len(keys)).Info("History cleared")
	c.notify()
	return nil
}

// History returns the local history, newest first
func (c *LibraryController) History() ([]models.HistoryEntry, error) {
	entries, err := c.store.ListHistory()
	if err != nil {
		return nil, err
	}
	return values(entries), nil
}

// SaveEpisodeProgress handles one playback tick. The tick is always stored
// locally; it is mirrored only when the throttle selects it. It reports
// whether the tick was pushed.
func (c *LibraryController) SaveEpisodeProgress(ctx context.Context, record models.EpisodeProgressRecord) (bool, error) {
	metrics.ProgressTicks.Inc()

	record.Key = models.ProgressKey(record.MediaID, record.Episode)
	record.Timestamp = c.now().UnixMilli()
	if err := c.store.PutProgress(&record); err != nil {
		return false, err
	}

	if !c.throttle.ShouldPush(record) {
		return false, nil
	}
	metrics.ProgressPushes.Inc()

	if userID, ok := c.mirrorUser(); ok {
		if err := c.mirror.UpsertProgress(ctx, userID, record); err != nil {
			c.logger.WithFields(logrus.Fields{
				"media_id": record.MediaID,
				"episode":  record.Episode,
			}).Debug("Progress kept local only")
		}
	}

	if record.Fraction() >= watchingThreshold {
		c.startWatching(ctx, record.MediaID, record.Episode)
	}
	return true, nil
}

func (c *LibraryController) startWatching(ctx context.Context, mediaID, episode int) {
	if c.status == nil || !c.status.TrackingEnabled() {
		return
	}
	if !c.throttle.ClaimWatching(mediaID, episode) {
		return
	}

	err := c.status.StartWatching(ctx, mediaID, episode)
	if err == nil || errors.Is(err, ErrTransitionNotAllowed) {
		return
	}
	c.throttle.ReleaseWatching(mediaID, episode)
	c.logger.WithError(err).WithFields(logrus.Fields{
		"media_id": mediaID,
		"episode":  episode,
	}).Warn("Failed to mark media as watching, will retry on a later tick")
}

// GetEpisodeProgress returns the stored progress of an episode. When the local
// store has none, the mirrored record is fetched and written back locally.
func (c *LibraryController) GetEpisodeProgress(ctx context.Context, mediaID, episode int) (*models.EpisodeProgressRecord, error) {
	record, err := c.store.GetProgress(mediaID, episode)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	userID, ok := c.mirrorUser()
	if !ok {
		return nil, models.ErrNotFound
	}
	remote, err := c.mirror.FetchProgress(ctx, userID, mediaID, episode)
	if err != nil || remote == nil {
		return nil, models.ErrNotFound
	}

	if err := c.store.PutProgress(remote); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"media_id": mediaID,
		"episode":  episode,
	}).Debug("Progress restored from mirror")
	return remote, nil
}

// AddToWatchlist stores the entry and marks it PLANNING on the tracker when possible
func (c *LibraryController) AddToWatchlist(ctx context.Context, entry models.WatchlistEntry) error {
	if err := c.store.PutWatchlist(&entry); err != nil {
		return err
	}

	if c.status != nil && c.status.CanTrack() {
		if err := c.status.AddToPlan(ctx, entry.MediaID); err != nil {
			c.logger.WithError(err).WithField("media_id", entry.MediaID).Warn("Failed to add media to tracker plan")
		}
	}
	return nil
}

// RemoveFromWatchlist removes the local watchlist entry
func (c *LibraryController) RemoveFromWatchlist(mediaID int) error {
	return c.store.DeleteWatchlist(mediaID)
}

// IsInWatchlist reports whether the media is planned or being watched
func (c *LibraryController) IsInWatchlist(mediaID int) (bool, error) {
	if c.status != nil {
		if entry, ok := c.status.MediaListEntry(mediaID); ok {
			if entry.Status == models.StatusPlanning || entry.Status == models.StatusCurrent {
				return true, nil
			}
		}
	}

	_, err := c.store.GetWatchlist(mediaID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
