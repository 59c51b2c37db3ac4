package controllers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/amaumene/watchsync/internal/services/anilist"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCredential is returned when a tracker call needs a credential that is not present
	ErrNoCredential = errors.New("no tracking credential")
	// ErrTransitionNotAllowed is returned when the cached status forbids the requested change
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// StatusManager turns playback milestones into tracking service status changes.
// It is the only component that talks to the tracker or feeds the pending queue.
type StatusManager struct {
	history  HistoryRecorder
	tracker  Tracker
	identity TrackingIdentity
	queue    *PendingQueue
	list     *cache.Cache
	autoSync bool
	logger   *logrus.Logger
}

// NewStatusManager creates a status manager. autoSync gates completion and
// progress driven updates; explicit actions are always sent.
func NewStatusManager(history HistoryRecorder, tracker Tracker, identity TrackingIdentity, queue *PendingQueue, autoSync bool, listTTL time.Duration, logger *logrus.Logger) *StatusManager {
	return &StatusManager{
		history:  history,
		tracker:  tracker,
		identity: identity,
		queue:    queue,
		list:     cache.New(listTTL, 2*listTTL),
		autoSync: autoSync,
		logger:   logger,
	}
}

// CanTrack reports whether a tracking credential is present
func (s *StatusManager) CanTrack() bool {
	_, ok := s.identity.Credential()
	return ok
}

// TrackingEnabled reports whether playback may drive tracker updates right now
func (s *StatusManager) TrackingEnabled() bool {
	return s.autoSync && s.CanTrack()
}

// PendingCount returns the size of the pending queue
func (s *StatusManager) PendingCount() int {
	return s.queue.Size()
}

// MarkEpisodeComplete records the finished episode and reports it upstream.
// The entry is always stamped with the current time. Only local storage
// failures are returned; tracker failures leave the update queued.
func (s *StatusManager) MarkEpisodeComplete(ctx context.Context, entry models.HistoryEntry) error {
	entry.Progress = entry.DurationSeconds
	entry.Timestamp = 0
	if entry.WatchedEpisode < 1 {
		entry.WatchedEpisode = 1
	}
	if err := s.history.AddToHistory(ctx, entry); err != nil {
		return err
	}

	if !s.autoSync {
		return nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"media_id": entry.MediaID,
		"episode":  entry.WatchedEpisode,
		"total":    entry.TotalEpisodes,
	})

	if !s.CanTrack() {
		log.Debug("No tracking credential, queueing completion")
		return s.queue.Enqueue(entry.MediaID, entry.WatchedEpisode, entry.TotalEpisodes)
	}

	status := models.DeriveStatus(entry.WatchedEpisode, entry.TotalEpisodes)
	_, err := s.UpdateStatus(ctx, entry.MediaID, entry.WatchedEpisode, status, models.TriggerCompletion)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTransitionNotAllowed):
		log.WithField("status", status).Debug("Tracker status left unchanged")
		return nil
	default:
		log.WithError(err).Warn("Tracker update failed, queueing for a later flush")
		return s.queue.Enqueue(entry.MediaID, entry.WatchedEpisode, entry.TotalEpisodes)
	}
}

// UpdateStatus sends a status change to the tracker. The cached media list is
// updated before the call and reverted if it fails.
func (s *StatusManager) UpdateStatus(ctx context.Context, mediaID, progress int, status models.TrackingStatus, trigger models.Trigger) (*anilist.SaveResult, error) {
	token, ok := s.identity.Credential()
	if !ok {
		return nil, ErrNoCredential
	}

	prev, cached := s.MediaListEntry(mediaID)
	if !models.CanTransition(prev.Status, status, trigger) {
		return nil, fmt.Errorf("%w: %s to %s on %s", ErrTransitionNotAllowed, prev.Status, status, trigger)
	}

	optimistic := prev
	optimistic.MediaID = mediaID
	optimistic.Status = status
	optimistic.Progress = progress
	s.list.SetDefault(cacheKey(mediaID), optimistic)

	result, err := s.tracker.SetStatus(ctx, mediaID, progress, status, token)
	if err != nil {
		metrics.TrackerCalls.WithLabelValues("failed").Inc()
		if cached {
			s.list.SetDefault(cacheKey(mediaID), prev)
		} else {
			s.list.Delete(cacheKey(mediaID))
		}
		return nil, err
	}
	metrics.TrackerCalls.WithLabelValues("ok").Inc()

	optimistic.ID = result.ID
	optimistic.Progress = result.Progress
	if result.Status.Valid() {
		optimistic.Status = result.Status
	}
	s.list.SetDefault(cacheKey(mediaID), optimistic)

	s.logger.WithFields(logrus.Fields{
		"media_id": mediaID,
		"progress": result.Progress,
		"status":   result.Status,
		"trigger":  trigger,
	}).Info("Tracker status updated")
	return result, nil
}

// StartWatching marks the media CURRENT at episode after a qualifying progress tick
func (s *StatusManager) StartWatching(ctx context.Context, mediaID, episode int) error {
	_, err := s.UpdateStatus(ctx, mediaID, episode, models.StatusCurrent, models.TriggerProgress)
	return err
}

// Watch marks the media CURRENT on explicit user request
func (s *StatusManager) Watch(ctx context.Context, mediaID, episode int) error {
	_, err := s.UpdateStatus(ctx, mediaID, episode, models.StatusCurrent, models.TriggerWatch)
	return err
}

// AddToPlan marks the media PLANNING, keeping the progress the tracker already has
func (s *StatusManager) AddToPlan(ctx context.Context, mediaID int) error {
	entry, _ := s.MediaListEntry(mediaID)
	_, err := s.UpdateStatus(ctx, mediaID, entry.Progress, models.StatusPlanning, models.TriggerPlan)
	return err
}

// FlushPending sends the pending queue to the tracker
func (s *StatusManager) FlushPending(ctx context.Context) (FlushResult, error) {
	if !s.CanTrack() {
		return FlushResult{Remaining: s.queue.Size()}, ErrNoCredential
	}

	return s.queue.Flush(ctx, func(ctx context.Context, item models.PendingSyncItem) error {
		_, err := s.UpdateStatus(ctx, item.MediaID, item.EpisodeReached, item.Status(), models.TriggerCompletion)
		if errors.Is(err, ErrTransitionNotAllowed) {
			s.logger.WithField("media_id", item.MediaID).Debug("Dropping queued update the tracker no longer accepts")
			return nil
		}
		return err
	})
}

// LoadMediaList replaces the cached media list with the viewer's list from the tracker
func (s *StatusManager) LoadMediaList(ctx context.Context) error {
	token, ok := s.identity.Credential()
	if !ok {
		return ErrNoCredential
	}
	userID, ok := s.identity.UserID()
	if !ok {
		return ErrNoCredential
	}

	entries, err := s.tracker.GetUserMediaList(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("failed to load media list: %w", err)
	}

	s.list.Flush()
	for _, e := range entries {
		s.list.SetDefault(cacheKey(e.MediaID), e)
	}

	s.logger.WithField("count", len(entries)).Info("Media list loaded")
	return nil
}

// ClearMediaList drops the cached media list
func (s *StatusManager) ClearMediaList() {
	s.list.Flush()
}

// MediaListEntry returns the cached tracker entry for a media item
func (s *StatusManager) MediaListEntry(mediaID int) (models.MediaListEntry, bool) {
	v, ok := s.list.Get(cacheKey(mediaID))
	if !ok {
		return models.MediaListEntry{}, false
	}
	return v.(models.MediaListEntry), true
}

// MediaList returns the cached tracker entries ordered by media id
func (s *StatusManager) MediaList() []models.MediaListEntry {
	items := s.list.Items()
	entries := make([]models.MediaListEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, item.Object.(models.MediaListEntry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].MediaID < entries[j].MediaID
	})
	return entries
}

func cacheKey(mediaID int) string {
	return strconv.Itoa(mediaID)
}
