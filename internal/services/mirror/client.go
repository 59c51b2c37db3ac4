package mirror

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	historyCollection  = "history"
	progressCollection = "episode_progress"
)

// MirrorError is an unexpected remote failure. The client never retries it.
type MirrorError struct {
	Op  string
	Err error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

// StorageIdentity yields the user the mirror is partitioned by
type StorageIdentity interface {
	Identity() (userID string, present bool)
}

// Client mirrors history and progress records to the per-user document store.
// Every call is best-effort: permission denials are swallowed, other failures
// are logged and returned as *MirrorError.
type Client struct {
	store    DocumentStore
	identity StorageIdentity
	logger   *logrus.Logger
}

// NewClient creates a mirror client. A nil store disables mirroring.
func NewClient(store DocumentStore, identity StorageIdentity, logger *logrus.Logger) *Client {
	return &Client{
		store:    store,
		identity: identity,
		logger:   logger,
	}
}

// Available reports whether records owned by userID may be mirrored right now
func (c *Client) Available(userID string) bool {
	if c.store == nil || c.identity == nil || userID == "" {
		return false
	}
	current, present := c.identity.Identity()
	return present && current == userID
}

// handle applies the error policy to the outcome of a store call
func (c *Client) handle(op, userID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		c.logger.WithFields(logrus.Fields{
			"op":      op,
			"user_id": userID,
		}).Debug("Mirror permission denied, skipping")
		return nil
	}

	metrics.MirrorFailures.WithLabelValues(op).Inc()
	c.logger.WithError(err).WithFields(logrus.Fields{
		"op":      op,
		"user_id": userID,
	}).Error("Mirror operation failed")
	return &MirrorError{Op: op, Err: err}
}

func (c *Client) skip(op, userID string) bool {
	if c.Available(userID) {
		return false
	}
	c.logger.WithFields(logrus.Fields{
		"op":      op,
		"user_id": userID,
	}).Debug("Mirror unavailable for identity")
	return true
}

// UpsertHistory writes a history entry to the user's mirror
func (c *Client) UpsertHistory(ctx context.Context, userID string, entry models.HistoryEntry) error {
	if c.skip("upsert_history", userID) {
		return nil
	}
	err := c.store.Put(ctx, userID, historyCollection, strconv.Itoa(entry.MediaID), entry)
	return c.handle("upsert_history", userID, err)
}

// DeleteHistory removes a single history entry from the user's mirror
func (c *Client) DeleteHistory(ctx context.Context, userID string, mediaID int) error {
	if c.skip("delete_history", userID) {
		return nil
	}
	err := c.store.Delete(ctx, userID, historyCollection, strconv.Itoa(mediaID))
	return c.handle("delete_history", userID, err)
}

// ClearHistory deletes the given keys from the user's mirror.
// The caller snapshots the keys before clearing the local store.
func (c *Client) ClearHistory(ctx context.Context, userID string, keys []int) error {
	if len(keys) == 0 || c.skip("clear_history", userID) {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strconv.Itoa(k))
	}
	err := c.store.BatchDelete(ctx, userID, historyCollection, ids)
	return c.handle("clear_history", userID, err)
}

// FetchHistory returns every history entry mirrored for the user.
// An unavailable mirror yields an empty list.
func (c *Client) FetchHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	if c.skip("fetch_history", userID) {
		return nil, nil
	}
	var entries []models.HistoryEntry
	if err := c.store.List(ctx, userID, historyCollection, &entries); err != nil {
		return nil, c.handle("fetch_history", userID, err)
	}
	return entries, nil
}

// UpsertProgress writes an episode progress record to the user's mirror
func (c *Client) UpsertProgress(ctx context.Context, userID string, record models.EpisodeProgressRecord) error {
	if c.skip("upsert_progress", userID) {
		return nil
	}
	record.Key = models.ProgressKey(record.MediaID, record.Episode)
	err := c.store.Put(ctx, userID, progressCollection, record.Key, record)
	return c.handle("upsert_progress", userID, err)
}

// FetchProgress returns the mirrored progress record of an episode, or nil when there is none
func (c *Client) FetchProgress(ctx context.Context, userID string, mediaID, episode int) (*models.EpisodeProgressRecord, error) {
	if c.skip("fetch_progress", userID) {
		return nil, nil
	}
	var record models.EpisodeProgressRecord
	err := c.store.Get(ctx, userID, progressCollection, models.ProgressKey(mediaID, episode), &record)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.handle("fetch_progress", userID, err)
	}
	record.MediaID = mediaID
	record.Episode = episode
	record.Key = models.ProgressKey(mediaID, episode)
	return &record, nil
}
