package controllers

import (
	"context"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/amaumene/watchsync/internal/services/anilist"
)

// LocalStore is the durable local source of truth (models.Database)
type LocalStore interface {
	PutHistory(entry *models.HistoryEntry) error
	GetHistory(mediaID int) (*models.HistoryEntry, error)
	DeleteHistory(mediaID int) error
	ListHistory() ([]*models.HistoryEntry, error)
	HistoryKeys() ([]int, error)
	ClearHistory() error

	PutProgress(record *models.EpisodeProgressRecord) error
	GetProgress(mediaID, episode int) (*models.EpisodeProgressRecord, error)

	PutWatchlist(entry *models.WatchlistEntry) error
	GetWatchlist(mediaID int) (*models.WatchlistEntry, error)
	DeleteWatchlist(mediaID int) error

	QueueStore
}

// QueueStore persists the pending sync queue as a single snapshot
type QueueStore interface {
	SavePendingQueue(items []models.PendingSyncItem) error
	LoadPendingQueue() ([]models.PendingSyncItem, error)
}

// Mirror is the per-user remote replica (mirror.Client)
type Mirror interface {
	Available(userID string) bool
	UpsertHistory(ctx context.Context, userID string, entry models.HistoryEntry) error
	DeleteHistory(ctx context.Context, userID string, mediaID int) error
	ClearHistory(ctx context.Context, userID string, keys []int) error
	FetchHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
	UpsertProgress(ctx context.Context, userID string, record models.EpisodeProgressRecord) error
	FetchProgress(ctx context.Context, userID string, mediaID, episode int) (*models.EpisodeProgressRecord, error)
}

// Tracker is the external tracking service (anilist.Client)
type Tracker interface {
	SetStatus(ctx context.Context, mediaID, progress int, status models.TrackingStatus, accessToken string) (*anilist.SaveResult, error)
	GetUserMediaList(ctx context.Context, userID int, accessToken string) ([]models.MediaListEntry, error)
}

// StorageIdentity yields the mirror's user and whether a credential is present
type StorageIdentity interface {
	Identity() (userID string, present bool)
}

// TrackingIdentity yields the tracking service bearer credential, if any
type TrackingIdentity interface {
	Credential() (string, bool)
	UserID() (int, bool)
}

// HistoryRecorder stores a history entry locally and mirrors it
type HistoryRecorder interface {
	AddToHistory(ctx context.Context, entry models.HistoryEntry) error
}
