package handlers

import (
	"context"

	"github.com/amaumene/watchsync/internal/controllers"
	"github.com/amaumene/watchsync/internal/models"
)

// Library is the history, progress and watchlist surface (controllers.LibraryController)
type Library interface {
	AddToHistory(ctx context.Context, entry models.HistoryEntry) error
	RemoveFromHistory(ctx context.Context, mediaID int) error
	ClearHistory(ctx context.Context) error
	History() ([]models.HistoryEntry, error)
	SaveEpisodeProgress(ctx context.Context, record models.EpisodeProgressRecord) (bool, error)
	GetEpisodeProgress(ctx context.Context, mediaID, episode int) (*models.EpisodeProgressRecord, error)
	AddToWatchlist(ctx context.Context, entry models.WatchlistEntry) error
	RemoveFromWatchlist(mediaID int) error
	IsInWatchlist(mediaID int) (bool, error)
}

// Tracking is the status manager surface (controllers.StatusManager)
type Tracking interface {
	MarkEpisodeComplete(ctx context.Context, entry models.HistoryEntry) error
	PendingCount() int
	MediaList() []models.MediaListEntry
}

// Session is the identity and flush surface (controllers.SessionController)
type Session interface {
	OnFocus(ctx context.Context)
	OnOnline(ctx context.Context)
	FlushNow(ctx context.Context) (controllers.FlushResult, error)
	State() (userID string, hasStorage, hasTracking bool)
}
