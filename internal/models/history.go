package models

import (
	"fmt"
	"time"
)

// HistoryEntry is the last known watch position of a media item.
// There is at most one entry per MediaID in the local store.
type HistoryEntry struct {
	MediaID         int       `json:"mediaId" boltholdKey:"MediaID"`
	Title           string    `json:"title"`
	Image           string    `json:"image,omitempty"`
	TotalEpisodes   int       `json:"totalEpisodes"`
	WatchedEpisode  int       `json:"watchedEpisode"`
	Progress        float64   `json:"progress"`
	DurationSeconds float64   `json:"durationSeconds"`
	MediaType       MediaType `json:"mediaType,omitempty"`
	Timestamp       int64     `json:"timestamp" boltholdIndex:"Timestamp"` // unix millis

	// Seq orders entries written with the same timestamp. Local only.
	Seq uint64 `json:"-"`
}

// Time returns the entry timestamp as a time.Time
func (e HistoryEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// EpisodeProgressRecord is the playback position within a single episode
type EpisodeProgressRecord struct {
	Key             string  `json:"key" boltholdKey:"Key"` // mediaId_episode
	MediaID         int     `json:"mediaId" boltholdIndex:"MediaID"`
	Episode         int     `json:"episode"`
	ProgressSeconds float64 `json:"progress"`
	DurationSeconds float64 `json:"duration"`
	Timestamp       int64   `json:"timestamp"`
}

// ProgressKey builds the composite key shared by the local and remote progress records
func ProgressKey(mediaID, episode int) string {
	return fmt.Sprintf("%d_%d", mediaID, episode)
}

// Fraction returns progress/duration, treating an unknown duration as 1 second
func (r EpisodeProgressRecord) Fraction() float64 {
	d := r.DurationSeconds
	if d <= 0 {
		d = 1
	}
	return r.ProgressSeconds / d
}

// PendingSyncItem is a tracking-service update waiting for a usable credential
type PendingSyncItem struct {
	MediaID        int `json:"animeId"`
	EpisodeReached int `json:"episode"`
	TotalEpisodes  int `json:"totalEpisodes"`
}

// Status returns the status this item reports when flushed
func (p PendingSyncItem) Status() TrackingStatus {
	return DeriveStatus(p.EpisodeReached, p.TotalEpisodes)
}

// WatchlistEntry is a media item the user plans to watch
type WatchlistEntry struct {
	MediaID       int       `json:"mediaId" boltholdKey:"MediaID"`
	Title         string    `json:"title"`
	Image         string    `json:"image,omitempty"`
	TotalEpisodes int       `json:"totalEpisodes"`
	AddedAt       time.Time `json:"addedAt"`
}

// MediaListEntry is the tracker's view of one media item, cached for display
type MediaListEntry struct {
	ID            int            `json:"id"`
	MediaID       int            `json:"mediaId"`
	Status        TrackingStatus `json:"status"`
	Progress      int            `json:"progress"`
	Score         float64        `json:"score"`
	Title         string         `json:"title,omitempty"`
	TotalEpisodes int            `json:"totalEpisodes,omitempty"`
}
