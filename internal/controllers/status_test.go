package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/watchsync/internal/models"
)

func TestOfflineCompletionIsFlushedAfterLogin(t *testing.T) {
	tests := []struct {
		name    string
		episode int
		want    models.TrackingStatus
	}{
		{"mid season", 5, models.StatusCurrent},
		{"finale", 12, models.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			entry := models.HistoryEntry{MediaID: 30, Title: "Show", TotalEpisodes: 12, WatchedEpisode: tt.episode, DurationSeconds: 1420}
			if err := env.status.MarkEpisodeComplete(ctx, entry); err != nil {
				t.Fatalf("MarkEpisodeComplete() error = %v", err)
			}

			stored, err := env.db.GetHistory(30)
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			if stored.WatchedEpisode != tt.episode || stored.Progress != 1420 {
				t.Errorf("Unexpected stored entry: %+v", stored)
			}

			items := env.queue.Items()
			if len(items) != 1 || items[0].EpisodeReached != tt.episode || items[0].TotalEpisodes != 12 {
				t.Fatalf("Unexpected queue: %+v", items)
			}

			if _, err := env.status.FlushPending(ctx); !errors.Is(err, ErrNoCredential) {
				t.Errorf("Expected ErrNoCredential before login, got %v", err)
			}

			env.tracking.login("token", 99)
			if _, err := env.status.FlushPending(ctx); err != nil {
				t.Fatalf("FlushPending() error = %v", err)
			}

			calls := env.tracker.recorded()
			if len(calls) != 1 {
				t.Fatalf("Expected 1 tracker call, got %d", len(calls))
			}
			if calls[0].Status != tt.want || calls[0].Progress != tt.episode {
				t.Errorf("Expected %s at %d, got %+v", tt.want, tt.episode, calls[0])
			}
			if env.queue.Size() != 0 {
				t.Errorf("Expected empty queue, got %d", env.queue.Size())
			}
		})
	}
}

func TestOnlineCompletionCallsTracker(t *testing.T) {
	env := newTestEnv(t)
	env.tracking.login("token", 99)

	entry := models.HistoryEntry{MediaID: 4, TotalEpisodes: 24, WatchedEpisode: 3, DurationSeconds: 1400}
	if err := env.status.MarkEpisodeComplete(context.Background(), entry); err != nil {
		t.Fatalf("MarkEpisodeComplete() error = %v", err)
	}

	calls := env.tracker.recorded()
	if len(calls) != 1 || calls[0].Status != models.StatusCurrent || calls[0].Progress != 3 {
		t.Errorf("Unexpected tracker calls: %+v", calls)
	}
	if env.queue.Size() != 0 {
		t.Errorf("Nothing should be queued, got %d", env.queue.Size())
	}

	cached, ok := env.status.MediaListEntry(4)
	if !ok || cached.ID != 40 || cached.Status != models.StatusCurrent {
		t.Errorf("Unexpected cached entry: %+v", cached)
	}
}

func TestFailedTrackerCallIsQueued(t *testing.T) {
	env := newTestEnv(t)
	env.tracking.login("token", 99)
	env.tracker.setErr(errors.New("service unavailable"))

	entry := models.HistoryEntry{MediaID: 4, TotalEpisodes: 24, WatchedEpisode: 3}
	if err := env.status.MarkEpisodeComplete(context.Background(), entry); err != nil {
		t.Fatalf("Tracker failure must not surface, got %v", err)
	}
	if env.queue.Size() != 1 {
		t.Errorf("Expected the update to be queued, got %d", env.queue.Size())
	}
	if _, ok := env.status.MediaListEntry(4); ok {
		t.Error("Optimistic cache update should be reverted")
	}
}

func TestCompletedMediaIsNotDowngraded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tracking.login("token", 99)
	env.tracker.list = []models.MediaListEntry{{ID: 1, MediaID: 8, Status: models.StatusCompleted, Progress: 12}}

	if err := env.status.LoadMediaList(ctx); err != nil {
		t.Fatalf("LoadMediaList() error = %v", err)
	}

	entry := models.HistoryEntry{MediaID: 8, TotalEpisodes: 12, WatchedEpisode: 2}
	if err := env.status.MarkEpisodeComplete(ctx, entry); err != nil {
		t.Fatalf("MarkEpisodeComplete() error = %v", err)
	}
	if len(env.tracker.recorded()) != 0 {
		t.Error("Completion must not move a COMPLETED entry back to CURRENT")
	}
	if env.queue.Size() != 0 {
		t.Error("Disallowed transition must not be queued")
	}

	if err := env.status.Watch(ctx, 8, 2); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected COMPLETED to stay final on watch, got %v", err)
	}

	if err := env.status.AddToPlan(ctx, 8); err != nil {
		t.Fatalf("AddToPlan() error = %v", err)
	}
	cached, _ := env.status.MediaListEntry(8)
	if cached.Status != models.StatusPlanning || cached.Progress != 12 {
		t.Errorf("Expected PLANNING keeping progress 12, got %+v", cached)
	}
}

func TestAutoSyncDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.status.autoSync = false

	entry := models.HistoryEntry{MediaID: 4, TotalEpisodes: 24, WatchedEpisode: 3}
	if err := env.status.MarkEpisodeComplete(context.Background(), entry); err != nil {
		t.Fatalf("MarkEpisodeComplete() error = %v", err)
	}
	if env.queue.Size() != 0 {
		t.Error("Nothing should be queued with sync disabled")
	}
	if _, err := env.db.GetHistory(4); err != nil {
		t.Errorf("History must still be recorded, got %v", err)
	}
}

func TestCompletionIsStampedWithCurrentTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entry := models.HistoryEntry{MediaID: 7, TotalEpisodes: 12, WatchedEpisode: 5, Timestamp: 1000}
	if err := env.status.MarkEpisodeComplete(ctx, entry); err != nil {
		t.Fatalf("MarkEpisodeComplete() error = %v", err)
	}

	stored, err := env.db.GetHistory(7)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if stored.Timestamp <= 2000 {
		t.Fatalf("Expected a fresh timestamp, got %d", stored.Timestamp)
	}

	env.mirror.history["u1"] = map[int]models.HistoryEntry{7: {MediaID: 7, TotalEpisodes: 12, WatchedEpisode: 4, Timestamp: 2000}}
	env.storage.set("u1")
	if _, err := env.reconciler.Merge(ctx, "u1"); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	stored, err = env.db.GetHistory(7)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if stored.WatchedEpisode != 5 {
		t.Errorf("Expected completed episode 5 to survive the merge, got %d", stored.WatchedEpisode)
	}
	if remote := env.mirror.remoteHistory("u1")[7]; remote.WatchedEpisode != 5 {
		t.Errorf("Expected episode 5 pushed to the mirror, got %d", remote.WatchedEpisode)
	}
}

func TestCompletionDefaultsToFirstEpisode(t *testing.T) {
	env := newTestEnv(t)

	entry := models.HistoryEntry{MediaID: 3, TotalEpisodes: 12}
	if err := env.status.MarkEpisodeComplete(context.Background(), entry); err != nil {
		t.Fatalf("MarkEpisodeComplete() error = %v", err)
	}

	stored, err := env.db.GetHistory(3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if stored.WatchedEpisode != 1 {
		t.Errorf("Expected episode 1 stored, got %d", stored.WatchedEpisode)
	}
	items := env.queue.Items()
	if len(items) != 1 || items[0].EpisodeReached != 1 {
		t.Errorf("Expected episode 1 queued, got %+v", items)
	}
}
