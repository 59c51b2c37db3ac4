package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/watchsync/internal/models"
)

func TestWatchingTriggerFiresOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tracking.login("token", 99)
	env.tracker.setErr(errors.New("timeout"))

	tick := func(progress float64) {
		t.Helper()
		rec := models.EpisodeProgressRecord{MediaID: 5, Episode: 2, ProgressSeconds: progress, DurationSeconds: 1000}
		if _, err := env.library.SaveEpisodeProgress(ctx, rec); err != nil {
			t.Fatalf("SaveEpisodeProgress() error = %v", err)
		}
	}

	tick(100)
	if env.tracker.attempts != 0 {
		t.Fatal("Below 25% nothing should be sent")
	}

	tick(300)
	if env.tracker.attempts != 1 {
		t.Fatalf("Expected one attempt, got %d", env.tracker.attempts)
	}

	env.tracker.setErr(nil)
	tick(360)
	tick(420)
	tick(480)

	calls := env.tracker.recorded()
	if env.tracker.attempts != 2 || len(calls) != 1 {
		t.Fatalf("Expected a single retry, got %d attempts and %d calls", env.tracker.attempts, len(calls))
	}
	if calls[0].Status != models.StatusCurrent || calls[0].Progress != 2 {
		t.Errorf("Unexpected call: %+v", calls[0])
	}
}

func TestProgressIsStoredAndMirrored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storage.set("u1")

	pushed, err := env.library.SaveEpisodeProgress(ctx, models.EpisodeProgressRecord{MediaID: 1, Episode: 1, ProgressSeconds: 10, DurationSeconds: 1000})
	if err != nil || !pushed {
		t.Fatalf("Expected first tick pushed, got %v, %v", pushed, err)
	}
	pushed, err = env.library.SaveEpisodeProgress(ctx, models.EpisodeProgressRecord{MediaID: 1, Episode: 1, ProgressSeconds: 11, DurationSeconds: 1000})
	if err != nil || pushed {
		t.Fatalf("Expected second tick throttled, got %v, %v", pushed, err)
	}

	local, err := env.db.GetProgress(1, 1)
	if err != nil || local.ProgressSeconds != 11 {
		t.Errorf("Every tick must be stored locally, got %+v, %v", local, err)
	}
	remote, _ := env.mirror.FetchProgress(ctx, "u1", 1, 1)
	if remote == nil || remote.ProgressSeconds != 10 {
		t.Errorf("Expected the pushed tick mirrored, got %+v", remote)
	}
}

func TestGetEpisodeProgressFallsBackToMirror(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.library.GetEpisodeProgress(ctx, 3, 4); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	env.storage.set("u1")
	env.mirror.UpsertProgress(ctx, "u1", models.EpisodeProgressRecord{Key: "3_4", MediaID: 3, Episode: 4, ProgressSeconds: 600, DurationSeconds: 1400})

	rec, err := env.library.GetEpisodeProgress(ctx, 3, 4)
	if err != nil {
		t.Fatalf("GetEpisodeProgress() error = %v", err)
	}
	if rec.ProgressSeconds != 600 {
		t.Errorf("Expected 600, got %v", rec.ProgressSeconds)
	}

	env.storage.set("")
	local, err := env.db.GetProgress(3, 4)
	if err != nil || local.ProgressSeconds != 600 {
		t.Errorf("Expected the record back-filled locally, got %+v, %v", local, err)
	}
}

func TestHistoryMutationsReachMirrorAndObservers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storage.set("u1")

	var published [][]models.HistoryEntry
	env.library.Subscribe(func(entries []models.HistoryEntry) {
		published = append(published, entries)
	})

	for i, id := range []int{1, 2, 3} {
		if err := env.library.AddToHistory(ctx, models.HistoryEntry{MediaID: id, Timestamp: int64(100 + i)}); err != nil {
			t.Fatalf("AddToHistory() error = %v", err)
		}
	}
	if len(env.mirror.remoteHistory("u1")) != 3 {
		t.Fatalf("Expected 3 mirrored entries")
	}

	if err := env.library.RemoveFromHistory(ctx, 2); err != nil {
		t.Fatalf("RemoveFromHistory() error = %v", err)
	}
	if _, ok := env.mirror.remoteHistory("u1")[2]; ok {
		t.Error("Removed entry still mirrored")
	}

	last := published[len(published)-1]
	if len(last) != 2 || last[0].MediaID != 3 || last[1].MediaID != 1 {
		t.Errorf("Unexpected published history: %+v", last)
	}

	if err := env.library.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if len(env.mirror.remoteHistory("u1")) != 0 {
		t.Error("Mirror should be cleared with the snapshotted keys")
	}
	history, err := env.library.History()
	if err != nil || len(history) != 0 {
		t.Errorf("Expected empty history, got %v, %v", history, err)
	}
}

func TestLogoutKeepsLocalHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.storage.set("u1")
	env.library.AddToHistory(ctx, models.HistoryEntry{MediaID: 1, Timestamp: 1})

	env.storage.set("")
	if err := env.library.AddToHistory(ctx, models.HistoryEntry{MediaID: 2, Timestamp: 2}); err != nil {
		t.Fatalf("AddToHistory() error = %v", err)
	}

	if _, ok := env.mirror.remoteHistory("u1")[2]; ok {
		t.Error("Nothing may be mirrored without a storage identity")
	}
	history, _ := env.library.History()
	if len(history) != 2 {
		t.Errorf("Expected both entries kept locally, got %d", len(history))
	}
}

func TestWatchlist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.library.IsInWatchlist(11)
	if err != nil || in {
		t.Fatalf("Expected not in watchlist, got %v, %v", in, err)
	}

	env.tracking.login("token", 99)
	if err := env.library.AddToWatchlist(ctx, models.WatchlistEntry{MediaID: 11, Title: "Planned"}); err != nil {
		t.Fatalf("AddToWatchlist() error = %v", err)
	}
	calls := env.tracker.recorded()
	if len(calls) != 1 || calls[0].Status != models.StatusPlanning {
		t.Errorf("Expected a PLANNING call, got %+v", calls)
	}
	if in, _ := env.library.IsInWatchlist(11); !in {
		t.Error("Expected media in watchlist")
	}

	if err := env.library.RemoveFromWatchlist(11); err != nil {
		t.Fatalf("RemoveFromWatchlist() error = %v", err)
	}
	if in, _ := env.library.IsInWatchlist(11); !in {
		t.Error("Tracker PLANNING status still counts as watchlisted")
	}

	env.status.ClearMediaList()
	if in, _ := env.library.IsInWatchlist(11); in {
		t.Error("Expected media out of watchlist")
	}
}
