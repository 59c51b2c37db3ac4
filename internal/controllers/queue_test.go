package controllers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/amaumene/watchsync/internal/utils"
)

func newTestQueue(t *testing.T) *PendingQueue {
	t.Helper()
	q, err := NewPendingQueue(newTestDB(t), 0, utils.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewPendingQueue() error = %v", err)
	}
	q.delay = time.Millisecond
	return q
}

func TestEnqueueKeepsHighestEpisode(t *testing.T) {
	tests := []struct {
		name     string
		episodes []int
		want     int
	}{
		{"in order", []int{2, 3}, 3},
		{"out of order", []int{3, 2}, 3},
		{"same episode", []int{4, 4}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueue(t)
			for _, ep := range tt.episodes {
				if err := q.Enqueue(21, ep, 12); err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
			}

			items := q.Items()
			if len(items) != 1 {
				t.Fatalf("Expected 1 item, got %d", len(items))
			}
			if items[0].EpisodeReached != tt.want {
				t.Errorf("Expected episode %d, got %d", tt.want, items[0].EpisodeReached)
			}
		})
	}
}

func TestMinimumFlushDelay(t *testing.T) {
	q, err := NewPendingQueue(newTestDB(t), 10*time.Millisecond, utils.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewPendingQueue() error = %v", err)
	}
	if q.delay != 500*time.Millisecond {
		t.Errorf("Expected delay clamped to 500ms, got %v", q.delay)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(1, 5, 12)
	q.Enqueue(2, 12, 12)

	var sent []models.PendingSyncItem
	send := func(ctx context.Context, item models.PendingSyncItem) error {
		sent = append(sent, item)
		return nil
	}

	res, err := q.Flush(context.Background(), send)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if res.Flushed != 2 || res.Remaining != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if sent[0].Status() != models.StatusCurrent || sent[1].Status() != models.StatusCompleted {
		t.Errorf("Unexpected statuses: %s, %s", sent[0].Status(), sent[1].Status())
	}

	res, err = q.Flush(context.Background(), send)
	if err != nil {
		t.Fatalf("Second Flush() error = %v", err)
	}
	if res.Flushed != 0 || len(sent) != 2 {
		t.Errorf("Second flush should be a no-op, sent %d items", len(sent))
	}
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(1, 1, 12)
	q.Enqueue(2, 2, 12)
	q.Enqueue(3, 3, 12)

	boom := errors.New("rate limited")
	var attempted []int
	res, err := q.Flush(context.Background(), func(ctx context.Context, item models.PendingSyncItem) error {
		attempted = append(attempted, item.MediaID)
		if item.MediaID == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected flush failure, got %v", err)
	}
	if len(attempted) != 2 {
		t.Errorf("Expected flush to stop after item 2, attempted %v", attempted)
	}
	if res.Flushed != 1 || res.Remaining != 2 {
		t.Errorf("Unexpected result: %+v", res)
	}

	items := q.Items()
	if items[0].MediaID != 2 || items[1].MediaID != 3 {
		t.Errorf("Expected items 2 and 3 to remain, got %+v", items)
	}
}

func TestFlushIsSingleFlight(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(1, 1, 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := q.Flush(context.Background(), func(ctx context.Context, item models.PendingSyncItem) error {
			close(entered)
			<-release
			return nil
		})
		done <- err
	}()

	<-entered
	if _, err := q.Flush(context.Background(), func(context.Context, models.PendingSyncItem) error {
		t.Error("Concurrent flush must not send")
		return nil
	}); !errors.Is(err, ErrFlushInProgress) {
		t.Errorf("Expected ErrFlushInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if q.Size() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Size())
	}
}

func TestFlushKeepsFurtherEpisodeQueuedMeanwhile(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue(1, 3, 12)

	_, err := q.Flush(context.Background(), func(ctx context.Context, item models.PendingSyncItem) error {
		return q.Enqueue(1, 4, 12)
	})
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	items := q.Items()
	if len(items) != 1 || items[0].EpisodeReached != 4 {
		t.Errorf("Expected episode 4 to stay queued, got %+v", items)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	logger := utils.NewDiscardLogger()

	db, err := models.NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	q, err := NewPendingQueue(db, 0, logger)
	if err != nil {
		t.Fatalf("NewPendingQueue() error = %v", err)
	}
	q.Enqueue(7, 5, 12)
	q.Enqueue(8, 1, 0)
	db.Close()

	db, err = models.NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer db.Close()

	q, err = NewPendingQueue(db, 0, logger)
	if err != nil {
		t.Fatalf("NewPendingQueue() error = %v", err)
	}
	items := q.Items()
	if len(items) != 2 || items[0].MediaID != 7 || items[0].EpisodeReached != 5 || items[1].MediaID != 8 {
		t.Errorf("Unexpected restored queue: %+v", items)
	}
}
