package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amaumene/watchsync/internal/config"
	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrFlushInProgress is returned when a flush is triggered while another one runs.
// The trigger is dropped; the running flush already sees the current queue.
var ErrFlushInProgress = errors.New("flush already in progress")

var tracer = otel.Tracer("github.com/amaumene/watchsync/internal/controllers")

// SendFunc delivers one queued item to the tracking service
type SendFunc func(ctx context.Context, item models.PendingSyncItem) error

// FlushResult summarizes a flush call
type FlushResult struct {
	Flushed   int `json:"flushed"`
	Remaining int `json:"remaining"`
}

// PendingQueue is the durable, per-media deduplicated backlog of tracker updates.
// The whole queue is persisted as one snapshot after every change.
type PendingQueue struct {
	mu       sync.Mutex
	items    []models.PendingSyncItem
	store    QueueStore
	delay    time.Duration
	flushing atomic.Bool
	logger   *logrus.Logger
}

// NewPendingQueue loads the persisted queue from store
func NewPendingQueue(store QueueStore, delay time.Duration, logger *logrus.Logger) (*PendingQueue, error) {
	if delay < config.MinFlushDelay {
		delay = config.MinFlushDelay
	}

	items, err := store.LoadPendingQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending queue: %w", err)
	}

	q := &PendingQueue{
		items:  items,
		store:  store,
		delay:  delay,
		logger: logger,
	}
	metrics.PendingQueueSize.Set(float64(len(items)))
	return q, nil
}

// Enqueue records that mediaID reached episode. An existing item for the same
// media is only replaced by a strictly greater episode.
func (q *PendingQueue) Enqueue(mediaID, episode, totalEpisodes int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := models.PendingSyncItem{MediaID: mediaID, EpisodeReached: episode, TotalEpisodes: totalEpisodes}
	next := append([]models.PendingSyncItem(nil), q.items...)

	found := false
	for i := range next {
		if next[i].MediaID != mediaID {
			continue
		}
		found = true
		if episode <= next[i].EpisodeReached {
			q.logger.WithFields(logrus.Fields{
				"media_id": mediaID,
				"episode":  episode,
				"queued":   next[i].EpisodeReached,
			}).Debug("Queued episode is already further, keeping it")
			return nil
		}
		next[i] = item
		break
	}
	if !found {
		next = append(next, item)
	}

	if err := q.store.SavePendingQueue(next); err != nil {
		return err
	}
	q.items = next
	metrics.PendingQueueSize.Set(float64(len(next)))

	q.logger.WithFields(logrus.Fields{
		"media_id": mediaID,
		"episode":  episode,
		"total":    totalEpisodes,
	}).Info("Queued tracker update")
	return nil
}

// Size returns the number of queued items
func (q *PendingQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queue in order
func (q *PendingQueue) Items() []models.PendingSyncItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingSyncItem(nil), q.items...)
}

// remove drops the item for item.MediaID unless a further episode was queued meanwhile
func (q *PendingQueue) remove(item models.PendingSyncItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]models.PendingSyncItem, 0, len(q.items))
	for _, it := range q.items {
		if it.MediaID == item.MediaID && it.EpisodeReached <= item.EpisodeReached {
			continue
		}
		next = append(next, it)
	}
	if len(next) == len(q.items) {
		return nil
	}

	if err := q.store.SavePendingQueue(next); err != nil {
		return err
	}
	q.items = next
	metrics.PendingQueueSize.Set(float64(len(next)))
	return nil
}

// Flush sends every queued item once, serially, pausing between items.
// An item is removed only after send succeeds. The first failure stops the
// flush; items already sent stay removed. Concurrent calls return
// ErrFlushInProgress immediately.
func (q *PendingQueue) Flush(ctx context.Context, send SendFunc) (FlushResult, error) {
	if !q.flushing.CompareAndSwap(false, true) {
		return FlushResult{Remaining: q.Size()}, ErrFlushInProgress
	}
	defer q.flushing.Store(false)

	batch := q.Items()
	if len(batch) == 0 {
		return FlushResult{}, nil
	}

	ctx, span := tracer.Start(ctx, "pending_queue.flush")
	span.SetAttributes(attribute.Int("queue.size", len(batch)))
	defer span.End()

	q.logger.WithField("count", len(batch)).Info("Flushing pending tracker updates")

	var result FlushResult
	for i, item := range batch {
		if i > 0 {
			select {
			case <-ctx.Done():
				result.Remaining = q.Size()
				return result, ctx.Err()
			case <-time.After(q.delay):
			}
		}

		if err := send(ctx, item); err != nil {
			metrics.FlushItems.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			q.logger.WithError(err).WithField("media_id", item.MediaID).Warn("Flush aborted, item stays queued")
			result.Remaining = q.Size()
			return result, fmt.Errorf("failed to flush media %d: %w", item.MediaID, err)
		}

		if err := q.remove(item); err != nil {
			result.Remaining = q.Size()
			return result, err
		}
		metrics.FlushItems.WithLabelValues("sent").Inc()
		result.Flushed++
	}

	result.Remaining = q.Size()
	q.logger.WithFields(logrus.Fields{
		"flushed":   result.Flushed,
		"remaining": result.Remaining,
	}).Info("Pending tracker updates flushed")
	return result, nil
}
