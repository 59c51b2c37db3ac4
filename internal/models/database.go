package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// PendingQueueKey is the reserved key holding the pending tracker sync snapshot
const PendingQueueKey = "tracking_pending_sync"

var sequenceBucket = []byte("_sequence")

// pendingQueueSnapshot is the persisted form of the pending sync queue.
// It is replaced as a whole on every change.
type pendingQueueSnapshot struct {
	Items     []PendingSyncItem
	UpdatedAt time.Time
}

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("failed to open database: %w", err))
	}

	err = store.Bolt().Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sequenceBucket)
		return err
	})
	if err != nil {
		store.Close()
		return nil, storageErr("open", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// History operations

// PutHistory inserts or replaces the history entry for entry.MediaID
func (db *Database) PutHistory(entry *HistoryEntry) error {
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		seq, err := tx.Bucket(sequenceBucket).NextSequence()
		if err != nil {
			return err
		}
		entry.Seq = seq
		return db.store.TxUpsert(tx, entry.MediaID, entry)
	})
	return storageErr("put history", err)
}

// GetHistory retrieves the history entry for a media item
func (db *Database) GetHistory(mediaID int) (*HistoryEntry, error) {
	var entry HistoryEntry
	err := db.store.Get(mediaID, &entry)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get history", err)
	}
	return &entry, nil
}

// DeleteHistory removes a single history entry. Removing a missing entry is not an error.
func (db *Database) DeleteHistory(mediaID int) error {
	err := db.store.Delete(mediaID, &HistoryEntry{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil
	}
	return storageErr("delete history", err)
}

// ListHistory returns every history entry, newest first.
// Entries with the same timestamp keep their write order.
func (db *Database) ListHistory() ([]*HistoryEntry, error) {
	var entries []*HistoryEntry
	if err := db.store.Find(&entries, nil); err != nil {
		return nil, storageErr("list history", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

// HistoryKeys returns the media IDs currently in the history
func (db *Database) HistoryKeys() ([]int, error) {
	entries, err := db.ListHistory()
	if err != nil {
		return nil, err
	}
	keys := make([]int, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.MediaID)
	}
	return keys, nil
}

// ClearHistory removes every history entry
func (db *Database) ClearHistory() error {
	var entries []*HistoryEntry
	if err := db.store.Find(&entries, nil); err != nil {
		return storageErr("clear history", err)
	}

	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, e := range entries {
			if err := db.store.TxDelete(tx, e.MediaID, &HistoryEntry{}); err != nil && !errors.Is(err, bolthold.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	return storageErr("clear history", err)
}

// Episode progress operations

// PutProgress upserts the progress record for (MediaID, Episode)
func (db *Database) PutProgress(record *EpisodeProgressRecord) error {
	record.Key = ProgressKey(record.MediaID, record.Episode)
	return storageErr("put progress", db.store.Upsert(record.Key, record))
}

// GetProgress retrieves the progress record for an episode
func (db *Database) GetProgress(mediaID, episode int) (*EpisodeProgressRecord, error) {
	var record EpisodeProgressRecord
	err := db.store.Get(ProgressKey(mediaID, episode), &record)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get progress", err)
	}
	return &record, nil
}

// Watchlist operations

// PutWatchlist inserts or replaces a watchlist entry
func (db *Database) PutWatchlist(entry *WatchlistEntry) error {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	return storageErr("put watchlist", db.store.Upsert(entry.MediaID, entry))
}

// GetWatchlist retrieves a watchlist entry
func (db *Database) GetWatchlist(mediaID int) (*WatchlistEntry, error) {
	var entry WatchlistEntry
	err := db.store.Get(mediaID, &entry)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get watchlist", err)
	}
	return &entry, nil
}

// DeleteWatchlist removes a watchlist entry
func (db *Database) DeleteWatchlist(mediaID int) error {
	err := db.store.Delete(mediaID, &WatchlistEntry{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil
	}
	return storageErr("delete watchlist", err)
}

// Pending sync queue persistence

// SavePendingQueue replaces the persisted pending queue snapshot
func (db *Database) SavePendingQueue(items []PendingSyncItem) error {
	snapshot := &pendingQueueSnapshot{
		Items:     append([]PendingSyncItem(nil), items...),
		UpdatedAt: time.Now(),
	}
	return storageErr("save pending queue", db.store.Upsert(PendingQueueKey, snapshot))
}

// LoadPendingQueue returns the persisted pending queue, or nil when none was saved
func (db *Database) LoadPendingQueue() ([]PendingSyncItem, error) {
	var snapshot pendingQueueSnapshot
	err := db.store.Get(PendingQueueKey, &snapshot)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load pending queue", err)
	}
	return snapshot.Items, nil
}
