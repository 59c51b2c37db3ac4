package controllers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/amaumene/watchsync/internal/services/anilist"
	"github.com/amaumene/watchsync/internal/utils"
)

type trackerCall struct {
	MediaID  int
	Progress int
	Status   models.TrackingStatus
}

type fakeTracker struct {
	mu       sync.Mutex
	calls    []trackerCall
	attempts int
	err      error
	failOn   map[int]error
	list     []models.MediaListEntry
}

func (f *fakeTracker) SetStatus(ctx context.Context, mediaID, progress int, status models.TrackingStatus, accessToken string) (*anilist.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.failOn[mediaID]; ok {
		return nil, err
	}
	f.calls = append(f.calls, trackerCall{MediaID: mediaID, Progress: progress, Status: status})
	return &anilist.SaveResult{ID: mediaID * 10, Progress: progress, Status: status}, nil
}

func (f *fakeTracker) GetUserMediaList(ctx context.Context, userID int, accessToken string) ([]models.MediaListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MediaListEntry(nil), f.list...), nil
}

func (f *fakeTracker) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTracker) recorded() []trackerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trackerCall(nil), f.calls...)
}

type fakeTrackingIdentity struct {
	mu     sync.Mutex
	token  string
	userID int
}

func (f *fakeTrackingIdentity) Credential() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTrackingIdentity) UserID() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID, f.token != "" && f.userID != 0
}

func (f *fakeTrackingIdentity) login(token string, userID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token, f.userID = token, userID
}

type fakeStorageIdentity struct {
	mu     sync.Mutex
	userID string
}

func (f *fakeStorageIdentity) Identity() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID, f.userID != ""
}

func (f *fakeStorageIdentity) set(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
}

// fakeMirror keeps per-user documents in memory and is available only for
// the current storage identity
type fakeMirror struct {
	mu       sync.Mutex
	identity *fakeStorageIdentity
	history  map[string]map[int]models.HistoryEntry
	progress map[string]map[string]models.EpisodeProgressRecord
	err      error
	upserts  int
}

func newFakeMirror(identity *fakeStorageIdentity) *fakeMirror {
	return &fakeMirror{
		identity: identity,
		history:  make(map[string]map[int]models.HistoryEntry),
		progress: make(map[string]map[string]models.EpisodeProgressRecord),
	}
}

func (f *fakeMirror) Available(userID string) bool {
	current, ok := f.identity.Identity()
	return ok && userID != "" && current == userID
}

func (f *fakeMirror) UpsertHistory(ctx context.Context, userID string, entry models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.history[userID] == nil {
		f.history[userID] = make(map[int]models.HistoryEntry)
	}
	entry.Seq = 0
	f.history[userID][entry.MediaID] = entry
	f.upserts++
	return nil
}

func (f *fakeMirror) DeleteHistory(ctx context.Context, userID string, mediaID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.history[userID], mediaID)
	return nil
}

func (f *fakeMirror) ClearHistory(ctx context.Context, userID string, keys []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.history[userID], k)
	}
	return nil
}

func (f *fakeMirror) FetchHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.HistoryEntry
	for _, e := range f.history[userID] {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeMirror) UpsertProgress(ctx context.Context, userID string, record models.EpisodeProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.progress[userID] == nil {
		f.progress[userID] = make(map[string]models.EpisodeProgressRecord)
	}
	f.progress[userID][record.Key] = record
	return nil
}

func (f *fakeMirror) FetchProgress(ctx context.Context, userID string, mediaID, episode int) (*models.EpisodeProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.progress[userID][models.ProgressKey(mediaID, episode)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeMirror) remoteHistory(userID string) map[int]models.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]models.HistoryEntry)
	for k, v := range f.history[userID] {
		out[k] = v
	}
	return out
}

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	db         *models.Database
	tracker    *fakeTracker
	tracking   *fakeTrackingIdentity
	storage    *fakeStorageIdentity
	mirror     *fakeMirror
	throttle   *ProgressThrottle
	queue      *PendingQueue
	library    *LibraryController
	status     *StatusManager
	reconciler *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := utils.NewDiscardLogger()

	env := &testEnv{
		db:       newTestDB(t),
		tracker:  &fakeTracker{},
		tracking: &fakeTrackingIdentity{},
		storage:  &fakeStorageIdentity{},
		throttle: NewProgressThrottle(),
	}
	env.mirror = newFakeMirror(env.storage)

	queue, err := NewPendingQueue(env.db, 0, logger)
	if err != nil {
		t.Fatalf("NewPendingQueue() error = %v", err)
	}
	queue.delay = time.Millisecond
	env.queue = queue

	env.library = NewLibraryController(env.db, env.mirror, env.storage, env.throttle, logger)
	env.status = NewStatusManager(env.library, env.tracker, env.tracking, queue, true, time.Hour, logger)
	env.library.SetStatusManager(env.status)
	env.reconciler = NewReconciler(env.db, env.mirror, env.library.Publish, logger)
	return env
}
