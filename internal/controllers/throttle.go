package controllers

import (
	"math"
	"sync"
	"time"

	"github.com/amaumene/watchsync/internal/models"
)

const (
	pushPercentChange    = 0.05
	pushInterval         = 60 * time.Second
	nearCompletion       = 0.95
	nearCompletionChange = 0.01
	watchingThreshold    = 0.25
)

type pushState struct {
	lastPushedTime     time.Time
	lastPushedProgress float64
}

// ProgressThrottle picks, out of a stream of playback ticks, the ones worth
// pushing to the remote mirror. State is per (media, episode) and lives in
// memory only; the first tick after a restart always passes the time condition.
type ProgressThrottle struct {
	mu       sync.Mutex
	state    map[string]pushState
	watching map[string]bool // one-shot CURRENT trigger per episode
	now      func() time.Time
}

// NewProgressThrottle creates an empty throttle
func NewProgressThrottle() *ProgressThrottle {
	return &ProgressThrottle{
		state:    make(map[string]pushState),
		watching: make(map[string]bool),
		now:      time.Now,
	}
}

// ShouldPush reports whether the tick must be mirrored, and records it as pushed if so
func (t *ProgressThrottle) ShouldPush(rec models.EpisodeProgressRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := models.ProgressKey(rec.MediaID, rec.Episode)
	last := t.state[key]
	now := t.now()

	duration := rec.DurationSeconds
	if duration <= 0 {
		duration = 1
	}
	progressDiff := math.Abs(rec.ProgressSeconds - last.lastPushedProgress)
	percentChange := progressDiff / duration

	push := percentChange > pushPercentChange ||
		(now.Sub(last.lastPushedTime) > pushInterval && progressDiff > 0) ||
		(rec.ProgressSeconds/duration > nearCompletion && percentChange > nearCompletionChange)

	if push {
		t.state[key] = pushState{lastPushedTime: now, lastPushedProgress: rec.ProgressSeconds}
	}
	return push
}

// ClaimWatching arms the one-shot CURRENT trigger for an episode.
// It returns false when the trigger already fired.
func (t *ProgressThrottle) ClaimWatching(mediaID, episode int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := models.ProgressKey(mediaID, episode)
	if t.watching[key] {
		return false
	}
	t.watching[key] = true
	return true
}

// ReleaseWatching re-arms the trigger after a failed status call
func (t *ProgressThrottle) ReleaseWatching(mediaID, episode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watching, models.ProgressKey(mediaID, episode))
}

// Reset forgets all push history
func (t *ProgressThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = make(map[string]pushState)
	t.watching = make(map[string]bool)
}
