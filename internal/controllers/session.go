package controllers

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionController follows the storage and tracking identities and starts
// reconciliation and queue flushes when they appear.
type SessionController struct {
	storage    StorageIdentity
	tracking   TrackingIdentity
	reconciler *Reconciler
	status     *StatusManager
	throttle   *ProgressThrottle
	logger     *logrus.Logger

	mu          sync.Mutex
	userID      string
	hasStorage  bool
	hasTracking bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionController creates a new session controller. The throttle is reset
// whenever the storage identity signs out or changes.
func NewSessionController(storage StorageIdentity, tracking TrackingIdentity, reconciler *Reconciler, status *StatusManager, throttle *ProgressThrottle, logger *logrus.Logger) *SessionController {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionController{
		storage:    storage,
		tracking:   tracking,
		reconciler: reconciler,
		status:     status,
		throttle:   throttle,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Refresh reads both identities and reacts to logins and logouts
func (s *SessionController) Refresh(ctx context.Context) {
	userID, hasStorage := s.storage.Identity()
	_, hasTracking := s.tracking.Credential()

	s.mu.Lock()
	prevUser, prevStorage, prevTracking := s.userID, s.hasStorage, s.hasTracking
	s.userID, s.hasStorage, s.hasTracking = userID, hasStorage, hasTracking
	s.mu.Unlock()

	storageLogin := hasStorage && (!prevStorage || userID != prevUser)
	if prevStorage && (!hasStorage || userID != prevUser) {
		s.reconciler.Forget(prevUser)
		if s.throttle != nil {
			s.throttle.Reset()
		}
		s.logger.WithField("user_id", prevUser).Info("Storage identity signed out, mirroring stopped")
	}
	if storageLogin {
		s.logger.WithField("user_id", userID).Info("Storage identity signed in")
	}

	trackingLogin := hasTracking && !prevTracking
	if prevTracking && !hasTracking {
		s.status.ClearMediaList()
		s.logger.Info("Tracking identity signed out")
	}
	if trackingLogin {
		s.logger.Info("Tracking identity signed in")
		if err := s.status.LoadMediaList(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to load media list")
		}
	}

	if hasStorage && hasTracking {
		err := s.reconciler.Reconcile(ctx, userID)
		switch {
		case err == nil:
		case errors.Is(err, ErrMirrorUnavailable):
			s.logger.WithField("user_id", userID).Debug("Mirror unavailable, history not reconciled")
		default:
			s.logger.WithError(err).WithField("user_id", userID).Warn("History reconciliation failed, will retry")
		}
	}

	if storageLogin || trackingLogin {
		s.TriggerFlush()
	}
}

// TriggerFlush starts a background flush. It is dropped if one is already running.
func (s *SessionController) TriggerFlush() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		_, err := s.FlushNow(s.ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrFlushInProgress), errors.Is(err, ErrNoCredential):
			s.logger.WithError(err).Debug("Flush trigger dropped")
		default:
			s.logger.WithError(err).Warn("Pending queue flush failed")
		}
	}()
}

// FlushNow flushes the pending queue and waits for the result
func (s *SessionController) FlushNow(ctx context.Context) (FlushResult, error) {
	return s.status.FlushPending(ctx)
}

// OnFocus handles the player window regaining focus
func (s *SessionController) OnFocus(ctx context.Context) {
	s.Refresh(ctx)
	s.TriggerFlush()
}

// OnOnline handles network connectivity coming back
func (s *SessionController) OnOnline(ctx context.Context) {
	s.Refresh(ctx)
	s.TriggerFlush()
}

// Close stops accepting flush triggers and waits for running flushes
func (s *SessionController) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// State returns the identities seen on the last refresh
func (s *SessionController) State() (userID string, hasStorage, hasTracking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.hasStorage, s.hasTracking
}
