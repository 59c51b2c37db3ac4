package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amaumene/watchsync/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron         *cron.Cron
	session      *controllers.SessionController
	status       *controllers.StatusManager
	flushSpec    string
	identitySpec string
	listSpec     string
	logger       *logrus.Logger
	wg           sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(
	session *controllers.SessionController,
	status *controllers.StatusManager,
	identitySpec string,
	flushSpec string,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		session:      session,
		status:       status,
		flushSpec:    flushSpec,
		identitySpec: identitySpec,
		listSpec:     "@every 30m",
		logger:       logger,
	}
}

// SetMediaListSpec overrides the media list refresh schedule
func (s *Scheduler) SetMediaListSpec(spec string) {
	s.listSpec = spec
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Identity poll: login/logout transitions drive reconcile and flush
	_, err := s.cron.AddFunc(s.identitySpec, func() {
		s.runIdentityPoll()
	})
	if err != nil {
		return fmt.Errorf("failed to add identity poll job: %w", err)
	}

	_, err = s.cron.AddFunc(s.flushSpec, func() {
		s.runFlush()
	})
	if err != nil {
		return fmt.Errorf("failed to add flush job: %w", err)
	}

	_, err = s.cron.AddFunc(s.listSpec, func() {
		s.runMediaListRefresh()
	})
	if err != nil {
		return fmt.Errorf("failed to add media list job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Pick up the identities present at startup
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runIdentityPoll()
	}()

	return nil
}

// Stop stops the scheduler and waits for running jobs, including the startup poll
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func (s *Scheduler) runIdentityPoll() {
	s.logger.Debug("Polling identities")
	s.session.Refresh(context.Background())
}

func (s *Scheduler) runFlush() {
	s.logger.Debug("Running scheduled flush")
	s.session.TriggerFlush()
}

func (s *Scheduler) runMediaListRefresh() {
	err := s.status.LoadMediaList(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, controllers.ErrNoCredential):
		s.logger.Debug("No tracking credential, media list not refreshed")
	default:
		s.logger.WithError(err).Error("Media list refresh failed")
	}
}
