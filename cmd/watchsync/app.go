package main

import (
	"fmt"
	"path/filepath"

	"github.com/amaumene/watchsync/internal/config"
	"github.com/amaumene/watchsync/internal/controllers"
	"github.com/amaumene/watchsync/internal/models"
	"github.com/amaumene/watchsync/internal/services/anilist"
	"github.com/amaumene/watchsync/internal/services/mirror"
	"github.com/amaumene/watchsync/internal/utils"
	"github.com/sirupsen/logrus"
)

// app holds the wired engine shared by serve and the one-shot commands
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *models.Database

	tracker        *anilist.Client
	trackerTokens  *anilist.FileTokenStore
	trackingIdent  *anilist.Identity
	mirrorIdentity *mirror.FileIdentity

	queue      *controllers.PendingQueue
	library    *controllers.LibraryController
	status     *controllers.StatusManager
	reconciler *controllers.Reconciler
	session    *controllers.SessionController
}

// newApp loads the configuration and wires every component
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Debug("Configuration loaded")

	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		tracker:        anilist.NewClient(cfg.AniListAPIURL, logger),
		trackerTokens:  anilist.NewFileTokenStore(cfg.TrackerTokenFile),
		mirrorIdentity: mirror.NewFileIdentity(cfg.MirrorIdentityFile),
	}
	a.trackingIdent = anilist.NewIdentity(a.trackerTokens)

	// A nil DocumentStore leaves the mirror permanently unavailable
	var store mirror.DocumentStore
	if cfg.MirrorURL != "" {
		httpStore, err := mirror.NewHTTPDocumentStore(cfg.MirrorURL, a.mirrorIdentity, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize mirror: %w", err)
		}
		store = httpStore
	} else {
		logger.Info("MIRROR_URL not set, remote mirror disabled")
	}
	mirrorClient := mirror.NewClient(store, a.mirrorIdentity, logger)

	a.queue, err = controllers.NewPendingQueue(db, cfg.FlushDelay, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	throttle := controllers.NewProgressThrottle()
	a.library = controllers.NewLibraryController(db, mirrorClient, a.mirrorIdentity, throttle, logger)
	a.status = controllers.NewStatusManager(a.library, a.tracker, a.trackingIdent, a.queue, cfg.AutoSyncTracker, cfg.MediaListTTL, logger)
	a.library.SetStatusManager(a.status)
	a.reconciler = controllers.NewReconciler(db, mirrorClient, a.library.Publish, logger)
	a.session = controllers.NewSessionController(a.mirrorIdentity, a.trackingIdent, a.reconciler, a.status, throttle, logger)

	return a, nil
}

// Close waits for background flushes and closes the database
func (a *app) Close() {
	a.session.Close()
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close database")
	}
}
