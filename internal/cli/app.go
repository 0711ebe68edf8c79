// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/api"
	"github.com/chuli1122/chuli-home-sub001/internal/blob"
	"github.com/chuli1122/chuli-home-sub001/internal/config"
	"github.com/chuli1122/chuli-home-sub001/internal/conversation"
	"github.com/chuli1122/chuli-home-sub001/internal/gesture"
	"github.com/chuli1122/chuli-home-sub001/internal/logging"
	"github.com/chuli1122/chuli-home-sub001/internal/pagination"
	"github.com/chuli1122/chuli-home-sub001/internal/scroll"
	"github.com/chuli1122/chuli-home-sub001/internal/session"
	"github.com/chuli1122/chuli-home-sub001/internal/storage"
	"github.com/chuli1122/chuli-home-sub001/internal/telemetry"
	"github.com/chuli1122/chuli-home-sub001/internal/ui/chat"
)

// app holds everything a command needs, built from the config.
type app struct {
	cfg     *config.Config
	cfgPath string
	log     *zap.Logger

	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	stats    *telemetry.StreamStats

	client *api.Client
	blobDB *blob.SQLiteStore
	blobs  blob.Store
	prefs  *session.Store

	// Set only for the TUI.
	surface *chat.Surface
	anchor  *scroll.Anchor

	conv *conversation.Conversation

	cancel context.CancelFunc
}

// appOptions selects the parts of the app a command needs.
type appOptions struct {
	// tui wires a scroll anchor and watches the config for tuning changes.
	tui bool

	// console enables the stderr log core when the config asks for it.
	console bool
}

// loadConfig reads the config named by flags and applies flag overrides.
func loadConfig(flags *rootFlags) (*config.Config, string, error) {
	path := flags.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	if flags.session != "" {
		cfg.Session.ID = flags.session
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.verbose {
		cfg.Log.Console = true
	}
	return cfg, path, nil
}

// newApp builds the app. Callers must call close.
func newApp(ctx context.Context, flags *rootFlags, opts appOptions) (*app, error) {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logOpts, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	logOpts.Console = logOpts.Console && opts.console
	log, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		cfg:      cfg,
		cfgPath:  path,
		log:      log,
		registry: prometheus.NewRegistry(),
		stats:    telemetry.NewStreamStats(),
		cancel:   cancel,
	}
	a.metrics = telemetry.New(a.registry)
	if cfg.Metrics.ListenAddr != "" {
		telemetry.Serve(ctx, cfg.Metrics.ListenAddr, a.registry, log)
		log.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	a.client = api.New(api.Options{
		BaseURL:   cfg.Server.BaseURL,
		Token:     cfg.Server.Token,
		Timeout:   cfg.Timeout(),
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Logger:    log,
	})

	blobPath, err := cfg.BlobDBPath()
	if err != nil {
		a.close()
		return nil, err
	}
	a.blobDB, err = blob.OpenSQLite(blobPath)
	if err != nil {
		a.close()
		return nil, err
	}
	a.blobs = blob.NewCached(a.blobDB, cfg.BlobCacheTTL())

	docs, err := storage.NewDocumentStoreWithDir(dataDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open state directory: %w", err)
	}
	a.prefs = session.NewPreferences(docs)
	if err := a.prefs.Load(); err != nil {
		log.Warn("ignoring unreadable preferences", zap.Error(err))
	}

	convOpts := conversation.Options{
		SessionID: cfg.Session.ID,
		Paging: pagination.Config{
			PageSize:         cfg.Session.PageSize,
			NearTopThreshold: cfg.Scroll.NearTopLines,
		},
		Reconcile:    cfg.Session.Reconcile,
		FallbackText: cfg.Stream.FallbackText,
		Blobs:        a.blobs,
		Metrics:      a.metrics,
		Stats:        a.stats,
		Logger:       log,
	}
	if opts.tui {
		a.surface = chat.NewSurface()
		a.anchor = scroll.NewAnchor(a.surface, a.surface, anchorConfig(cfg))
		convOpts.Anchor = a.anchor
		a.watchConfig(ctx)
	}
	a.conv = conversation.New(a.client, convOpts)

	log.Info("session opened",
		zap.String("session", cfg.Session.ID),
		zap.String("server", a.client.BaseURL()))
	return a, nil
}

// watchConfig applies scroll threshold changes from the config file while
// the TUI runs.
func (a *app) watchConfig(ctx context.Context) {
	err := config.Watch(ctx, a.cfgPath, func(cfg *config.Config) {
		a.anchor.SetConfig(anchorConfig(cfg))
		a.log.Info("config reloaded", zap.String("path", a.cfgPath))
	}, func(err error) {
		a.log.Warn("config reload failed", zap.Error(err))
	})
	if err != nil {
		a.log.Debug("config watch unavailable", zap.Error(err))
	}
}

// anchorConfig maps the scroll section onto anchor thresholds.
func anchorConfig(cfg *config.Config) scroll.Config {
	return scroll.Config{
		NearBottomThreshold: cfg.Scroll.NearBottomLines,
		FollowBudget:        cfg.FollowBudget(),
		LocatorDuration:     cfg.LocatorDuration(),
	}
}

// gestureConfig maps the gesture section onto row geometry in cells.
func gestureConfig(cfg *config.Config) gesture.Config {
	width := float64(cfg.Gesture.ActionWidth)
	return gesture.Config{
		ActionWidth:      width,
		SnapThreshold:    width * cfg.Gesture.SnapFraction,
		AxisLockDistance: float64(cfg.Gesture.AxisLock),
	}
}

// close stops background work and releases the stores.
func (a *app) close() {
	if a.conv != nil {
		a.conv.Close()
	}
	if a.prefs != nil {
		if err := a.prefs.Flush(); err != nil {
			a.log.Warn("saving preferences failed", zap.Error(err))
		}
	}
	if a.blobDB != nil {
		if err := a.blobDB.Close(); err != nil {
			a.log.Warn("closing blob store failed", zap.Error(err))
		}
	}
	a.cancel()
	_ = a.log.Sync()
}
