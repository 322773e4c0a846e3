// Package app assembles a Runner and its optional ledger and publisher from
// configuration. Each binary builds one App and closes it on exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"overlayvideos/internal/blobstore"
	"overlayvideos/internal/config"
	"overlayvideos/internal/mediaservices"
	"overlayvideos/internal/overlay"
	"overlayvideos/internal/storage"
	"overlayvideos/internal/store"
)

type App struct {
	Config config.Config
	Runner *overlay.Runner
	Store  *store.Store
	Logger *slog.Logger
}

// OpenLedger opens and migrates the run ledger. It returns store.ErrDisabled
// when no database is configured.
func OpenLedger(ctx context.Context, cfg config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	return st, nil
}

// Build validates the Azure settings, authenticates and wires the optional
// ledger and result publisher.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.ValidateAzure(); err != nil {
		return nil, err
	}
	cred, err := mediaservices.NewCredential(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := mediaservices.New(cfg, cred)
	if err != nil {
		return nil, err
	}

	runner := overlay.NewRunner(svc, blobstore.New(), overlay.OptionsFromConfig(cfg), logger)
	a := &App{Config: cfg, Runner: runner, Logger: logger}

	st, err := OpenLedger(ctx, cfg)
	switch {
	case err == nil:
		a.Store = st
		runner.WithLedger(st)
	case errors.Is(err, store.ErrDisabled):
		logger.Debug("run ledger disabled")
	default:
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if cfg.PublishEnabled() {
		pub, err := storage.NewS3FromConfig(cfg)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("result publisher: %w", err)
		}
		runner.WithPublisher(pub)
		logger.Info("publishing results", "bucket", cfg.S3Bucket)
	}
	return a, nil
}

func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
