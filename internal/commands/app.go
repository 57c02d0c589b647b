package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/roadmap/internal/core/config"
	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/data/db"
	"github.com/colonyops/roadmap/internal/data/pgstore"
	"github.com/colonyops/roadmap/internal/data/s3store"
	"github.com/colonyops/roadmap/internal/data/stores"
	"github.com/colonyops/roadmap/internal/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap/activity"
	"github.com/colonyops/roadmap/internal/roadmap/github"
	"github.com/colonyops/roadmap/internal/roadmap/identity"
)

// App holds the dependencies commands share. It is allocated before the
// command tree is built and populated by the Before hook of the commands
// that touch the roadmap.
type App struct {
	flags *Flags

	Config  *config.Config
	Service *roadmap.Service
	KV      *stores.KVStore

	closers []func() error
}

// NewApp returns an unopened App reading its config from flags.
func NewApp(flags *Flags) *App {
	return &App{flags: flags}
}

// Before opens the app once the root hook has loaded the config.
func (a *App) Before(ctx context.Context, _ *cli.Command) (context.Context, error) {
	if a.Service != nil {
		return ctx, nil
	}
	return ctx, a.Open(ctx, a.flags.Config)
}

// Open wires the service for cfg. The local sqlite database is always
// opened since it holds the identity cache and timeline cursors; the
// roadmap documents live in the configured backend.
func (a *App) Open(ctx context.Context, cfg *config.Config) error {
	opts := db.OpenOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	}
	database, err := db.Open(cfg.DataDir, opts)
	if err != nil && stores.IsCorruptionError(err) {
		// The local database only holds caches and cursors, so starting
		// over costs a re-fetch at most.
		backup, qerr := stores.QuarantineCorrupt(cfg.DataDir)
		if qerr != nil {
			return fmt.Errorf("open database: %w", errors.Join(err, qerr))
		}
		log.Warn().Err(err).Str("backup", backup).Msg("local database was corrupt, starting fresh")
		database, err = db.Open(cfg.DataDir, opts)
	}
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, database.Close)

	kvStore := stores.NewKVStore(database)

	shared, err := a.openShared(ctx, cfg, kvStore)
	if err != nil {
		return err
	}

	gh := github.New(github.Config{
		BaseURL: cfg.Github.BaseURL,
		Token:   cfg.Github.Token,
		Timeout: cfg.Github.Timeout,
	})

	a.Config = cfg
	a.KV = kvStore
	a.Service = roadmap.New(roadmap.Deps{
		Store:  shared,
		KV:     kvStore,
		Prefix: cfg.Store.KeyPrefix,
		Identity: identity.New(identity.Config{
			URL:      cfg.Identity.URL,
			CacheTTL: cfg.Identity.CacheTTL,
			Timeout:  cfg.Identity.Timeout,
		}, kvStore),
		Fetcher:      gh,
		Feed:         activity.New(cfg.Activity.URL, cfg.Activity.Timeout),
		Contributors: gh,
		Timeline:     gh,
		Workers:      cfg.Github.FetchWorkers,
		StaleAfter:   cfg.Github.StaleAfter,
		MaxEvents:    cfg.Events.MaxEvents,
		ArchiveLimit: cfg.Messages.ArchiveLimit,
	})

	return nil
}

func (a *App) openShared(ctx context.Context, cfg *config.Config, local *stores.KVStore) (kv.Versioned, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := pgstore.Open(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		return pg, nil
	case config.BackendS3:
		s3, err := s3store.New(ctx, s3store.Config{
			Bucket:         cfg.Store.S3.Bucket,
			Region:         cfg.Store.S3.Region,
			Endpoint:       cfg.Store.S3.Endpoint,
			ForcePathStyle: cfg.Store.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		return s3, nil
	default:
		return local, nil
	}
}

// Close releases everything Open acquired, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("failed to close resource")
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
