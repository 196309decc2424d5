// Package commands implements the kotadb CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kotadb/kotadb/internal/config"
	"github.com/kotadb/kotadb/internal/extract"
	"github.com/kotadb/kotadb/internal/index"
	"github.com/kotadb/kotadb/internal/observability"
	"github.com/kotadb/kotadb/internal/query"
	"github.com/kotadb/kotadb/internal/storage"
	"github.com/kotadb/kotadb/internal/syncx"
	"github.com/kotadb/kotadb/internal/tools"
	"github.com/kotadb/kotadb/pkg/version"
)

// GlobalOptions carries persistent root flags into subcommands.
type GlobalOptions struct {
	ConfigPath *string
	Debug      *bool
}

// App bundles the wired application for one command invocation.
type App struct {
	Cfg       *config.Config
	Providers observability.Providers
	Store     *storage.Store
	Indexer   *index.Indexer
	Query     *query.Service
	Syncer    *syncx.Syncer
	Registry  *tools.Registry
	Guard     *tools.Guard
}

// newApp loads config, initializes observability and opens the database.
func newApp(opts *GlobalOptions, metricsEnabled bool) (*App, error) {
	cfg, err := config.Load(*opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.Config{
		ServiceName:    "kotadb",
		ServiceVersion: version.Version,
		LogJSON:        cfg.Log.JSON,
		MetricsEnabled: metricsEnabled,
		TracingEnabled: metricsEnabled,
	}

	obsCfg.LogLevel = parseLevel(cfg.Log.Level)
	if *opts.Debug {
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	store, err := storage.Open(storage.Options{Path: cfg.Database.Path, Logger: providers.Logger})
	if err != nil {
		shutdownObs(providers)

		return nil, err
	}

	indexer := index.New(store, providers.Logger, extract.Options{Logger: providers.Logger})
	querySvc := query.NewService(store, cfg.Domains)
	syncer := syncx.New(store, providers.Logger)
	guard := tools.NewGuard(store, indexer, providers.Logger, cfg.Workspace.Root)

	registry, err := tools.NewCatalog(tools.Deps{
		Store:   store,
		Query:   querySvc,
		Indexer: indexer,
		Syncer:  syncer,
		Guard:   guard,
		Logger:  providers.Logger,
		Root:    cfg.Workspace.Root,
	})
	if err != nil {
		store.Close()
		shutdownObs(providers)

		return nil, err
	}

	return &App{
		Cfg:       cfg,
		Providers: providers,
		Store:     store,
		Indexer:   indexer,
		Query:     querySvc,
		Syncer:    syncer,
		Registry:  registry,
		Guard:     guard,
	}, nil
}

// Close releases the database and flushes telemetry.
func (a *App) Close() {
	err := a.Store.Close()
	if err != nil {
		a.Providers.Logger.Warn("database close failed", "error", err)
	}

	shutdownObs(a.Providers)
}

func shutdownObs(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level

	err := l.UnmarshalText([]byte(level))
	if err != nil {
		return slog.LevelInfo
	}

	return l
}
