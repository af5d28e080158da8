// Package app wires configuration, cache, scrapers and the aggregator into
// the pieces the binaries serve.
package app

import (
	"context"
	"fmt"

	"github.com/leonardcser/magnetite/internal/aggregator"
	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/config"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/sites"
	"github.com/leonardcser/magnetite/internal/sites/gcores"
	"github.com/leonardcser/magnetite/internal/web"
)

const envConfigPath = "MAGNETITE_CONFIG"

type App struct {
	Config   *config.Config
	Store    *cache.Instrumented
	Registry *sites.Registry
	Feeds    *aggregator.Aggregator
}

// New opens the configured cache and builds every site. configPath is
// forwarded to an auto-started cache daemon.
func New(ctx context.Context, cfg *config.Config, configPath string) (*App, error) {
	sc := cfg.Cache.StoreConfig()
	logger.Infof("Opening %s cache (expire %s)", sc.Backend, sc.TTL)
	store, err := openStore(ctx, sc, cfg.Cache.AutoStart, configPath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	instrumented := cache.NewInstrumented(store)

	client, err := web.NewClient(web.Options{
		Proxy:       cfg.Proxy,
		Parallelism: cfg.Sites.Gcores.Concurrency,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	registry := sites.NewRegistry(gcores.New(client, gcores.Options{
		BaseURL:     cfg.Sites.Gcores.BaseURL,
		ImageURL:    cfg.Sites.Gcores.ImageURL,
		Markdown:    cfg.Sites.Gcores.Format == "markdown",
		Concurrency: cfg.Sites.Gcores.Concurrency,
		Expire:      sc.TTL,
	}))
	logger.Infof("Registered sites: %v", registry.Names())

	return &App{
		Config:   cfg,
		Store:    instrumented,
		Registry: registry,
		Feeds:    aggregator.New(cache.NewStorage(instrumented), registry),
	}, nil
}

// Close releases the cache.
func (a *App) Close() error {
	return a.Store.Close()
}

// InitLogger points the process logger at cfg.LogPath with cfg.LoggerLevel.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.LogPath); err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LoggerLevel))
	return nil
}
