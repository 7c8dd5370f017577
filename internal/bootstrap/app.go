// Package bootstrap wires configuration into the harvester components.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/catalog-harvester/pkg/catalog"
	"github.com/Sternrassler/catalog-harvester/pkg/client"
	"github.com/Sternrassler/catalog-harvester/pkg/config"
	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/Sternrassler/catalog-harvester/pkg/logging"
	"github.com/Sternrassler/catalog-harvester/pkg/storage"
	"github.com/Sternrassler/catalog-harvester/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when an optional component is requested but
// its configuration is empty.
var ErrNotConfigured = errors.New("not configured")

// App holds the components built from one configuration. Optional parts are
// opened on first use and released by Close.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	redis     *redis.Client
	client    *client.Client
	catalog   *catalog.Service
	artifacts *storage.ArtifactStore
	mirror    *storage.Mirror
	store     *store.Store
}

// New validates cfg, sets up logging and opens the artifact store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	app := &App{Config: cfg, Logger: logging.NewLogger("harvester")}

	var err error
	if cfg.Storage.BucketURL != "" {
		app.artifacts, err = storage.OpenURL(ctx, cfg.Storage.BucketURL)
	} else {
		app.artifacts, err = storage.OpenLocal(cfg.Storage.LocalDir)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	return app, nil
}

// Artifacts returns the page and merged artifact store.
func (a *App) Artifacts() *storage.ArtifactStore {
	return a.artifacts
}

// Catalog returns the catalog service, creating the HTTP client and the
// optional Redis connection on first call.
func (a *App) Catalog(ctx context.Context) (*catalog.Service, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	cc := a.Config.Catalog

	if a.Config.Redis.Addr != "" && a.redis == nil {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", a.Config.Redis.Addr, err)
		}
		a.Logger.Info().Str("addr", a.Config.Redis.Addr).Msg("Connected to Redis")
		a.redis = rdb
	}

	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = cc.BaseURL
	clientCfg.APIKey = cc.APIKey
	clientCfg.BearerToken = cc.BearerToken
	clientCfg.UserAgent = cc.UserAgent
	clientCfg.Timeout = cc.Timeout
	clientCfg.Redis = a.redis
	if cc.Retry.MaxAttempts > 0 {
		clientCfg.Retry = &client.RetryConfig{
			MaxAttempts:       cc.Retry.MaxAttempts,
			InitialBackoff:    cc.Retry.InitialBackoff,
			MaxBackoff:        cc.Retry.MaxBackoff,
			BackoffMultiplier: cc.Retry.Multiplier,
		}
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	svc, err := catalog.New(c, catalog.Options{
		IncludeAdult:         cc.IncludeAdult,
		MinRuntime:           cc.MinRuntime,
		CertificationCountry: cc.CertificationCountry,
		CertificationLTE:     cc.CertificationLTE,
		Language:             cc.Language,
		MemoSize:             cc.MemoSize,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create catalog service: %w", err)
	}

	a.client = c
	a.catalog = svc
	return svc, nil
}

// Mirror opens the mirror bucket. It returns ErrNotConfigured when no mirror
// URL is set.
func (a *App) Mirror(ctx context.Context) (*storage.Mirror, error) {
	if a.mirror != nil {
		return a.mirror, nil
	}
	if a.Config.Storage.MirrorURL == "" {
		return nil, fmt.Errorf("mirror: %w", ErrNotConfigured)
	}
	m, err := storage.OpenMirror(ctx, a.Config.Storage.MirrorURL, a.Config.Storage.MirrorPrefix)
	if err != nil {
		return nil, err
	}
	a.mirror = m
	return m, nil
}

// Store connects to the database, applying the schema when configured to.
// It returns ErrNotConfigured when no DSN is set.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.Config.Database.DSN == "" {
		return nil, fmt.Errorf("database: %w", ErrNotConfigured)
	}
	st, err := store.Open(ctx, a.Config.Database.DSN)
	if err != nil {
		return nil, err
	}
	if a.Config.Database.Migrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}
	a.store = st
	return st, nil
}

// PipelineOptions selects the publishers attached to a pipeline.
type PipelineOptions struct {
	Upload bool
	Load   bool
}

// Pipeline builds a pipeline writing artifacts to the configured store.
func (a *App) Pipeline(ctx context.Context, opts PipelineOptions) (*harvest.Pipeline, error) {
	svc, err := a.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	var publishers []harvest.Publisher
	if opts.Upload {
		m, err := a.Mirror(ctx)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, m)
	}
	if opts.Load {
		st, err := a.Store(ctx)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, st)
	}

	return harvest.NewPipeline(svc, a.artifacts, a.artifacts, a.HarvestOptions(), publishers...), nil
}

// HarvestOptions maps the harvest section onto pipeline options.
func (a *App) HarvestOptions() harvest.Options {
	h := a.Config.Harvest
	return harvest.Options{
		Workers:              h.Workers,
		PartitionConcurrency: h.PartitionConcurrency,
		UnitTimeout:          h.UnitTimeout,
		ReconcilePasses:      h.ReconcilePasses,
		MaxPages:             h.MaxPages,
	}
}

// Close releases every opened component.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.mirror != nil {
		errs = append(errs, a.mirror.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.artifacts != nil {
		errs = append(errs, a.artifacts.Close())
	}
	return errors.Join(errs...)
}
