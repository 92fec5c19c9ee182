package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/newthinker/tadash/internal/analysis"
	"github.com/newthinker/tadash/internal/cache"
	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/collector/binance"
	"github.com/newthinker/tadash/internal/collector/yahoo"
	"github.com/newthinker/tadash/internal/config"
	"github.com/newthinker/tadash/internal/core"
	"github.com/newthinker/tadash/internal/logger"
	"github.com/newthinker/tadash/internal/metrics"
	"github.com/newthinker/tadash/internal/storage/archive"
	"go.uber.org/zap"
)

// app holds the wired components shared by serve and analyze
type app struct {
	cfg      *config.Config
	service  *analysis.Service
	searcher collector.Searcher
	cached   *cache.Cached
	store    cache.Store
	provider string
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	return logger.Build(logger.Options{Development: debug, Level: logLevel})
}

func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// build wires collector, cache, archive and analysis service from cfg.
// reg may be nil.
func build(ctx context.Context, cfg *config.Config, reg *metrics.Registry, log *zap.Logger) (*app, error) {
	providerCfg := collector.Config{
		BaseURL:   cfg.Provider.BaseURL,
		SearchURL: cfg.Provider.SearchURL,
		Timeout:   cfg.Provider.Timeout,
	}
	collectors := collector.NewRegistry()
	collectors.Register(yahoo.New(providerCfg, log.Named("yahoo")))
	collectors.Register(binance.New(providerCfg, log.Named("binance")))

	name := cfg.Provider.Name
	if name == "" {
		name = "yahoo"
	}
	source, ok := collectors.Get(name)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown provider %q, available: %v", name, collectors.Names()))
	}

	a := &app{cfg: cfg, provider: source.Name()}
	if s, ok := source.(collector.Searcher); ok {
		a.searcher = s
	}

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	opts := []analysis.Option{}
	if reg != nil {
		opts = append(opts, analysis.WithRecorder(reg))
	}

	if store != nil {
		a.store = store
		a.cached = cache.NewCached(source, store, cfg.CacheTTL(), log.Named("cache"))
		if reg != nil {
			a.cached.SetObserver(reg)
		}
		source = a.cached
	}

	if cfg.Export.Archive.Enabled {
		storage, err := openArchive(cfg.Export.Archive)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, analysis.WithArchiver(archive.NewArchiver(storage)))
	}

	a.service = analysis.NewService(source, log.Named("analysis"), opts...)
	return a, nil
}

// openStore returns nil for the "none" backend
func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "", "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		s, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, core.WrapError(core.ErrCacheFailed, err)
		}
		return s, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, core.WrapError(core.ErrCacheFailed, err)
			}
		}
		s, err := cache.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, core.WrapError(core.ErrCacheFailed, err)
		}
		return s, nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown cache backend %q", cfg.Backend))
	}
}

func openArchive(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, errors.New("unknown archive type "+cfg.Type))
	}
}
