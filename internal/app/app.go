// Package app assembles the chat service from configuration. The API server
// and the terminal client share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/analystchat/analystchat/internal/analyst"
	"github.com/analystchat/analystchat/internal/archive"
	"github.com/analystchat/analystchat/internal/chat"
	"github.com/analystchat/analystchat/internal/config"
	"github.com/analystchat/analystchat/internal/migrations"
	"github.com/analystchat/analystchat/internal/query"
	duckdbengine "github.com/analystchat/analystchat/internal/query/duckdb"
	pgengine "github.com/analystchat/analystchat/internal/query/postgres"
	"github.com/analystchat/analystchat/internal/render"
	"github.com/analystchat/analystchat/internal/session"
	pgsessions "github.com/analystchat/analystchat/internal/session/postgres"
	redisstore "github.com/analystchat/analystchat/internal/session/redis"
	s3store "github.com/analystchat/analystchat/internal/storage/s3"
)

type HealthCheck func(ctx context.Context) error

type App struct {
	Chat     *chat.Service
	Renderer *render.Renderer
	Checks   []HealthCheck

	// Sessions is set when sessions live in postgres; its janitor purges
	// expired rows.
	Sessions      *pgsessions.Store
	PurgeInterval time.Duration

	objects *s3store.Store
	closers []func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{}

	client, err := analyst.NewClient(analyst.Config{
		BaseURL:   cfg.Analyst.BaseURL,
		Token:     cfg.Analyst.Token,
		TokenType: cfg.Analyst.TokenType,
		Timeout:   cfg.Analyst.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("analyst client: %w", err)
	}

	engine, err := a.openEngine(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	store, err := a.openSessionStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Renderer = render.New(engine, render.Options{
		RowLimit:     cfg.Warehouse.RowLimit,
		CacheResults: cfg.Render.CacheResults,
		CacheSize:    cfg.Render.CacheSize,
		Logger:       logger,
	})

	var archiver chat.TranscriptArchiver
	if cfg.Archive.Enabled {
		objectStore, err := a.objectStore(cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		archiver = archive.New(objectStore)
		logger.Info("transcript archive enabled", slog.String("bucket", cfg.ObjectStore.Bucket))
	}

	a.Chat, err = chat.NewService(client, store, a.Renderer, chat.Config{
		Model: analyst.SemanticModel{
			Database: cfg.SemanticModel.Database,
			Schema:   cfg.SemanticModel.Schema,
			Stage:    cfg.SemanticModel.Stage,
			File:     cfg.SemanticModel.File,
		},
		HistoryWindow: cfg.Analyst.HistoryWindow,
		Debug:         cfg.Analyst.Debug,
		Archiver:      archiver,
	}, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (query.Engine, error) {
	switch cfg.Warehouse.Engine {
	case config.EnginePostgres:
		db, err := pgengine.Open(ctx, pgengine.DBConfig{
			DSN:             cfg.Warehouse.DSN,
			ApplicationName: cfg.Service.Name + "-warehouse",
			ReadOnly:        true,
			MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
			MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
			ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		engine := pgengine.NewEngine(db, cfg.Warehouse.QueryTimeout)
		a.Checks = append(a.Checks, engine.HealthCheck)
		a.closers = append(a.closers, engine.Close)
		return engine, nil

	case config.EngineDuckDB:
		duckCfg := duckdbengine.Config{
			Path:         cfg.Warehouse.DuckDBPath,
			Datasets:     cfg.Warehouse.Datasets,
			QueryTimeout: cfg.Warehouse.QueryTimeout,
		}
		if len(cfg.Warehouse.Datasets) > 0 {
			objectStore, err := a.objectStore(cfg)
			if err != nil {
				return nil, err
			}
			duckCfg.Store = objectStore
		}
		engine, err := duckdbengine.Open(ctx, duckCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("duckdb warehouse ready", slog.Int("datasets", len(cfg.Warehouse.Datasets)))
		a.Checks = append(a.Checks, engine.HealthCheck)
		a.closers = append(a.closers, engine.Close)
		return engine, nil

	default:
		return nil, fmt.Errorf("unsupported warehouse engine %q", cfg.Warehouse.Engine)
	}
}

// objectStore connects to the bucket once; datasets and the transcript
// archive share the client.
func (a *App) objectStore(cfg config.Config) (*s3store.Store, error) {
	if a.objects != nil {
		return a.objects, nil
	}
	store, err := s3store.New(s3store.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		Bucket:          cfg.ObjectStore.Bucket,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UseSSL:          cfg.ObjectStore.UseSSL,
		Prefix:          cfg.ObjectStore.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	a.objects = store
	a.Checks = append(a.Checks, store.HealthCheck)
	return store, nil
}

func (a *App) openSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:      cfg.Session.RedisAddr,
			Username:  cfg.Session.RedisUsername,
			Password:  cfg.Session.RedisPassword,
			DB:        cfg.Session.RedisDB,
			KeyPrefix: cfg.Session.RedisKeyPrefix,
			TTL:       cfg.Session.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.Checks = append(a.Checks, store.HealthCheck)
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.SessionBackendPostgres:
		db, err := pgengine.Open(ctx, pgengine.DBConfig{DSN: cfg.Session.DSN, ApplicationName: cfg.Service.Name + "-sessions"})
		if err != nil {
			return nil, fmt.Errorf("session db: %w", err)
		}
		store := pgsessions.NewStore(db, cfg.Session.TTL)
		runner := migrations.NewRunner()
		a.Checks = append(a.Checks, store.HealthCheck, func(ctx context.Context) error {
			return runner.CheckCurrent(ctx, db)
		})
		a.closers = append(a.closers, store.Close)
		a.Sessions = store
		a.PurgeInterval = cfg.Session.PurgeInterval
		return store, nil
	case config.SessionBackendMemory:
		return session.NewMemoryStore(cfg.Session.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
	}
}

// RunBackground runs maintenance loops until ctx is done.
func (a *App) RunBackground(ctx context.Context, logger *slog.Logger) {
	if a.Sessions != nil {
		a.Sessions.RunJanitor(ctx, a.PurgeInterval, logger)
	}
}

// Ready runs every dependency check in registration order.
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.Checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
