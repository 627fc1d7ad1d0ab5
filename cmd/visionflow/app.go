package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/visionflow/agent/artifacts"
	"github.com/BaSui01/visionflow/agent/chatctx"
	"github.com/BaSui01/visionflow/agent/detect"
	"github.com/BaSui01/visionflow/agent/imagefetch"
	"github.com/BaSui01/visionflow/agent/room"
	"github.com/BaSui01/visionflow/agent/session"
	"github.com/BaSui01/visionflow/agent/vision"
	"github.com/BaSui01/visionflow/config"
	"github.com/BaSui01/visionflow/internal/cache"
	"github.com/BaSui01/visionflow/internal/database"
	"github.com/BaSui01/visionflow/internal/metrics"
	"github.com/BaSui01/visionflow/internal/server"
	"github.com/BaSui01/visionflow/internal/telemetry"
	"github.com/BaSui01/visionflow/llm"
	"github.com/BaSui01/visionflow/llm/gemini"
)

// App wires the worker: HTTP server, room worker, artifact janitor and the
// optional Redis and database backends.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	metrics   *metrics.Collector
	cache     *cache.Manager
	db        *database.PoolManager
	artifacts *artifacts.Manager
	worker    *room.Worker
	http      *server.Manager
}

// NewApp builds every component from cfg. Redis and the database are only
// dialed when configured.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.telemetry = providers
	a.metrics = metrics.NewCollector("visionflow", logger)

	var sessionOpts []session.Option
	if cfg.Redis.Enabled() {
		a.cache, err = cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix,
			DefaultTTL:          cfg.Redis.SnapshotTTL,
			MaxRetries:          3,
			PoolSize:            cfg.Redis.PoolSize,
			HealthCheckInterval: 30 * time.Second,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		store := chatctx.NewRedisSnapshotStore(a.cache, cfg.Redis.SnapshotTTL, logger)
		sessionOpts = append(sessionOpts, session.WithSnapshotStore(store))
	}

	index, err := a.openIndex()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.artifacts, err = artifacts.NewManager(artifacts.Config{
		Dir:             cfg.Artifacts.Dir,
		Index:           cfg.Artifacts.Index,
		MaxAge:          cfg.Artifacts.MaxAge,
		MaxFiles:        cfg.Artifacts.MaxFiles,
		CleanupInterval: cfg.Artifacts.CleanupInterval,
	}, index, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	generator := gemini.NewProvider(gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)

	a.worker = room.NewWorker(room.WorkerConfig{
		ChunkBuffer:  cfg.Ingest.ChunkBuffer,
		ReadLimit:    1 << 20,
		StartTimeout: cfg.Agent.ReplyTimeout + 30*time.Second,
	}, newAuthenticator(cfg.Auth), a.sessionFactory(generator, sessionOpts), a.agentFactory(), logger,
		room.WithWorkerMetrics(a.metrics))

	handler := server.NewHandler(server.Routes{
		Rooms:  a.worker,
		Checks: a.readinessChecks(),
	}, a.metrics, logger)

	a.http = server.NewManager(handler, server.Config{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    server.DefaultConfig().MaxHeaderBytes,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		TLSCertFile:       cfg.Server.TLSCertFile,
		TLSKeyFile:        cfg.Server.TLSKeyFile,
	}, logger)

	return a, nil
}

func (a *App) openIndex() (artifacts.Index, error) {
	if a.cfg.Artifacts.Index != "db" {
		idx, err := artifacts.NewFileIndex(a.cfg.Artifacts.Dir)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}

	pool := database.DefaultPoolConfig()
	if a.cfg.Database.MaxOpenConns > 0 {
		pool.MaxOpenConns = a.cfg.Database.MaxOpenConns
	}
	if a.cfg.Database.MaxIdleConns > 0 {
		pool.MaxIdleConns = a.cfg.Database.MaxIdleConns
	}
	if a.cfg.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = a.cfg.Database.ConnMaxLifetime
	}

	db, err := database.Open(database.Config{
		Driver:   a.cfg.Database.Driver,
		DSN:      a.cfg.Database.DSN(),
		LogLevel: a.cfg.Database.LogLevel,
		Pool:     pool,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	idx, err := artifacts.NewGormIndex(db.DB())
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (a *App) sessionFactory(generator llm.Generator, opts []session.Option) room.SessionFactory {
	agentCfg := a.cfg.Agent
	return func(rm *room.Room) *session.AgentSession {
		return session.NewAgentSession(session.Config{
			Instructions: agentCfg.Instructions,
			AutoReply:    agentCfg.AutoReply,
			ReplyTimeout: agentCfg.ReplyTimeout,
		}, generator, rm, a.logger.With(zap.String("room", rm.Name())), opts...)
	}
}

// agentFactory gives every session its own fetcher so the fetch rate limit
// applies per session.
func (a *App) agentFactory() room.AgentFactory {
	cfg := a.cfg
	return func(rm *room.Room) session.Agent {
		fetcher := imagefetch.New(imagefetch.Config{
			Timeout:      cfg.Fetch.Timeout,
			MaxBytes:     cfg.Fetch.MaxBytes,
			RatePerSec:   cfg.Fetch.RatePerSec,
			Burst:        cfg.Fetch.Burst,
			BlockPrivate: cfg.Fetch.BlockPrivate,
		}, a.logger)

		return vision.New(vision.Config{
			Topic:               cfg.Agent.ByteStreamTopic,
			GreetingInstruction: cfg.Agent.GreetingInstruction,
			DrainTimeout:        cfg.Ingest.DrainTimeout,
			MaxStreamBytes:      cfg.Ingest.MaxBytes,
			MaxConcurrentTasks:  cfg.Agent.MaxConcurrentTasks,
		}, fetcher, a.artifacts, a.logger.With(zap.String("room", rm.Name())),
			vision.WithDetector(detect.NewRegexDetector(cfg.Agent.ImageHints...)),
			vision.WithMetrics(a.metrics),
		)
	}
}

func (a *App) readinessChecks() map[string]server.ReadinessCheck {
	checks := map[string]server.ReadinessCheck{}
	if a.cache != nil {
		checks["redis"] = a.cache.Ping
	}
	if a.db != nil {
		checks["database"] = a.db.Ping
	}
	return checks
}

// Run serves until ctx is cancelled or a component fails, then disconnects
// every room within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.http.Run(gctx)
	})
	g.Go(func() error {
		return a.artifacts.RunJanitor(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = server.DefaultConfig().ShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		if err := a.worker.Close(shutdownCtx); err != nil {
			a.logger.Warn("rooms did not close in time", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the backends. It is safe on a partially built App.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}
