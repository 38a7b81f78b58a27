package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"github.com/chenguojun06-star/fz66666-sub008/config"
	"github.com/chenguojun06-star/fz66666-sub008/handlers"
	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

// app holds every long-lived dependency of one process.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *gorm.DB
	pool  *pgxpool.Pool
	cache *services.CacheService

	statsRepo      repos.StatsRepo
	predictionRepo repos.PredictionRepo
	engine         *services.StatsEngine
	scheduler      *services.Scheduler
	predictions    *services.PredictionService
	feedback       *services.FeedbackService
	auth           *services.AuthService
	bridge         *services.StationBridge
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := repos.OpenPostgres(cfg.Database.GetDSN())
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.ScanDSN())
	if err != nil {
		return nil, fmt.Errorf("open scan store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping scan store: %w", err)
	}

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, running without stats cache or run notifications", "error", err)
	}

	a := &app{cfg: cfg, log: log, db: db, pool: pool, cache: cache}
	a.statsRepo = repos.NewStatsRepo(db, log)
	a.predictionRepo = repos.NewPredictionRepo(db, log)

	scans := repos.NewScanReader(pool, log)
	a.engine = services.NewStatsEngine(scans, scans, a.statsRepo, cache, log, services.StatsEngineConfig{
		LookbackDays:  cfg.Stats.LookbackDays,
		TenantTimeout: cfg.Stats.TenantTimeout,
		CacheTTL:      cfg.Stats.CacheTTL,
	})
	a.scheduler = services.NewScheduler(a.engine, cache, log, services.SchedulerConfig{
		Spec:        cfg.Stats.Cron,
		Concurrency: cfg.Stats.TenantConcurrency,
	})
	a.predictions = services.NewPredictionService(a.statsRepo, a.predictionRepo, cache, log, services.PredictionServiceConfig{
		RuleStageMinutes: cfg.Rule.StageMinutes,
		CacheTTL:         cfg.Stats.CacheTTL,
	})
	a.feedback = services.NewFeedbackService(a.predictionRepo, log)
	a.auth = services.NewAuthService(cfg.JWT)
	if cfg.MQTT.Enabled() {
		a.bridge = services.NewStationBridge(a.predictions, cfg.MQTT, log)
	}
	return a, nil
}

func (a *app) routerDeps() handlers.RouterDeps {
	return handlers.RouterDeps{
		Log:          a.log,
		CORS:         a.cfg.CORS,
		Auth:         a.auth,
		Predictions:  a.predictions,
		Feedback:     a.feedback,
		StatsRepo:    a.statsRepo,
		PredictionDB: a.predictionRepo,
		Cache:        a.cache,
		HealthChecks: map[string]handlers.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := a.db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"scan_store": a.pool.Ping,
		},
	}
}

func (a *app) close() {
	a.scheduler.Stop()
	if a.bridge != nil {
		a.bridge.Stop()
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn("close redis", "error", err)
	}
	a.pool.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Sync()
}
