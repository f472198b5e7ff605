package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"librarylog/internal/broadcast"
	"librarylog/internal/config"
	"librarylog/internal/library"
	"librarylog/internal/metrics"
	"librarylog/internal/store"
)

// App is the set of long-lived components shared by the server and worker.
type App struct {
	Config   config.App
	Logger   *zap.Logger
	DB       *store.DB
	Redis    *store.Redis // nil unless broadcast.backend is redis
	Hub      *broadcast.Hub
	Relay    *broadcast.RedisRelay
	Metrics  *metrics.Metrics
	Location *time.Location
	Repo     *library.Repository
	Service  *library.Service
	Seeder   *library.Seeder
}

// New opens the database and builds the service graph. The caller owns Close.
func New(cfg config.App, logger *zap.Logger) (*App, error) {
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Hub:      broadcast.NewHub(cfg.Broadcast.Backlog, logger.Named("broadcast")),
		Metrics:  metrics.New(),
		Location: library.LoadLocation(cfg.Library.Timezone, cfg.Library.FallbackUTCOffsetHours, logger),
	}

	var pub broadcast.Publisher = a.Hub
	if cfg.Broadcast.Backend == "redis" {
		a.Redis = store.NewRedis(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		healthy := a.Redis.Healthy(ctx)
		cancel()
		if !healthy {
			_ = a.Close()
			return nil, fmt.Errorf("redis %s unreachable", cfg.Redis.Addr)
		}
		a.Relay = broadcast.NewRedisRelay(a.Redis.Client, cfg.Broadcast.Channel, cfg.Broadcast.VersionKey, a.Hub, logger.Named("relay"))
		pub = a.Relay
	}

	a.Repo = library.NewRepository(db.Gorm)
	a.Service = library.NewService(a.Repo, pub, a.Metrics, a.Location, logger.Named("library"))
	a.Seeder = library.NewSeeder(a.Repo, a.Metrics, logger.Named("seed"))

	if cfg.Library.DefaultCapacity > 0 {
		if err := a.Service.SetCapacity(int64(cfg.Library.DefaultCapacity)); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Seed loads the configured seed file. Failures are logged, never fatal.
func (a *App) Seed(ctx context.Context) {
	path := a.Config.Library.SeedFile
	if path == "" {
		return
	}
	if _, err := a.Seeder.SeedFile(ctx, path); err != nil {
		a.Logger.Warn("seed skipped", zap.String("file", path), zap.Error(err))
	}
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	return errors.Join(a.DB.Close(), a.Redis.Close())
}
