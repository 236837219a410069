package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/corridorx/corridor-gateway/internal/auth"
	"github.com/corridorx/corridor-gateway/internal/config"
	"github.com/corridorx/corridor-gateway/internal/database"
	"github.com/corridorx/corridor-gateway/internal/ingest"
	"github.com/corridorx/corridor-gateway/internal/middleware"
	"github.com/corridorx/corridor-gateway/internal/server"
	"github.com/corridorx/corridor-gateway/internal/wzdx"
	"github.com/corridorx/corridor-gateway/pkg/cache"
	"github.com/corridorx/corridor-gateway/pkg/kvstore"
	"github.com/corridorx/corridor-gateway/pkg/metrics"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := config.Load(); err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	cfg := config.GetConfig()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database")
		}
	}()
	repo := database.NewRepository(db, logger)

	store := cache.NewStore(logger)
	defer store.Stop()

	var counters kvstore.CounterStore
	if cfg.Redis.Enabled {
		redisStore, err := kvstore.NewRedisStore(kvstore.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisStore.Close()
		counters = redisStore
	} else {
		// Per-process counters: rate limits and the response cache are only
		// accurate for a single instance. Enable redis before scaling out.
		counters = kvstore.NewMemoryStore()
	}

	sources, err := config.LoadSources(cfg.Feed.SourcesFile)
	if err != nil {
		logger.WithError(err).Warn("no data source descriptors loaded; feed will advertise none")
		sources = &config.SourcesConfig{}
	}

	authenticator := auth.NewAuthenticator(repo, store, logger)
	limiter := auth.NewRateLimiter(counters)
	authMW := middleware.NewAuthMiddleware(authenticator, limiter, repo, logger)
	transformer := wzdx.NewTransformer(cfg.Feed, sources.Sources, logger)
	pipeline := ingest.NewPipeline(repo, logger)

	metrics.Initialize()

	srv := server.New(cfg, logger, repo, repo, store, transformer, pipeline, authMW)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("gateway stopped")
}
