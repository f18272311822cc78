package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/config"
	appmodel "github.com/mraprguild/vaultlink/internal/app/model"
	apprepository "github.com/mraprguild/vaultlink/internal/app/repository"
	appserver "github.com/mraprguild/vaultlink/internal/app/server"
	appservice "github.com/mraprguild/vaultlink/internal/app/service"
	"github.com/mraprguild/vaultlink/internal/infra/logger"
	infraNATS "github.com/mraprguild/vaultlink/internal/infra/nats"
	infraPostgres "github.com/mraprguild/vaultlink/internal/infra/postgres"
	infraPrometheus "github.com/mraprguild/vaultlink/internal/infra/prometheus"
	infraRedis "github.com/mraprguild/vaultlink/internal/infra/redis"
	"github.com/mraprguild/vaultlink/internal/transport"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int64("max_file_size", cfg.Storage.MaxFileSizeBytes),
		zap.Int64("chunk_size", cfg.Storage.ChunkSizeBytes),
		zap.Int("code_length", cfg.Shortener.CodeLength),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.User{},
		&appmodel.ShortLink{},
		&appmodel.FileObject{},
		&appmodel.FileChunk{},
		&appmodel.Setting{},
		&appmodel.ClickEvent{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully")

	chunkTransport, err := transport.NewJetStream(js, transport.JetStreamOptions{
		MaxMsgSize:  cfg.Storage.ChunkSizeBytes,
		SendTimeout: parseDuration(cfg.Storage.SendTimeout, 10*time.Second),
	})
	if err != nil {
		log.Fatal("Failed to initialize chunk transport", zap.Error(err))
	}

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	userRepo := apprepository.NewUserRepository(gormDB)
	linkRepo := apprepository.NewLinkRepository(gormDB)
	fileRepo := apprepository.NewFileRepository(gormDB)
	settingRepo := apprepository.NewSettingRepository(gormDB)
	statsRepo := apprepository.NewStatsRepository(pool)
	clickRepo := apprepository.NewClickEventRepository(gormDB)

	clickPublisher := appservice.NewClickPublisher(js)
	clickConsumer := appservice.NewClickConsumer(js, log, clickRepo)
	if err := clickConsumer.Start(); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}

	shortener := appservice.NewShortener(appservice.ShortenerDeps{
		Links:    linkRepo,
		Users:    userRepo,
		Settings: settingRepo,
		Cache:    redisClient,
		Clicks:   clickPublisher,
		Config:   cfg.Shortener,
		Logger:   log,
	})
	if err := shortener.WarmFilter(ctx); err != nil {
		log.Warn("Short code filter not warmed, resolves fall through to the store", zap.Error(err))
	}

	uploader := appservice.NewUploader(appservice.UploaderDeps{
		Files:     fileRepo,
		Users:     userRepo,
		Settings:  settingRepo,
		Transport: chunkTransport,
		Locks:     appservice.NewRedisLocker(redisClient),
		Config:    cfg.Storage,
		Logger:    log,
	})
	retriever := appservice.NewRetriever(fileRepo, chunkTransport, log)
	statsAgg := appservice.NewStatsAggregator(statsRepo)

	sweeper := appservice.NewUploadSweeper(log, fileRepo,
		parseDuration(cfg.Storage.StaleUploadTTL, 24*time.Hour))
	sweeper.Start()
	defer sweeper.Stop()

	srv := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		Shortener: shortener,
		Uploader:  uploader,
		Retriever: retriever,
		Stats:     statsAgg,
		Users:     userRepo,
		Secret:    []byte(cfg.Server.Secret),
	})

	if err := srv.Listen(cfg.Server.Addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
