package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"nestlist/internal/api"
	"nestlist/internal/cache"
	"nestlist/internal/config"
	"nestlist/internal/db"
	"nestlist/internal/logger"
	"nestlist/internal/storage"
	"nestlist/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'worker' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		logger.L().Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			logger.L().Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	ctxIdx, cancelIdx := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctxIdx, mongoDb); err != nil {
		cancelIdx()
		logger.L().Fatal("failed to ensure indexes", zap.Error(err))
	}
	cancelIdx()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.L().Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logger.L().Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	s3StorageService, s3Client, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.L().Fatal("failed to initialize S3 storage", zap.Error(err))
	}

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	taskProcessor := tasks.NewTaskProcessor(cfg, s3StorageService, s3Client)

	var wg sync.WaitGroup

	var apiSrv *http.Server
	var workerSrv *asynq.Server

	logger.L().Info("starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		router := api.SetupRouter(cfg, mongoDb, redisClient, taskClient, s3StorageService)
		apiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.L().Info("API listening", zap.String("port", cfg.ApiPort))
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L().Fatal("API ListenAndServe error", zap.Error(err))
			}
			logger.L().Info("API server stopped")
		}()
	}

	workerMode := func() {
		srv, mux := tasks.SetupServer(redisClient, taskProcessor)
		workerSrv = srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.L().Info("task worker starting")
			if err := workerSrv.Run(mux); err != nil {
				logger.L().Fatal("task worker error", zap.Error(err))
			}
			logger.L().Info("task worker stopped")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "worker":
		workerMode()
	case "all":
		apiMode()
		workerMode()
	default:
		logger.L().Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.L().Info("received signal, shutting down", zap.String("signal", sig.String()))

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if apiSrv != nil {
		if err := apiSrv.Shutdown(ctxShutdown); err != nil {
			logger.L().Error("API server shutdown error", zap.Error(err))
		}
	}
	if workerSrv != nil {
		workerSrv.Shutdown()
	}

	wg.Wait()
	logger.L().Info("shutdown complete")
}
