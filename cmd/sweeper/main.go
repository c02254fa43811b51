package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bermybanana/api/internal/cache"
	"bermybanana/api/internal/config"
	"bermybanana/api/internal/database"
	"bermybanana/api/internal/jobs"
	"bermybanana/api/internal/log"
	"bermybanana/api/internal/queue"
	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/storage"
)

const (
	consumerGroup = "sweeper"
	claimInterval = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "sweeper"
	}

	reclaimer := jobs.NewReclaimer(
		repository.NewOutputRepository(dbPool),
		repository.NewReferenceRepository(dbPool),
		objectStore,
		logger,
	)
	consumer := queue.NewConsumer(
		redisClient,
		cfg.Retention.CleanupStream,
		consumerGroup,
		hostname,
		claimInterval,
		logger,
		reclaimer,
	)

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("consumer group setup failed")
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
