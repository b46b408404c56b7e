// Package main starts the HTTP API. It owns meeting creation and reads;
// stage processing runs in the worker binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/api"
	"github.com/dyparkkk-lg/meeting-ai/internal/config"
	"github.com/dyparkkk-lg/meeting-ai/internal/database"
	"github.com/dyparkkk-lg/meeting-ai/internal/queue"
	"github.com/dyparkkk-lg/meeting-ai/internal/repository"
	"github.com/dyparkkk-lg/meeting-ai/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	repo := repository.NewMeetingRepository(pool)

	audio, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := audio.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	sched := queue.NewEnqueuer(client, cfg.MaxAttempts)

	srv := api.New(cfg, repo, audio, sched, log)
	if err := srv.Run(ctx); err != nil {
		log.WithField("error", err.Error()).Error("server stopped")
		os.Exit(1)
	}
}
