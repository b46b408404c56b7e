// Package main starts the stage worker. It drains the Redis-backed
// queue and drives meetings through transcription, analysis and
// rendering.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/config"
	"github.com/dyparkkk-lg/meeting-ai/internal/database"
	"github.com/dyparkkk-lg/meeting-ai/internal/pipeline"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers"
	"github.com/dyparkkk-lg/meeting-ai/internal/queue"
	"github.com/dyparkkk-lg/meeting-ai/internal/repository"
	"github.com/dyparkkk-lg/meeting-ai/internal/s3storage"
	"github.com/dyparkkk-lg/meeting-ai/internal/worker"
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

	transcriber, err := providers.NewTranscriber(cfg, log)
	if err != nil {
		log.Fatalf("init transcriber: %v", err)
	}
	analyzer, err := providers.NewAnalyzer(cfg, log)
	if err != nil {
		log.Fatalf("init analyzer: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redisOpt)
	defer client.Close()
	sched := queue.NewEnqueuer(client, cfg.MaxAttempts)

	p := pipeline.New(repo, audio, transcriber, analyzer, sched, cfg.DefaultLanguage, log)
	processor := worker.NewProcessor(p, log)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return queue.RetryDelay(n, cfg.RetryBaseDelay)
		},
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.WithField("concurrency", cfg.Concurrency).Info("worker starting")
	if err := server.Run(processor.Handler()); err != nil {
		log.WithField("error", err.Error()).Error("worker stopped")
		os.Exit(1)
	}
}
