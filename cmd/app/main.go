// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenthub/internal/config"
	aiAdapters "agenthub/internal/infra/adapters/ai"
	pg "agenthub/internal/infra/db/postgres"
	"agenthub/internal/infra/logging"
	"agenthub/internal/infra/queue"
	red "agenthub/internal/infra/redis"
	"agenthub/internal/infra/web"
	"agenthub/internal/infra/worker"
	"agenthub/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose output)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}

	// ---- Repositories ----
	agentRepo := pg.NewAgentRepo(pool)
	taskRepo := pg.NewTaskRepo(pool)
	logRepo := pg.NewLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Queue ----
	taskQueue := queue.NewTaskQueue(redisClient, queue.Options{
		Name:          cfg.Queue.Name,
		JobTimeout:    cfg.Queue.JobTimeout,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		Backoff:       cfg.Queue.Backoff,
		PollInterval:  cfg.Queue.PollInterval,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}, logger)

	// ---- AI providers ----
	registry := aiAdapters.NewDefaultRegistry(logger)

	// ---- Worker ----
	processor := worker.NewProcessor(cfg, registry, agentRepo, taskRepo, logRepo, logger)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		taskQueue.Process(ctx, cfg.Queue.Concurrency, processor.Handle)
	}()
	logger.Info().Int("concurrency", cfg.Queue.Concurrency).
		Str("queue", cfg.Queue.Name).Msg("workers started")

	// ---- Use cases ----
	taskUC := usecase.NewTaskUseCase(taskRepo, agentRepo, logRepo, taskQueue, txManager, logger)
	agentUC := usecase.NewAgentUseCase(agentRepo, registry, logger)

	// ---- Admin API ----
	srv := web.NewServer(taskUC, agentUC, cfg.Admin.JWTSecret, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("admin api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	cancel() // stop workers; in-flight jobs observe the context
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("workers did not drain in time")
	}

	if err := taskQueue.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close")
	}
	logger.Info().Msg("bye")
}
