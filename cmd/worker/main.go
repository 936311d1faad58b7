package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"edustatus/internal/config"
	"edustatus/internal/logger"
	"edustatus/internal/notify"
	"edustatus/internal/queue"
)

// Worker consumes submission events and emits certificate-ready notifications.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis; other backends are consumed in-process")
	}

	q, closeQueue, err := queue.Open(ctx, cfg.QueueBackend, cfg.RedisAddr, cfg.QueueKey)
	if err != nil {
		log.Fatal().Err(err).Msg("queue init failed")
	}
	defer func() { _ = closeQueue() }()

	if err := notify.NewWorker().Run(ctx, q); err != nil {
		log.Error().Err(err).Msg("worker failed")
	}
}
