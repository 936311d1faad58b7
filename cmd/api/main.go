package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"edustatus/internal/api"
	"edustatus/internal/auth"
	"edustatus/internal/config"
	"edustatus/internal/derived"
	"edustatus/internal/logger"
	"edustatus/internal/notify"
	"edustatus/internal/queue"
	"edustatus/internal/store"
	"edustatus/internal/submission"
)

const defaultSigningKey = "dev-signing-secret-change"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.JWTSigningKey == defaultSigningKey {
			log.Warn().Msg("JWT_SIGNING_KEY is the development default")
		}
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	medium, err := store.OpenMedium(ctx, store.BackendConfig{
		Backend:     cfg.StoreBackend,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, medium)
	if err != nil {
		_ = medium.Close()
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}()
	log.Info().Str("backend", cfg.StoreBackend).Msg("store opened")

	q, closeQueue, err := queue.Open(ctx, cfg.QueueBackend, cfg.RedisAddr, cfg.QueueKey)
	if err != nil {
		return err
	}
	defer func() { _ = closeQueue() }()

	// An in-memory queue has no other consumer.
	if cfg.QueueBackend == "memory" {
		go func() { _ = notify.NewWorker().Run(ctx, q) }()
	}

	authSvc, err := auth.NewService(ctx, st)
	if err != nil {
		return err
	}
	h := api.New(
		authSvc,
		auth.NewTokens(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		submission.NewTracker(st, submission.WithQueue(q)),
		derived.NewGenerator(st, nil),
		st,
	)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.Router(api.RouterOptions{
			CORSOrigins:         cfg.CORSOrigins,
			AuthRateLimitPerMin: cfg.AuthRateLimitPerMin,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}

	log.Info().Msg("server exited")
	return nil
}
