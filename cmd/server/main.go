package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/api"
	"github.com/jinyphp/chat-sub002/internal/channels"
	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/config"
	"github.com/jinyphp/chat-sub002/internal/handlers"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
	"github.com/jinyphp/chat-sub002/internal/stream"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Room registry: PostgreSQL when configured, otherwise local SQLite.
	var registry store.Registry
	if cfg.RegistryURL != "" {
		pg, err := store.NewPostgresRegistry(ctx, cfg.RegistryURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		registry = pg
		logger.Info().Msg("registry: PostgreSQL")
	} else {
		sq, err := store.NewSQLiteRegistry(ctx, cfg.RegistryPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite registry open failed")
		}
		registry = sq
		logger.Info().Str("path", cfg.RegistryPath).Msg("registry: SQLite")
	}
	defer registry.Close()

	// Presence backend: Redis when configured, otherwise in-process.
	var (
		pres        presence.Store
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		rs, err := presence.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		pres = rs
		redisClient = rs.Client()
		logger.Info().Msg("presence: Redis")
	} else {
		pres = presence.NewMemoryStore()
		logger.Info().Msg("presence: in-memory")
	}
	defer pres.Close()

	// Per-room partition storage
	prov, err := partition.NewProvisioner(cfg.PartitionRoot, cfg.PartitionCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("partition root unavailable")
	}
	defer prov.Close()
	logger.Info().Str("root", cfg.PartitionRoot).Msg("partition storage ready")

	chatSvc := chat.NewService(registry, prov, pres, cfg.MaxMessageLength, logger)
	streamEp := stream.NewEndpoint(registry, stream.ProvisionerOpener{Provisioner: prov}, pres, logger,
		cfg.PollInterval, cfg.RosterInterval, cfg.HeartbeatInterval)
	authorizer := channels.NewAuthorizer(registry)

	h := handlers.NewHandler(registry, prov, pres, chatSvc, streamEp, authorizer, logger)
	router := api.NewRouter(cfg, logger, h, redisClient)

	// Create server. WriteTimeout stays at zero: streaming connections are
	// long-lived by design and enforce their own liveness via heartbeats.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
