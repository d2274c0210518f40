// Package api wires the HTTP surface together: middleware stack, route table,
// and the split between public, authenticated, and admin route groups.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/api/middleware"
	"github.com/jinyphp/chat-sub002/internal/config"
	"github.com/jinyphp/chat-sub002/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(cfg.AuthSecret)

	// Keyed by identity, so it must run after RequireAuth has populated the
	// context. No-op without Redis or a configured limit.
	limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)

	// Authenticated routes (require a bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(limiter.Middleware)

		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Post("/rooms/{id}/join", h.JoinRoom)
		r.Post("/rooms/{id}/leave", h.LeaveRoom)

		r.Post("/rooms/{id}/messages", h.PostMessage)
		r.Get("/rooms/{id}/messages", h.GetMessages)
		r.Post("/rooms/{id}/read", h.MarkRead)
		r.Post("/rooms/{id}/typing", h.Typing)

		r.Get("/rooms/{id}/stream", h.Stream)

		if cfg.BroadcasterEnabled {
			r.Post("/broadcasting/auth", h.BroadcastAuth)
		}
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(auth.RequireAdmin)
		r.Use(limiter.Middleware)

		r.Get("/admin/partitions", h.ListPartitions)
		r.Get("/admin/partitions/stats", h.PartitionStats)
		r.Get("/admin/partitions/{id}/size", h.PartitionSize)
		r.Post("/admin/partitions/{id}/backup", h.BackupPartition)
		r.Post("/admin/partitions/{id}/optimize", h.OptimizePartition)
		r.Delete("/admin/partitions/{id}", h.DeletePartition)
		r.Post("/admin/rooms/{id}/status", h.SetRoomStatus)
		r.Post("/admin/rooms/{id}/recount", h.RecountRoom)
	})

	return r
}
