package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Central room registry. RegistryURL selects PostgreSQL; when empty the
	// registry falls back to a local SQLite file at RegistryPath.
	RegistryURL  string
	RegistryPath string

	// Root directory under which per-room partition files live.
	PartitionRoot string
	// Maximum number of open partition handles cached per process.
	PartitionCacheSize int

	// Presence / typing store. Optional in development (in-memory fallback).
	RedisURL string

	// Shared secret for verifying access tokens minted by the auth service.
	AuthSecret string

	// Write policy defaults.
	MaxMessageLength int

	// Streaming intervals.
	PollInterval      time.Duration
	RosterInterval    time.Duration
	HeartbeatInterval time.Duration

	// Whether the broker-backed broadcaster transport is configured
	// (exposes the channel authorization endpoint).
	BroadcasterEnabled bool

	// Per-identity write rate limit (requests per minute, 0 disables).
	RateLimitPerMinute int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		RegistryURL:        os.Getenv("REGISTRY_URL"),
		RegistryPath:       getEnv("REGISTRY_PATH", "./data/registry.db"),
		PartitionRoot:      getEnv("PARTITION_ROOT", "./data/rooms"),
		PartitionCacheSize: getEnvInt("PARTITION_CACHE_SIZE", 128),
		RedisURL:           os.Getenv("REDIS_URL"),
		AuthSecret:         os.Getenv("AUTH_SECRET"),
		MaxMessageLength:   getEnvInt("MAX_MESSAGE_LENGTH", 4096),
		PollInterval:       getEnvDuration("POLL_INTERVAL", time.Second),
		RosterInterval:     getEnvDuration("ROSTER_INTERVAL", 30*time.Second),
		HeartbeatInterval:  getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		BroadcasterEnabled: getEnv("BROADCASTER_ENABLED", "false") == "true",
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
	}

	// In production, require the auth secret and an explicit partition root
	if cfg.Env == "production" {
		if cfg.AuthSecret == "" {
			panic("AUTH_SECRET is required in production")
		}
		if os.Getenv("PARTITION_ROOT") == "" {
			panic("PARTITION_ROOT is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
