package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter throttles authenticated write traffic per identity using a
// fixed one-minute Redis window. Slow mode and daily caps are room policy
// and live in the write service; this guard only protects the process from
// a misbehaving client.
type RateLimiter struct {
	client *redis.Client
	limit  int
	logger zerolog.Logger
}

// NewRateLimiter creates a per-identity rate limiter. A nil client or a
// non-positive limit disables it.
func NewRateLimiter(client *redis.Client, limit int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, logger: logger}
}

// Middleware enforces the limit on state-changing requests.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.client == nil || l.limit <= 0 || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		identity := GetIdentityFromContext(r.Context())
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%d", identity.UUID, time.Now().Unix()/60)
		count, err := l.client.Incr(r.Context(), key).Result()
		if err != nil {
			// Redis trouble must not block writes; log and wave through.
			l.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			l.client.Expire(r.Context(), key, time.Minute)
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(l.limit) {
			w.Header().Set("Retry-After", "60")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
