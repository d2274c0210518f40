package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/channels"
	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/config"
	"github.com/jinyphp/chat-sub002/internal/handlers"
	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
	"github.com/jinyphp/chat-sub002/internal/stream"
	"github.com/jinyphp/chat-sub002/internal/token"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T, cfg *config.Config, redisClient *redis.Client, logs *bytes.Buffer) http.Handler {
	t.Helper()
	ctx := context.Background()

	registry, err := store.NewSQLiteRegistry(ctx, filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(registry.Close)

	prov, err := partition.NewProvisioner(t.TempDir(), 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(prov.Close)

	logger := zerolog.New(logs)
	pres := presence.NewMemoryStore()
	chatSvc := chat.NewService(registry, prov, pres, 4096, logger)
	streamEp := stream.NewEndpoint(registry, stream.ProvisionerOpener{Provisioner: prov}, pres, logger, time.Second, time.Minute, time.Minute)
	auth := channels.NewAuthorizer(registry)

	h := handlers.NewHandler(registry, prov, pres, chatSvc, streamEp, auth, logger)
	return NewRouter(cfg, logger, h, redisClient)
}

func mintTestToken(t *testing.T) string {
	t.Helper()
	tok, err := token.Mint(models.Identity{UUID: uuid.New(), Name: "alice", Scope: models.ScopeUser}, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func postJSON(router http.Handler, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// The limiter is keyed by identity, so it has to run inside the
// authenticated groups. A Redis client pointing at a closed port makes every
// limiter attempt observable as a wave-through warning in the logs.
func TestRateLimiterRunsWithIdentity(t *testing.T) {
	cfg := &config.Config{AuthSecret: testSecret, RateLimitPerMinute: 1}
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { redisClient.Close() })

	var logs bytes.Buffer
	router := newTestRouter(t, cfg, redisClient, &logs)

	rec := postJSON(router, "/rooms", mintTestToken(t), `{"code":"general","title":"General"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite Redis being down, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(logs.String(), "rate limit check failed") {
		t.Fatal("limiter never attempted a check for an authenticated write")
	}
}

func TestRateLimiterSkipsUnauthenticated(t *testing.T) {
	cfg := &config.Config{AuthSecret: testSecret, RateLimitPerMinute: 1}
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { redisClient.Close() })

	var logs bytes.Buffer
	router := newTestRouter(t, cfg, redisClient, &logs)

	rec := postJSON(router, "/rooms", "", `{"code":"general","title":"General"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.Contains(logs.String(), "rate limit check failed") {
		t.Fatal("limiter ran before authentication")
	}
}
