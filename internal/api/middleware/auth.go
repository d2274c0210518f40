package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/token"
)

type contextKey string

const identityContextKey contextKey = "identity"

// AuthMiddleware verifies access tokens minted by the external auth service.
// Verification is all-or-nothing: a request either carries a valid token and
// proceeds with the embedded identity, or it is unauthenticated. There is no
// session or placeholder fallback.
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := token.Verify(strings.TrimPrefix(header, "Bearer "), m.secret)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated identities without the admin scope.
// Must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetIdentityFromContext(r.Context()).IsAdmin() {
			jsonError(w, http.StatusForbidden, "admin scope required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentityFromContext retrieves the verified identity from the request
// context, or nil when the request is unauthenticated.
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(identityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}
