// Package token verifies access tokens minted by the external auth service.
// The service shares an HS256 secret with us; a token carries the verified
// user identity and nothing else. There is no anonymous or placeholder
// identity: verification either yields an Identity or fails.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrExpiredToken = errors.New("access token expired")
)

// Claims is the JWT claim set issued by the auth service.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and validates tokenString and returns the embedded identity.
func Verify(tokenString, secret string) (*models.Identity, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}

	userUUID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	return &models.Identity{
		UUID:  userUUID,
		Name:  claims.Name,
		Scope: claims.Scope,
	}, nil
}

// Mint signs a token for the given identity. Used by the tokengen dev tool
// and by tests; in production the auth service is the only issuer.
func Mint(id models.Identity, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  id.Name,
		Scope: id.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UUID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
