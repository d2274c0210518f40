package token

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
)

const testSecret = "test-secret"

func TestMintVerifyRoundTrip(t *testing.T) {
	id := models.Identity{UUID: uuid.New(), Name: "alice", Scope: models.ScopeAdmin}

	signed, err := Mint(id, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Verify(signed, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if got.UUID != id.UUID || got.Name != "alice" || !got.IsAdmin() {
		t.Fatalf("identity mismatch: %+v", got)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	signed, err := Mint(models.Identity{UUID: uuid.New()}, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(signed, "other-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	signed, err := Mint(models.Identity{UUID: uuid.New()}, testSecret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(signed, testSecret); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	for _, tok := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := Verify(tok, testSecret); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", tok, err)
		}
	}
}
