package channels

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/store"
)

func setup(t *testing.T) (*Authorizer, *store.SQLiteRegistry, *models.Room, models.Identity) {
	t.Helper()
	ctx := context.Background()

	registry, err := store.NewSQLiteRegistry(ctx, filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(registry.Close)

	member := models.Identity{UUID: uuid.New(), Name: "alice"}
	room, err := registry.CreateRoom(ctx, store.CreateRoomInput{Code: "general", OwnerUUID: member.UUID})
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.AddParticipant(ctx, &models.Participant{
		RoomID:      room.ID,
		UserUUID:    member.UUID,
		DisplayName: "alice",
		Avatar:      "a.png",
		Role:        models.RoleOwner,
		Status:      models.ParticipantActive,
	}); err != nil {
		t.Fatal(err)
	}

	return NewAuthorizer(registry), registry, room, member
}

func TestAuthorizeRoomChannels(t *testing.T) {
	a, _, room, member := setup(t)
	ctx := context.Background()

	for _, prefix := range []string{"chat-room", "chat-presence", "chat-typing"} {
		channel := fmt.Sprintf("%s.%d", prefix, room.ID)
		profile, ok := a.Authorize(ctx, &member, channel)
		if !ok {
			t.Fatalf("expected grant on %s", channel)
		}
		if profile.UserUUID != member.UUID.String() || profile.DisplayName != "alice" || profile.Role != models.RoleOwner {
			t.Fatalf("wrong profile on %s: %+v", channel, profile)
		}
	}
}

func TestAuthorizeUserChannel(t *testing.T) {
	a, _, _, member := setup(t)
	ctx := context.Background()

	own := "chat-user." + member.UUID.String()
	if _, ok := a.Authorize(ctx, &member, own); !ok {
		t.Fatal("expected grant on own user channel")
	}

	other := "chat-user." + uuid.NewString()
	if _, ok := a.Authorize(ctx, &member, other); ok {
		t.Fatal("must not subscribe to another user's channel")
	}
}

func TestAuthorizeRejections(t *testing.T) {
	a, registry, room, member := setup(t)
	ctx := context.Background()

	roomChannel := fmt.Sprintf("chat-room.%d", room.ID)

	if _, ok := a.Authorize(ctx, nil, roomChannel); ok {
		t.Fatal("nil identity must be rejected")
	}

	stranger := models.Identity{UUID: uuid.New()}
	if _, ok := a.Authorize(ctx, &stranger, roomChannel); ok {
		t.Fatal("non-participant must be rejected")
	}

	for _, channel := range []string{
		"chat-room.notanumber",
		"chat-room.",
		"kitchen-sink.1",
		"chat-user.short",
		"",
	} {
		if _, ok := a.Authorize(ctx, &member, channel); ok {
			t.Fatalf("malformed channel %q must be rejected", channel)
		}
	}

	// Banned members lose every room-scoped channel.
	if err := registry.SetParticipantStatus(ctx, room.ID, member.UUID, models.ParticipantBanned); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Authorize(ctx, &member, roomChannel); ok {
		t.Fatal("banned member must be rejected")
	}

	// Inactive rooms reject everyone.
	if err := registry.SetParticipantStatus(ctx, room.ID, member.UUID, models.ParticipantActive); err != nil {
		t.Fatal(err)
	}
	if err := registry.UpdateRoomStatus(ctx, room.ID, models.RoomArchived); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Authorize(ctx, &member, roomChannel); ok {
		t.Fatal("archived room must be rejected")
	}
}

func TestAuthorizeRejectionGrantsNothing(t *testing.T) {
	a, _, room, _ := setup(t)
	ctx := context.Background()

	stranger := models.Identity{UUID: uuid.New(), Name: "mallory"}
	profile, ok := a.Authorize(ctx, &stranger, fmt.Sprintf("chat-room.%d", room.ID))
	if ok {
		t.Fatal("expected rejection")
	}
	if profile != (PublicProfile{}) {
		t.Fatalf("rejection must carry a zero profile, got %+v", profile)
	}
}
