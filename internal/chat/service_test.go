package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
)

type fixture struct {
	registry *store.SQLiteRegistry
	svc      *Service
	room     *models.Room
	alice    models.Identity
	bob      models.Identity
}

func newFixture(t *testing.T, slowMode int, dailyCap int) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	registry, err := store.NewSQLiteRegistry(ctx, filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	prov, err := partition.NewProvisioner(filepath.Join(dir, "rooms"), 8)
	require.NoError(t, err)
	t.Cleanup(prov.Close)

	alice := models.Identity{UUID: uuid.New(), Name: "alice"}
	bob := models.Identity{UUID: uuid.New(), Name: "bob"}

	room, err := registry.CreateRoom(ctx, store.CreateRoomInput{
		Code:            "general",
		Title:           "General",
		OwnerUUID:       alice.UUID,
		SlowModeSeconds: slowMode,
		DailyMessageCap: dailyCap,
	})
	require.NoError(t, err)

	for _, id := range []models.Identity{alice, bob} {
		require.NoError(t, registry.AddParticipant(ctx, &models.Participant{
			RoomID:      room.ID,
			UserUUID:    id.UUID,
			DisplayName: id.Name,
			Role:        models.RoleMember,
			Status:      models.ParticipantActive,
		}))
	}

	svc := NewService(registry, prov, presence.NewMemoryStore(), 64, zerolog.Nop())
	return &fixture{registry: registry, svc: svc, room: room, alice: alice, bob: bob}
}

func TestAppendPersistsAndCounts(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	msg, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "hello"})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)
	require.Equal(t, models.TypeText, msg.Type)
	require.Equal(t, f.alice.UUID.String(), msg.SenderUUID)
	require.Equal(t, "alice", msg.SenderName)

	room, err := f.registry.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, room.MessageCount)
	require.NotNil(t, room.LastMessageAt)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	var verr *ValidationError

	_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: ""})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "content", verr.Field)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: string(long)})
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Type: "carrier-pigeon", Content: "hi"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)
}

func TestAppendRejectsNonParticipants(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	stranger := models.Identity{UUID: uuid.New(), Name: "mallory"}
	_, err := f.svc.Append(ctx, f.room.ID, &stranger, AppendInput{Content: "hi"})
	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)

	require.NoError(t, f.registry.SetParticipantStatus(ctx, f.room.ID, f.bob.UUID, models.ParticipantBanned))
	_, err = f.svc.Append(ctx, f.room.ID, &f.bob, AppendInput{Content: "hi"})
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, "banned", aerr.Reason)
}

func TestAppendSlowMode(t *testing.T) {
	f := newFixture(t, 60, 0)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "first"})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "second"})
	var perr *PolicyError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, PolicySlowMode, perr.Reason)
	require.Greater(t, perr.RetryAfter, time.Duration(0))

	// Slow mode is per sender; bob is unaffected by alice's cooldown.
	_, err = f.svc.Append(ctx, f.room.ID, &f.bob, AppendInput{Content: "bob speaks"})
	require.NoError(t, err)
}

func TestAppendDailyCap(t *testing.T) {
	f := newFixture(t, 0, 2)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "one"})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, f.room.ID, &f.bob, AppendInput{Content: "two"})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "three"})
	var perr *PolicyError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, PolicyDailyCap, perr.Reason)
}

func TestAppendSystemBypassesPolicy(t *testing.T) {
	f := newFixture(t, 60, 1)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "fills the cap"})
	require.NoError(t, err)

	// System messages ignore slow mode, the daily cap, and membership.
	for i := 0; i < 3; i++ {
		msg, err := f.svc.Append(ctx, f.room.ID, nil, AppendInput{Content: "room archived soon"})
		require.NoError(t, err)
		require.True(t, msg.IsSystem)
		require.Equal(t, models.TypeSystem, msg.Type)
		require.Empty(t, msg.SenderUUID)
	}
}

func TestAppendReplyThreading(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	root, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "root"})
	require.NoError(t, err)

	reply, err := f.svc.Append(ctx, f.room.ID, &f.bob, AppendInput{Content: "reply", ReplyToID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ThreadRootID)
	require.Equal(t, root.ID, *reply.ThreadRootID)

	// Replying to a reply still roots at the original message.
	nested, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "nested", ReplyToID: &reply.ID})
	require.NoError(t, err)
	require.Equal(t, root.ID, *nested.ThreadRootID)

	dangling := int64(9999)
	_, err = f.svc.Append(ctx, f.room.ID, &f.bob, AppendInput{Content: "nope", ReplyToID: &dangling})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "reply_to_id", verr.Field)
}

func TestAppendInactiveRoom(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	require.NoError(t, f.registry.UpdateRoomStatus(ctx, f.room.ID, models.RoomArchived))

	_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	msg, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "read me"})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(ctx, f.room.ID, &f.bob, msg.ID))
	require.NoError(t, f.svc.MarkRead(ctx, f.room.ID, &f.bob, msg.ID))

	stranger := models.Identity{UUID: uuid.New()}
	err = f.svc.MarkRead(ctx, f.room.ID, &stranger, msg.ID)
	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)
}

func TestTyping(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Typing(ctx, f.room.ID, &f.alice, models.TypingStart))
	require.NoError(t, f.svc.Typing(ctx, f.room.ID, &f.alice, models.TypingStop))

	err := f.svc.Typing(ctx, f.room.ID, &f.alice, "dancing")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestRecount(t *testing.T) {
	f := newFixture(t, 0, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Append(ctx, f.room.ID, &f.alice, AppendInput{Content: "x"})
		require.NoError(t, err)
	}

	// Drift the counter, then reconcile from the partition.
	require.NoError(t, f.registry.SetMessageCount(ctx, f.room.ID, 99))

	n, err := f.svc.Recount(ctx, f.room.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	room, err := f.registry.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, room.MessageCount)
}
