package stream

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/events"
	"github.com/jinyphp/chat-sub002/internal/metrics"
	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
)

// fakePartition serves canned messages to the delivery loop.
type fakePartition struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (f *fakePartition) add(m models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = int64(len(f.msgs) + 1)
	f.msgs = append(f.msgs, m)
}

func (f *fakePartition) MessagesAfter(_ context.Context, lastID int64, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.msgs {
		if m.ID > lastID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakePartition) LatestMessageID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.msgs)), nil
}

// fakeOpener counts partition opens so tests can prove authorization happens
// first.
type fakeOpener struct {
	mu    sync.Mutex
	part  *fakePartition
	opens int
}

func (f *fakeOpener) Open(context.Context, int64, time.Time) (Partition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.part, nil
}

func (f *fakeOpener) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// chanSink collects frames; closing done releases waiting tests.
type chanSink struct {
	frames chan events.Frame
}

func newChanSink() *chanSink {
	return &chanSink{frames: make(chan events.Frame, 64)}
}

func (s *chanSink) WriteFrame(f events.Frame) error {
	s.frames <- f
	return nil
}

func (s *chanSink) next(t *testing.T) events.Frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return events.Frame{}
	}
}

type streamFixture struct {
	registry *store.SQLiteRegistry
	opener   *fakeOpener
	endpoint *Endpoint
	room     *models.Room
	member   models.Identity
}

func newStreamFixture(t *testing.T) *streamFixture {
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
		Role:        models.RoleOwner,
		Status:      models.ParticipantActive,
	}); err != nil {
		t.Fatal(err)
	}

	opener := &fakeOpener{part: &fakePartition{}}
	ep := NewEndpoint(registry, opener, presence.NewMemoryStore(), zerolog.Nop(),
		10*time.Millisecond, time.Hour, time.Hour)

	return &streamFixture{registry: registry, opener: opener, endpoint: ep, room: room, member: member}
}

func TestServeUnauthorizedNeverOpensPartition(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	stranger := models.Identity{UUID: uuid.New()}
	err := f.endpoint.Serve(ctx, newChanSink(), f.room.ID, &stranger)

	var aerr *chat.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if n := f.opener.openCount(); n != 0 {
		t.Fatalf("unauthorized stream opened the partition %d times", n)
	}
}

func TestServeRejectsInactiveRoom(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	if err := f.registry.UpdateRoomStatus(ctx, f.room.ID, models.RoomArchived); err != nil {
		t.Fatal(err)
	}

	err := f.endpoint.Serve(ctx, newChanSink(), f.room.ID, &f.member)
	var aerr *chat.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if n := f.opener.openCount(); n != 0 {
		t.Fatalf("rejected stream opened the partition %d times", n)
	}
}

func TestServeDeliversConnectedThenMessages(t *testing.T) {
	f := newStreamFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := newChanSink()
	done := make(chan error, 1)
	go func() {
		done <- f.endpoint.Serve(ctx, sink, f.room.ID, &f.member)
	}()

	first := sink.next(t)
	if first.Event != events.EventConnected {
		t.Fatalf("expected connected first, got %q", first.Event)
	}

	f.opener.part.add(models.Message{Type: models.TypeText, Content: "hello", SenderUUID: "someone-else"})

	got := sink.next(t)
	if got.Event != events.EventMessageSent {
		t.Fatalf("expected message.sent, got %q", got.Event)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("disconnect should end the stream cleanly, got %v", err)
	}
}

func TestServeSkipsBacklog(t *testing.T) {
	f := newStreamFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rows existing before the connection are history, not stream traffic.
	f.opener.part.add(models.Message{Type: models.TypeText, Content: "old", SenderUUID: "u"})
	f.opener.part.add(models.Message{Type: models.TypeText, Content: "older", SenderUUID: "u"})

	sink := newChanSink()
	done := make(chan error, 1)
	go func() {
		done <- f.endpoint.Serve(ctx, sink, f.room.ID, &f.member)
	}()

	if first := sink.next(t); first.Event != events.EventConnected {
		t.Fatalf("expected connected, got %q", first.Event)
	}

	f.opener.part.add(models.Message{Type: models.TypeText, Content: "new", SenderUUID: "u"})

	got := sink.next(t)
	if got.Event != events.EventMessageSent {
		t.Fatalf("expected the new message only, got %q", got.Event)
	}

	select {
	case extra := <-sink.frames:
		t.Fatalf("unexpected extra frame %q", extra.Event)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
}

// failingSink simulates a dead client connection.
type failingSink struct {
	wrote chan struct{}
	once  sync.Once
}

func (s *failingSink) WriteFrame(events.Frame) error {
	s.once.Do(func() { close(s.wrote) })
	return errors.New("broken pipe")
}

func TestServeStopsOnSinkFailure(t *testing.T) {
	f := newStreamFixture(t)
	ctx := context.Background()

	sink := &failingSink{wrote: make(chan struct{})}
	err := f.endpoint.Serve(ctx, sink, f.room.ID, &f.member)
	if err == nil {
		t.Fatal("expected sink failure to end the stream")
	}
	select {
	case <-sink.wrote:
	default:
		t.Fatal("sink was never written to")
	}
}

// cancelPartition fails reads once its context is cancelled, the way the
// sqlite-backed partition does.
type cancelPartition struct {
	fakePartition
}

func (p *cancelPartition) MessagesAfter(ctx context.Context, lastID int64, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fakePartition.MessagesAfter(ctx, lastID, limit)
}

type staticOpener struct {
	part Partition
}

func (o staticOpener) Open(context.Context, int64, time.Time) (Partition, error) {
	return o.part, nil
}

func TestServeDisconnectIsNotAnError(t *testing.T) {
	f := newStreamFixture(t)
	ep := NewEndpoint(f.registry, staticOpener{part: &cancelPartition{}}, presence.NewMemoryStore(),
		zerolog.Nop(), 10*time.Millisecond, time.Hour, time.Hour)

	errorsBefore := testutil.ToFloat64(metrics.StreamErrors)

	ctx, cancel := context.WithCancel(context.Background())
	sink := newChanSink()
	done := make(chan error, 1)
	go func() { done <- ep.Serve(ctx, sink, f.room.ID, &f.member) }()

	if first := sink.next(t); first.Event != events.EventConnected {
		t.Fatalf("expected connected, got %q", first.Event)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("disconnect should close the stream cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after disconnect")
	}

	for {
		select {
		case fr := <-sink.frames:
			if fr.Event == events.EventError {
				t.Fatal("error frame emitted for a normal disconnect")
			}
		default:
			if got := testutil.ToFloat64(metrics.StreamErrors) - errorsBefore; got != 0 {
				t.Fatalf("stream error counter moved by %v on a normal disconnect", got)
			}
			return
		}
	}
}
