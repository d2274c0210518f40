package presence

import (
	"context"
	"testing"
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
)

func TestHeartbeatAndOnline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Heartbeat(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.Heartbeat(ctx, 1, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := s.Heartbeat(ctx, 2, "carol"); err != nil {
		t.Fatal(err)
	}

	online, err := s.Online(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 2 {
		t.Fatalf("expected 2 online in room 1, got %d", len(online))
	}

	other, _ := s.Online(ctx, 2)
	if len(other) != 1 || other[0] != "carol" {
		t.Fatalf("presence leaked across rooms: %v", other)
	}

	empty, err := s.Online(ctx, 99)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown room should be empty, got %v", empty)
	}
}

func TestOnlineWindowExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Heartbeat(ctx, 1, "alice")
	// Backdate the heartbeat past the window.
	s.mu.Lock()
	s.online[1]["alice"] = time.Now().Add(-onlineWindow - time.Second)
	s.mu.Unlock()

	online, err := s.Online(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 0 {
		t.Fatalf("stale heartbeat should expire, got %v", online)
	}
}

func TestTypingAfter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	mark := time.Now()
	ev := models.TypingEvent{RoomID: 1, UserUUID: "alice", Action: models.TypingStart, At: mark.Add(10 * time.Millisecond)}
	if err := s.PublishTyping(ctx, ev); err != nil {
		t.Fatal(err)
	}

	got, err := s.TypingAfter(ctx, 1, mark)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserUUID != "alice" {
		t.Fatalf("expected alice's event, got %v", got)
	}

	// Strictly after: the event's own timestamp is excluded.
	none, _ := s.TypingAfter(ctx, 1, ev.At)
	if len(none) != 0 {
		t.Fatalf("expected no events at the exact mark, got %v", none)
	}
}

func TestTypingRetentionTrim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stale := models.TypingEvent{RoomID: 1, UserUUID: "old", Action: models.TypingStart, At: time.Now().Add(-typingRetention - time.Second)}
	s.PublishTyping(ctx, stale)
	fresh := models.TypingEvent{RoomID: 1, UserUUID: "new", Action: models.TypingStart}
	s.PublishTyping(ctx, fresh)

	got, _ := s.TypingAfter(ctx, 1, time.Time{})
	for _, ev := range got {
		if ev.UserUUID == "old" {
			t.Fatal("stale event survived retention trim")
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected only the fresh event, got %d", len(got))
	}
}
