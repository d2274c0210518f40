package presence

import (
	"context"
	"sync"
	"time"

	"github.com/jinyphp/chat-sub002/internal/models"
)

// MemoryStore is the in-process presence backend for development and tests.
// Only useful when every stream connection lives in the same process.
type MemoryStore struct {
	mu     sync.Mutex
	online map[int64]map[string]time.Time // room -> user -> last heartbeat
	typing map[int64][]models.TypingEvent
}

// NewMemoryStore creates an empty in-memory presence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		online: make(map[int64]map[string]time.Time),
		typing: make(map[int64][]models.TypingEvent),
	}
}

// Heartbeat marks the user online now.
func (s *MemoryStore) Heartbeat(_ context.Context, roomID int64, userUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.online[roomID]
	if !ok {
		room = make(map[string]time.Time)
		s.online[roomID] = room
	}
	room[userUUID] = time.Now()
	return nil
}

// Online returns users with a heartbeat inside the online window.
func (s *MemoryStore) Online(_ context.Context, roomID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-onlineWindow)
	var users []string
	for user, seen := range s.online[roomID] {
		if seen.Before(cutoff) {
			delete(s.online[roomID], user)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// PublishTyping records one typing transition.
func (s *MemoryStore) PublishTyping(_ context.Context, ev models.TypingEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-typingRetention)
	kept := s.typing[ev.RoomID][:0]
	for _, old := range s.typing[ev.RoomID] {
		if old.At.After(cutoff) {
			kept = append(kept, old)
		}
	}
	s.typing[ev.RoomID] = append(kept, ev)
	return nil
}

// TypingAfter returns typing events recorded strictly after since.
func (s *MemoryStore) TypingAfter(_ context.Context, roomID int64, since time.Time) ([]models.TypingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []models.TypingEvent
	for _, ev := range s.typing[roomID] {
		if ev.At.After(since) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
