package partition

import (
	"path/filepath"
	"testing"
	"time"
)

func TestResolveLocation(t *testing.T) {
	createdAt := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

	got := ResolveLocation("/data/rooms", 42, createdAt)
	want := filepath.Join("/data/rooms", "2025", "01", "15", "room-42.db")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestResolveLocationIsPure(t *testing.T) {
	createdAt := time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC)

	first := ResolveLocation("/data/rooms", 7, createdAt)
	for i := 0; i < 10; i++ {
		if got := ResolveLocation("/data/rooms", 7, createdAt); got != first {
			t.Fatalf("resolution changed between calls: %q vs %q", first, got)
		}
	}
}

func TestResolveLocationZeroPadsDates(t *testing.T) {
	createdAt := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	got := ResolveLocation("/r", 1, createdAt)
	want := filepath.Join("/r", "2025", "03", "05", "room-1.db")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBackupName(t *testing.T) {
	at := time.Date(2025, 6, 30, 14, 5, 9, 0, time.UTC)

	got := backupName(42, at)
	if got != "room-42_2025-06-30_14-05-09.db" {
		t.Fatalf("unexpected backup name %q", got)
	}
}
