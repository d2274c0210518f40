package partition

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jinyphp/chat-sub002/internal/metrics"
	"github.com/jinyphp/chat-sub002/internal/models"
)

var testCreatedAt = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestProvisioner(t *testing.T) *Provisioner {
	t.Helper()
	pr, err := NewProvisioner(t.TempDir(), 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pr.Close)
	return pr
}

func TestOpenProvisionsOnFirstAccess(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	provisionedBefore := testutil.ToFloat64(metrics.PartitionsProvisioned)

	p, err := pr.Open(ctx, 42, testCreatedAt)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(pr.Root(), "2025", "01", "15", "room-42.db")
	if p.Path() != want {
		t.Fatalf("expected %q, got %q", want, p.Path())
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("partition file not created: %v", err)
	}
	if got := pr.slotFor(42).provisionCount; got != 1 {
		t.Fatalf("expected schema to run once, ran %d times", got)
	}
	if got := testutil.ToFloat64(metrics.PartitionsProvisioned) - provisionedBefore; got != 1 {
		t.Fatalf("expected provisioned counter to move by 1, moved by %v", got)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	first, err := pr.Open(ctx, 7, testCreatedAt)
	if err != nil {
		t.Fatal(err)
	}
	second, err := pr.Open(ctx, 7, testCreatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the cached handle on repeat open")
	}
	if got := pr.slotFor(7).provisionCount; got != 1 {
		t.Fatalf("expected schema to run once, ran %d times", got)
	}
}

func TestOpenConcurrentFirstAccess(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pr.Open(ctx, 99, testCreatedAt); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if got := pr.slotFor(99).provisionCount; got != 1 {
		t.Fatalf("expected schema to run once under concurrency, ran %d times", got)
	}
}

func TestOpenExistingFileSkipsSchema(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	pr1, err := NewProvisioner(root, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pr1.Open(ctx, 5, testCreatedAt); err != nil {
		t.Fatal(err)
	}
	pr1.Close()

	// Fresh provisioner over the same tree, as after a restart.
	pr2, err := NewProvisioner(root, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer pr2.Close()

	if _, err := pr2.Open(ctx, 5, testCreatedAt); err != nil {
		t.Fatal(err)
	}
	if got := pr2.slotFor(5).provisionCount; got != 0 {
		t.Fatalf("schema should not re-run on an existing file, ran %d times", got)
	}
}

func TestOpenRejectsInvalidRoomID(t *testing.T) {
	pr := newTestProvisioner(t)

	if _, err := pr.Open(context.Background(), 0, testCreatedAt); err == nil {
		t.Fatal("expected error for room id 0")
	}
	if _, err := pr.Open(context.Background(), -3, testCreatedAt); err == nil {
		t.Fatal("expected error for negative room id")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, err := pr.Open(ctx, 1, testCreatedAt)
	if err != nil {
		t.Fatal(err)
	}

	msg := &models.Message{
		Type:       models.TypeText,
		Content:    "hello",
		SenderUUID: "abc-123",
		SenderName: "alice",
	}
	if err := p.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	got, err := p.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("message not found after insert")
	}
	if got.Content != "hello" || got.SenderUUID != "abc-123" || got.SenderName != "alice" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Reactions != "{}" || got.Mentions != "[]" {
		t.Fatalf("expected empty JSON defaults, got %q %q", got.Reactions, got.Mentions)
	}
}

func TestMessagesAfterOrdering(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, _ := pr.Open(ctx, 1, testCreatedAt)
	for _, content := range []string{"one", "two", "three"} {
		if err := p.InsertMessage(ctx, &models.Message{Type: models.TypeText, Content: content, SenderUUID: "u"}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := p.MessagesAfter(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after id 1, got %d", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Fatalf("wrong order: %q, %q", msgs[0].Content, msgs[1].Content)
	}

	latest, err := p.LatestMessageID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != msgs[1].ID {
		t.Fatalf("expected latest id %d, got %d", msgs[1].ID, latest)
	}
}

func TestReplyThreading(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, _ := pr.Open(ctx, 1, testCreatedAt)
	root := &models.Message{Type: models.TypeText, Content: "root", SenderUUID: "u"}
	if err := p.InsertMessage(ctx, root); err != nil {
		t.Fatal(err)
	}

	reply := &models.Message{Type: models.TypeText, Content: "reply", SenderUUID: "u", ReplyToID: &root.ID, ThreadRootID: &root.ID}
	if err := p.InsertMessage(ctx, reply); err != nil {
		t.Fatal(err)
	}

	got, _ := p.GetMessage(ctx, root.ID)
	if got.ReplyCount != 1 {
		t.Fatalf("expected reply_count 1 on parent, got %d", got.ReplyCount)
	}

	// Soft-deleted parents still resolve for threading.
	if err := p.SoftDeleteMessage(ctx, root.ID); err != nil {
		t.Fatal(err)
	}
	got, err := p.GetMessage(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.IsDeleted {
		t.Fatal("soft-deleted parent should still resolve")
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, _ := pr.Open(ctx, 1, testCreatedAt)
	msg := &models.Message{Type: models.TypeText, Content: "x", SenderUUID: "u"}
	if err := p.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	fresh, err := p.MarkRead(ctx, msg.ID, "reader-1")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Fatal("first read should be new")
	}
	repeat, err := p.MarkRead(ctx, msg.ID, "reader-1")
	if err != nil {
		t.Fatal(err)
	}
	if repeat {
		t.Fatal("repeat read should be a no-op")
	}

	got, _ := p.GetMessage(ctx, msg.ID)
	if got.ReadCount != 1 {
		t.Fatalf("expected read_count 1, got %d", got.ReadCount)
	}
}

func TestDailyStats(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, _ := pr.Open(ctx, 1, testCreatedAt)
	date := time.Now().UTC().Format("2006-01-02")

	for i := 0; i < 3; i++ {
		if err := p.InsertMessage(ctx, &models.Message{Type: models.TypeText, Content: "x", SenderUUID: "u"}); err != nil {
			t.Fatal(err)
		}
		if err := p.BumpDailyStats(ctx, date); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := p.DailyStats(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MessageCount != 3 {
		t.Fatalf("expected message_count 3, got %d", stats.MessageCount)
	}
	if stats.ActiveSenders != 1 {
		t.Fatalf("expected 1 active sender, got %d", stats.ActiveSenders)
	}

	// Unknown dates come back zero-valued, not as an error.
	empty, err := p.DailyStats(ctx, "1999-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if empty.MessageCount != 0 {
		t.Fatalf("expected zero stats for unknown date, got %+v", empty)
	}
}

func TestBackupSurvivesSourceDeletion(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, _ := pr.Open(ctx, 42, testCreatedAt)
	if err := p.InsertMessage(ctx, &models.Message{Type: models.TypeText, Content: "keep me", SenderUUID: "u"}); err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	backupPath, err := pr.Backup(42, destDir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(backupPath) != destDir {
		t.Fatalf("backup landed outside dest dir: %q", backupPath)
	}

	// The WAL is checkpointed before the copy, so the backup must match the
	// source file byte for byte.
	src, err := os.ReadFile(pr.ResolveLocation(42, testCreatedAt))
	if err != nil {
		t.Fatal(err)
	}
	dst, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(src, dst) {
		t.Fatalf("backup differs from source: %d vs %d bytes", len(dst), len(src))
	}

	if err := pr.Delete(42); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("backup gone after source deletion: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("backup is empty")
	}
}

func TestDeleteRemovesPartition(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	p, err := pr.Open(ctx, 9, testCreatedAt)
	if err != nil {
		t.Fatal(err)
	}
	path := p.Path()

	if err := pr.Delete(9); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("partition file still present: %v", err)
	}
	if err := pr.Delete(9); err == nil {
		t.Fatal("expected error deleting a missing partition")
	}
}

func TestSizeOf(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	if _, err := pr.Open(ctx, 3, testCreatedAt); err != nil {
		t.Fatal(err)
	}

	size, err := pr.SizeOf(3)
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Fatalf("expected positive size, got %d", size)
	}
}

func TestListByDateAndMonthlyStats(t *testing.T) {
	pr := newTestProvisioner(t)
	ctx := context.Background()

	jan15 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	jan16 := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	feb01 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for roomID, createdAt := range map[int64]time.Time{
		1: jan15,
		2: jan15,
		3: jan16,
		4: feb01,
	} {
		if _, err := pr.Open(ctx, roomID, createdAt); err != nil {
			t.Fatal(err)
		}
	}

	day, err := pr.ListByDate(2025, 1, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 partitions on 2025-01-15, got %d", len(day))
	}
	if day[0].RoomID != 1 || day[1].RoomID != 2 {
		t.Fatalf("expected rooms 1,2 sorted, got %d,%d", day[0].RoomID, day[1].RoomID)
	}

	none, err := pr.ListByDate(2030, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no partitions, got %d", len(none))
	}

	stats, err := pr.MonthlyStats(2025, 1)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RoomCount != 3 {
		t.Fatalf("expected 3 rooms in January, got %d", stats.RoomCount)
	}
	if stats.PerDay["2025-01-15"] != 2 || stats.PerDay["2025-01-16"] != 1 {
		t.Fatalf("unexpected per-day breakdown: %v", stats.PerDay)
	}
	if stats.TotalBytes <= 0 {
		t.Fatal("expected non-zero total bytes")
	}

	all, err := pr.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 partitions total, got %d", len(all))
	}
}
