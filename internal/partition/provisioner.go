package partition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jinyphp/chat-sub002/internal/metrics"
)

// provisioning states for one room.
type roomState int

const (
	stateUnprovisioned roomState = iota
	stateProvisioning
	stateReady
	stateFailed
)

// roomSlot serializes provisioning and handle access for one room id.
type roomSlot struct {
	mu             sync.Mutex
	state          roomState
	path           string
	provisionCount int // times schema creation ran; tests assert at most one
}

// Provisioner owns the per-room partition files under a root directory. It
// replaces the ambient process-wide connection map of the original design
// with an explicitly owned handle cache: per-room locks guard provisioning,
// and an LRU bounds the number of open handles, closing evicted ones.
type Provisioner struct {
	root string

	mu    sync.Mutex
	slots map[int64]*roomSlot

	handles *lru.Cache[int64, *Partition]
}

// NewProvisioner creates a Provisioner rooted at root, caching at most
// cacheSize open handles.
func NewProvisioner(root string, cacheSize int) (*Provisioner, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	handles, err := lru.NewWithEvict[int64, *Partition](cacheSize, func(_ int64, p *Partition) {
		p.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Provisioner{
		root:    root,
		slots:   make(map[int64]*roomSlot),
		handles: handles,
	}, nil
}

// Root returns the partition root directory.
func (pr *Provisioner) Root() string { return pr.root }

// ResolveLocation returns the partition path for a room. Pure; see the
// package-level function.
func (pr *Provisioner) ResolveLocation(roomID int64, createdAt time.Time) string {
	return ResolveLocation(pr.root, roomID, createdAt)
}

func (pr *Provisioner) slotFor(roomID int64) *roomSlot {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	s, ok := pr.slots[roomID]
	if !ok {
		s = &roomSlot{}
		pr.slots[roomID] = s
	}
	return s
}

// Open returns a handle to the room's partition, provisioning it on first
// access. It is idempotent and safe under concurrent first access: the
// per-room mutex serializes the Unprovisioned -> Provisioning transition, so
// schema creation runs at most once per partition lifetime.
func (pr *Provisioner) Open(ctx context.Context, roomID int64, createdAt time.Time) (*Partition, error) {
	if roomID <= 0 {
		return nil, &ProvisioningError{RoomID: roomID, Op: "open", Err: errors.New("room id is required")}
	}

	slot := pr.slotFor(roomID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if p, ok := pr.handles.Get(roomID); ok {
		return p, nil
	}

	path := pr.ResolveLocation(roomID, createdAt)

	// Existing file: hand back a handle without re-running schema creation.
	// Missing file: transition Unprovisioned -> Provisioning and build it.
	// The statements are all create-if-absent anyway, so the non-atomic
	// existence check can only cost a redundant (harmless) schema run when
	// another process wins the race.
	_, statErr := os.Stat(path)
	needSchema := statErr != nil
	if needSchema {
		slot.state = stateProvisioning
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			slot.state = stateFailed
			return nil, &ProvisioningError{RoomID: roomID, Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		slot.state = stateFailed
		return nil, &ProvisioningError{RoomID: roomID, Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		slot.state = stateFailed
		return nil, &ProvisioningError{RoomID: roomID, Op: "open", Err: err}
	}

	if needSchema {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			slot.state = stateFailed
			return nil, &SchemaError{RoomID: roomID, Err: err}
		}
		today := time.Now().UTC().Format("2006-01-02")
		if _, err := db.ExecContext(ctx, seedStats, today); err != nil {
			db.Close()
			slot.state = stateFailed
			return nil, &SchemaError{RoomID: roomID, Err: err}
		}
		slot.provisionCount++
		metrics.PartitionsProvisioned.Inc()
	}

	slot.state = stateReady
	slot.path = path

	p := &Partition{roomID: roomID, path: path, db: db}
	pr.handles.Add(roomID, p)
	return p, nil
}

// Close releases every cached handle.
func (pr *Provisioner) Close() {
	pr.handles.Purge()
}

// locate finds an existing partition file for roomID by scanning the date
// tree. Needed by operations that do not know the room's creation date.
func (pr *Provisioner) locate(roomID int64) (string, error) {
	if roomID <= 0 {
		return "", &ProvisioningError{RoomID: roomID, Op: "locate", Err: errors.New("room id is required")}
	}

	pr.mu.Lock()
	if s, ok := pr.slots[roomID]; ok && s.path != "" {
		pr.mu.Unlock()
		return s.path, nil
	}
	pr.mu.Unlock()

	want := fileName(roomID)
	var found string
	err := filepath.WalkDir(pr.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == want {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", &StorageError{RoomID: roomID, Op: "locate", Err: err}
	}
	if found == "" {
		return "", &ProvisioningError{RoomID: roomID, Op: "locate", Err: fmt.Errorf("partition not found under %s", pr.root)}
	}
	return found, nil
}

// evict drops the room's cached handle (closing it) before destructive
// file-level operations.
func (pr *Provisioner) evict(roomID int64) {
	pr.handles.Remove(roomID)
	pr.mu.Lock()
	delete(pr.slots, roomID)
	pr.mu.Unlock()
}

// Delete removes a room's partition file permanently.
func (pr *Provisioner) Delete(roomID int64) error {
	path, err := pr.locate(roomID)
	if err != nil {
		return err
	}
	pr.evict(roomID)

	if err := os.Remove(path); err != nil {
		return &StorageError{RoomID: roomID, Op: "delete", Err: err}
	}
	// WAL side files, if any
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
	return nil
}
