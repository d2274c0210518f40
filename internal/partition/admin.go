package partition

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// PartitionInfo describes one partition file found on disk.
type PartitionInfo struct {
	RoomID    int64     `json:"room_id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Date      string    `json:"date"` // YYYY-MM-DD bucket the file lives under
	ModTime   time.Time `json:"mod_time"`
}

// MonthlyStats aggregates partitions created in one month.
type MonthlyStats struct {
	Year       int            `json:"year"`
	Month      int            `json:"month"`
	RoomCount  int            `json:"room_count"`
	TotalBytes int64          `json:"total_bytes"`
	PerDay     map[string]int `json:"per_day"` // YYYY-MM-DD -> room count
}

var partitionFileRe = regexp.MustCompile(`^room-(\d+)\.db$`)

// Backup copies the partition file byte-for-byte into destDir and returns
// the backup path. The copy is independent: deleting the source afterwards
// does not touch it.
func (pr *Provisioner) Backup(roomID int64, destDir string) (string, error) {
	path, err := pr.locate(roomID)
	if err != nil {
		return "", err
	}

	// Flush WAL content into the main file so the byte-copy is complete.
	if p, ok := pr.handles.Get(roomID); ok {
		p.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE);`)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", &StorageError{RoomID: roomID, Op: "backup", Err: err}
	}

	dest := filepath.Join(destDir, backupName(roomID, time.Now()))
	src, err := os.Open(path)
	if err != nil {
		return "", &StorageError{RoomID: roomID, Op: "backup", Err: err}
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", &StorageError{RoomID: roomID, Op: "backup", Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return "", &StorageError{RoomID: roomID, Op: "backup", Err: err}
	}
	if err := out.Sync(); err != nil {
		return "", &StorageError{RoomID: roomID, Op: "backup", Err: err}
	}
	return dest, nil
}

// Optimize reclaims free pages and refreshes the query planner statistics.
func (pr *Provisioner) Optimize(roomID int64) error {
	path, err := pr.locate(roomID)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return &StorageError{RoomID: roomID, Op: "optimize", Err: err}
	}
	defer db.Close()

	if _, err := db.Exec(`VACUUM;`); err != nil {
		return &StorageError{RoomID: roomID, Op: "optimize", Err: err}
	}
	if _, err := db.Exec(`ANALYZE;`); err != nil {
		return &StorageError{RoomID: roomID, Op: "optimize", Err: err}
	}
	return nil
}

// SizeOf returns the partition file size in bytes.
func (pr *Provisioner) SizeOf(roomID int64) (int64, error) {
	path, err := pr.locate(roomID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, &StorageError{RoomID: roomID, Op: "size", Err: err}
	}
	return info.Size(), nil
}

// ListAll scans the whole partition tree.
func (pr *Provisioner) ListAll() ([]PartitionInfo, error) {
	return pr.scan(pr.root)
}

// ListByDate lists partitions for rooms created on one day.
func (pr *Provisioner) ListByDate(year, month, day int) ([]PartitionInfo, error) {
	dir := filepath.Join(pr.root,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", month),
		fmt.Sprintf("%02d", day))
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Err: err}
	}
	return pr.scan(dir)
}

// MonthlyStats aggregates room count and bytes for one month's partitions.
func (pr *Provisioner) MonthlyStats(year, month int) (*MonthlyStats, error) {
	stats := &MonthlyStats{
		Year:   year,
		Month:  month,
		PerDay: make(map[string]int),
	}

	dir := filepath.Join(pr.root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month))
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, &StorageError{Op: "stats", Err: err}
	}

	infos, err := pr.scan(dir)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		stats.RoomCount++
		stats.TotalBytes += info.SizeBytes
		stats.PerDay[info.Date]++
	}
	return stats, nil
}

// scan walks dir and collects partition files, newest directory layout first.
func (pr *Provisioner) scan(dir string) ([]PartitionInfo, error) {
	var infos []PartitionInfo
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := partitionFileRe.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		roomID, _ := strconv.ParseInt(m[1], 10, 64)
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, PartitionInfo{
			RoomID:    roomID,
			Path:      path,
			SizeBytes: fi.Size(),
			Date:      dateFromPath(path),
			ModTime:   fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].RoomID < infos[j].RoomID })
	return infos, nil
}

// dateFromPath recovers the YYYY-MM-DD bucket from .../YYYY/MM/DD/room-N.db.
func dateFromPath(path string) string {
	day := filepath.Dir(path)
	month := filepath.Dir(day)
	year := filepath.Dir(month)
	return fmt.Sprintf("%s-%s-%s", filepath.Base(year), filepath.Base(month), filepath.Base(day))
}
