package partition

import (
	"fmt"
	"path/filepath"
	"time"
)

const fileExt = ".db"

// ResolveLocation returns the partition file path for a room. It is a pure
// function of the room id and the room's creation timestamp: partitions
// bucket under year/month/day directories derived from createdAt, with the
// filename keyed by room id so same-day rooms co-locate without colliding.
func ResolveLocation(root string, roomID int64, createdAt time.Time) string {
	return filepath.Join(
		root,
		fmt.Sprintf("%04d", createdAt.Year()),
		fmt.Sprintf("%02d", int(createdAt.Month())),
		fmt.Sprintf("%02d", createdAt.Day()),
		fileName(roomID),
	)
}

func fileName(roomID int64) string {
	return fmt.Sprintf("room-%d%s", roomID, fileExt)
}

// backupName returns the timestamped filename for a backup copy.
func backupName(roomID int64, at time.Time) string {
	return fmt.Sprintf("room-%d_%s%s", roomID, at.Format("2006-01-02_15-04-05"), fileExt)
}
