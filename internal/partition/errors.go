package partition

import "fmt"

// ProvisioningError reports a violated precondition or filesystem failure
// while resolving or creating a partition. It is fatal: callers never get a
// fallback partition.
type ProvisioningError struct {
	RoomID int64
	Op     string
	Err    error
}

func (e *ProvisioningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("partition %s: room %d", e.Op, e.RoomID)
	}
	return fmt.Sprintf("partition %s: room %d: %v", e.Op, e.RoomID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// SchemaError reports a failed schema creation, typically on a corrupt or
// partially written partition file.
type SchemaError struct {
	RoomID int64
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("partition schema: room %d: %v", e.RoomID, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StorageError reports an I/O failure on an already provisioned partition.
type StorageError struct {
	RoomID int64
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("partition %s: room %d: %v", e.Op, e.RoomID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
