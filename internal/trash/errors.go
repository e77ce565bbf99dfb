package trash

import (
	"errors"
	"fmt"

	"github.com/docker/go-units"

	"github.com/vtrash/vtrash/internal/trash/codec"
	"github.com/vtrash/vtrash/internal/trash/stamp"
)

// Common errors that can be returned by Store operations
var (
	// ErrLockConflict is returned by Lock when the lock marker already exists
	ErrLockConflict = errors.New("trash is locked by another process")

	// ErrNotLocked is the panic value of a mutation attempted outside a lock
	ErrNotLocked = errors.New("trash is not locked")

	// ErrLocked is returned by Reconfigure while the store is locked
	ErrLocked = errors.New("trash is locked")

	// ErrCapacityExceeded is returned when an addition would overflow the trash
	ErrCapacityExceeded = errors.New("trash capacity exceeded")

	// ErrPathOutsideTrash is returned for internal paths not under the trash root
	ErrPathOutsideTrash = codec.ErrPathOutsideTrash

	// ErrNoVersions is returned when a path has no version in the trash
	ErrNoVersions = stamp.ErrNoVersions
)

// CapacityError reports the usage an addition would have resulted in
type CapacityError struct {
	Count    int64
	Size     int64
	MaxCount int64
	MaxSize  int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d files (%s) over limit of %d files (%s)",
		ErrCapacityExceeded.Error(),
		e.Count, units.HumanSize(float64(e.Size)),
		e.MaxCount, units.HumanSize(float64(e.MaxSize)))
}

// Unwrap returns ErrCapacityExceeded
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// StorageError wraps an error with additional context about the storage operation
type StorageError struct {
	// Op is the operation that failed (e.g., "add", "restore", "remove")
	Op string

	// Path is the path of the file that caused the error
	Path string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError
func NewStorageError(op, path string, err error) error {
	return &StorageError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// IsLockConflict returns true if the error is ErrLockConflict
func IsLockConflict(err error) bool {
	return errors.Is(err, ErrLockConflict)
}

// IsCapacityExceeded returns true if the error is ErrCapacityExceeded
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsNoVersions returns true if the error is ErrNoVersions
func IsNoVersions(err error) bool {
	return errors.Is(err, ErrNoVersions)
}
