package session

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	// ErrNotFound: no record exists for the id. Callers usually fall back to
	// a fresh conversation.
	ErrNotFound = errors.New("conversation not found")

	// ErrCorrupt: a record exists but cannot be decoded.
	ErrCorrupt = errors.New("conversation record is corrupt")

	// ErrInvalidID: the id cannot name a storage key.
	ErrInvalidID = errors.New("invalid conversation id")
)

// CorruptError describes a record that exists but fails to parse.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record %s: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is lets errors.Is match CorruptError against ErrCorrupt.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// StorageError is an I/O failure in the storage layer (disk full,
// permission denied, database error).
type StorageError struct {
	Op  string // "save", "load", "list", "delete"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func invalidID(id string) error {
	return fmt.Errorf("%w: %q", ErrInvalidID, id)
}
