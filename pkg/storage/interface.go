package storage

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by ReadSnapshot when nothing has been written yet
var ErrNoSnapshot = errors.New("no registry snapshot")

// SnapshotBackend persists the serialized image registry as one opaque
// document. Writes must replace the previous snapshot atomically: a reader
// sees either the old document or the new one, never a mix.
type SnapshotBackend interface {
	// ReadSnapshot returns the last written document, or ErrNoSnapshot
	ReadSnapshot(ctx context.Context) ([]byte, error)

	// WriteSnapshot atomically replaces the stored document
	WriteSnapshot(ctx context.Context, data []byte) error

	// Describe returns a human-readable location for logs
	Describe() string

	// Close releases any resources held by the backend
	Close() error
}
