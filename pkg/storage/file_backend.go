package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// FileBackend stores the registry as a JSON document on disk. Writes go to a
// temp file in the same directory which is synced and renamed over the target.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for the document at path
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// ReadSnapshot implements SnapshotBackend
func (b *FileBackend) ReadSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read registry %s: %w", utils.ErrFilesystem, b.path, err)
	}
	return data, nil
}

// WriteSnapshot implements SnapshotBackend
func (b *FileBackend) WriteSnapshot(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return utils.WriteFileAtomic(b.path, data, 0o644)
}

// Describe implements SnapshotBackend
func (b *FileBackend) Describe() string { return "file:" + b.path }

// Close implements SnapshotBackend
func (b *FileBackend) Close() error { return nil }
