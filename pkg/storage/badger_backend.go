package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/log"
	"github.com/hanamal24/site-sync/pkg/utils"
)

var (
	snapshotKey   = []byte("registry:snapshot")
	flushCountKey = []byte("registry:flushes")
)

// BadgerBackend keeps the registry snapshot in a BadgerDB directory. The
// document and a flush counter are written in one transaction.
type BadgerBackend struct {
	db  *badger.DB
	dir string
	log *logrus.Entry
}

// NewBadgerBackend opens (or creates) the database at dir
func NewBadgerBackend(dir string, logger *logrus.Entry) (*BadgerBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create registry db directory %s: %w", utils.ErrFilesystem, dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(log.NewBadgerLogger(logger)).
		WithNumVersionsToKeep(1) // Only the latest snapshot matters

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dir, err)
	}
	logger.Debugf("Registry database opened at %s", dir)
	return &BadgerBackend{db: db, dir: dir, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (b *BadgerBackend) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// ReadSnapshot implements SnapshotBackend
func (b *BadgerBackend) ReadSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read registry snapshot: %w", utils.ErrDatabase, err)
	}
	return data, nil
}

// WriteSnapshot implements SnapshotBackend
func (b *BadgerBackend) WriteSnapshot(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.dbUpdate(func(txn *badger.Txn) error {
		var count uint64
		item, err := txn.Get(flushCountKey)
		switch {
		case err == nil:
			if verr := item.Value(func(val []byte) error {
				if len(val) == 8 {
					count = binary.BigEndian.Uint64(val)
				}
				return nil
			}); verr != nil {
				return verr
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count+1)
		if err := txn.Set(flushCountKey, buf); err != nil {
			return err
		}
		return txn.Set(snapshotKey, data)
	})
	if err != nil {
		return fmt.Errorf("%w: write registry snapshot: %w", utils.ErrDatabase, err)
	}
	return nil
}

// FlushCount returns how many snapshots have been written to this database
func (b *BadgerBackend) FlushCount() (uint64, error) {
	var count uint64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(flushCountKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				count = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx
// is done. Only useful for long-running processes such as watch mode.
func (b *BadgerBackend) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if b.db.IsClosed() {
				return
			}
			var err error
			for err == nil {
				err = b.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Describe implements SnapshotBackend
func (b *BadgerBackend) Describe() string { return "badger:" + b.dir }

// Close implements SnapshotBackend
func (b *BadgerBackend) Close() error {
	if b.db == nil || b.db.IsClosed() {
		return nil
	}
	if err := b.db.Close(); err != nil {
		b.log.Errorf("Error closing registry DB: %v", err)
		return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
	}
	b.log.Debug("Registry DB closed.")
	return nil
}
