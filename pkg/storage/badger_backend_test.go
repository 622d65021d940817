package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamal24/site-sync/pkg/models"
)

func newTestBadgerBackend(t *testing.T, dir string) *BadgerBackend {
	t.Helper()
	b, err := NewBadgerBackend(dir, testLogger())
	require.NoError(t, err)
	return b
}

func TestBadgerBackend_ReadEmpty(t *testing.T) {
	b := newTestBadgerBackend(t, t.TempDir())
	t.Cleanup(func() { b.Close() })

	_, err := b.ReadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	count, err := b.FlushCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestBadgerBackend_WriteReadCountsFlushes(t *testing.T) {
	b := newTestBadgerBackend(t, t.TempDir())
	t.Cleanup(func() { b.Close() })
	ctx := context.Background()

	require.NoError(t, b.WriteSnapshot(ctx, []byte(`{"v":1}`)))
	require.NoError(t, b.WriteSnapshot(ctx, []byte(`{"v":2}`)))

	data, err := b.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	count, err := b.FlushCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBadgerBackend_RegistryRoundTripAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "registry-db")
	ctx := context.Background()
	slot := models.SlotKey{RecordID: "recA", FieldName: "Image"}

	b1 := newTestBadgerBackend(t, dir)
	r1 := NewRegistry(b1, testLogger())
	require.NoError(t, r1.Load(ctx))
	r1.Upsert(slot, sampleEntry("recA", "Image", 0, "a.jpg", "h"))
	require.NoError(t, r1.Flush(ctx))
	require.NoError(t, r1.Close())

	b2 := newTestBadgerBackend(t, dir)
	r2 := NewRegistry(b2, testLogger())
	t.Cleanup(func() { r2.Close() })
	require.NoError(t, r2.Load(ctx))

	got, ok := r2.LookupBySlot(slot)
	require.True(t, ok)
	assert.Equal(t, "a.jpg", got.Filename)
	assert.Equal(t, "badger:"+dir, r2.Stats().Backend)
}

func TestBadgerBackend_CloseTwice(t *testing.T) {
	b := newTestBadgerBackend(t, t.TempDir())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
