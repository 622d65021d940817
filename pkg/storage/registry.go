package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// Registry is the in-memory image registry: slot key -> stored file and
// content hash -> stored file. All mutations go through one write lock, and
// Flush persists a full snapshot through the backend.
type Registry struct {
	mu        sync.RWMutex
	doc       models.RegistryDocument
	dirty     bool
	loadState LoadState
	backend   SnapshotBackend
	log       *logrus.Entry
}

// LoadState records where the registry contents came from
type LoadState string

const (
	LoadStateNotLoaded  LoadState = "not_loaded"
	LoadStateSnapshot   LoadState = "snapshot"    // Decoded from the backend
	LoadStateNoSnapshot LoadState = "no_snapshot" // Backend had nothing, started empty
	LoadStateRecovered  LoadState = "recovered"   // Snapshot was unreadable, started empty
)

// RegistryStats summarizes the registry contents
type RegistryStats struct {
	Slots    int       `json:"slots"`
	Contents int       `json:"contents"`
	Files    int       `json:"files"` // Distinct filenames referenced by slots
	Backend  string    `json:"backend"`
	Updated  time.Time `json:"updatedAt"`
}

// NewRegistry returns an empty registry persisted through backend
func NewRegistry(backend SnapshotBackend, log *logrus.Entry) *Registry {
	return &Registry{
		doc:       models.NewRegistryDocument(),
		loadState: LoadStateNotLoaded,
		backend:   backend,
		log:       log.WithField("component", "registry"),
	}
}

// OpenBackend builds the snapshot backend selected by cfg
func OpenBackend(cfg config.RegistryConfig, log *logrus.Entry) (SnapshotBackend, error) {
	switch cfg.Backend {
	case "", config.RegistryBackendFile:
		return NewFileBackend(cfg.Path), nil
	case config.RegistryBackendBadger:
		return NewBadgerBackend(cfg.BadgerDir, log)
	default:
		return nil, fmt.Errorf("%w: unknown registry backend %q", utils.ErrConfigValidation, cfg.Backend)
	}
}

// Load replaces the in-memory state with the backend's snapshot. A missing
// document yields an empty registry. A corrupt document is logged and also
// yields an empty registry; only backend read failures are returned.
func (r *Registry) Load(ctx context.Context) error {
	data, err := r.backend.ReadSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		r.log.Infof("No image registry at %s, starting empty", r.backend.Describe())
		r.reset(models.NewRegistryDocument(), LoadStateNoSnapshot)
		return nil
	}
	if err != nil {
		return err
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		r.log.WithField("error_category", utils.CategorizeError(err)).
			Errorf("Image registry at %s is unreadable, starting empty: %v", r.backend.Describe(), err)
		r.reset(models.NewRegistryDocument(), LoadStateRecovered)
		return nil
	}

	r.reset(doc, LoadStateSnapshot)
	r.log.Infof("Loaded image registry from %s: %d slots, %d content hashes",
		r.backend.Describe(), len(doc.BySlotKey), len(doc.ByContentHash))
	return nil
}

func (r *Registry) reset(doc models.RegistryDocument, state LoadState) {
	r.mu.Lock()
	r.doc = doc
	r.dirty = false
	r.loadState = state
	r.mu.Unlock()
}

// LoadState reports the outcome of the last Load
func (r *Registry) LoadState() LoadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadState
}

// LookupBySlot returns the entry stored for a slot key
func (r *Registry) LookupBySlot(slot models.SlotKey) (models.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.doc.BySlotKey[slot.String()]
	return e, ok
}

// LookupByContent returns the entry stored for a content hash
func (r *Registry) LookupByContent(hash string) (models.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.doc.ByContentHash[hash]
	return e, ok
}

// Upsert records the entry for a slot key
func (r *Registry) Upsert(slot models.SlotKey, entry models.RegistryEntry) {
	r.Update(func(tx *RegistryTx) error {
		tx.Upsert(slot, entry)
		return nil
	})
}

// UpsertContent records the entry for a content hash
func (r *Registry) UpsertContent(hash string, entry models.RegistryEntry) {
	r.Update(func(tx *RegistryTx) error {
		tx.UpsertContent(hash, entry)
		return nil
	})
}

// RegistryTx is the view of the registry inside Update. It is only valid
// for the duration of the callback.
type RegistryTx struct {
	r *Registry
}

// LookupBySlot is LookupBySlot under the held write lock
func (tx *RegistryTx) LookupBySlot(slot models.SlotKey) (models.RegistryEntry, bool) {
	e, ok := tx.r.doc.BySlotKey[slot.String()]
	return e, ok
}

// LookupByContent is LookupByContent under the held write lock
func (tx *RegistryTx) LookupByContent(hash string) (models.RegistryEntry, bool) {
	e, ok := tx.r.doc.ByContentHash[hash]
	return e, ok
}

// Upsert records the entry for a slot key
func (tx *RegistryTx) Upsert(slot models.SlotKey, entry models.RegistryEntry) {
	tx.r.doc.BySlotKey[slot.String()] = entry
	tx.r.dirty = true
}

// UpsertContent records the entry for a content hash
func (tx *RegistryTx) UpsertContent(hash string, entry models.RegistryEntry) {
	tx.r.doc.ByContentHash[hash] = entry
	tx.r.dirty = true
}

// ReleaseFilename drops every entry that points at filename with content
// other than hash, so the file can be overwritten with new bytes. Slots that
// shared the old content resolve again on their next lookup.
func (tx *RegistryTx) ReleaseFilename(filename, hash string) (slots, contents int) {
	for h, e := range tx.r.doc.ByContentHash {
		if e.Filename == filename && h != hash {
			delete(tx.r.doc.ByContentHash, h)
			contents++
		}
	}
	for k, e := range tx.r.doc.BySlotKey {
		if e.Filename == filename && e.ContentHash != hash {
			delete(tx.r.doc.BySlotKey, k)
			slots++
		}
	}
	if slots+contents > 0 {
		tx.r.dirty = true
	}
	return slots, contents
}

// Update runs fn while holding the registry write lock, so a lookup followed
// by an upsert inside fn cannot interleave with another writer. fn may do
// I/O (writing the image file) but must not call other Registry methods.
func (r *Registry) Update(fn func(tx *RegistryTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&RegistryTx{r: r})
}

// Flush writes a complete snapshot through the backend. Errors wrap
// utils.ErrRegistryFlush.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	r.doc.Version = models.RegistryDocumentVersion
	r.doc.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(r.doc, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w: %w", utils.ErrRegistryFlush, utils.ErrParsing, err)
	}

	if err := r.backend.WriteSnapshot(ctx, data); err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrRegistryFlush, r.backend.Describe(), err)
	}

	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	r.log.Debugf("Flushed image registry to %s (%d bytes)", r.backend.Describe(), len(data))
	return nil
}

// Dirty reports whether there are changes since the last Load or Flush
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// Snapshot returns a deep copy of the current document
func (r *Registry) Snapshot() models.RegistryDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := models.RegistryDocument{
		Version:       r.doc.Version,
		UpdatedAt:     r.doc.UpdatedAt,
		BySlotKey:     make(map[string]models.RegistryEntry, len(r.doc.BySlotKey)),
		ByContentHash: make(map[string]models.RegistryEntry, len(r.doc.ByContentHash)),
	}
	for k, v := range r.doc.BySlotKey {
		out.BySlotKey[k] = v
	}
	for k, v := range r.doc.ByContentHash {
		out.ByContentHash[k] = v
	}
	return out
}

// Stats returns entry counts
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	files := make(map[string]struct{}, len(r.doc.BySlotKey))
	for _, e := range r.doc.BySlotKey {
		files[e.Filename] = struct{}{}
	}
	return RegistryStats{
		Slots:    len(r.doc.BySlotKey),
		Contents: len(r.doc.ByContentHash),
		Files:    len(files),
		Backend:  r.backend.Describe(),
		Updated:  r.doc.UpdatedAt,
	}
}

// EntriesForRecord returns the slot entries of one record, ordered by field and index
func (r *Registry) EntriesForRecord(recordID string) []models.RegistryEntry {
	r.mu.RLock()
	var out []models.RegistryEntry
	for _, e := range r.doc.BySlotKey {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldName != out[j].FieldName {
			return out[i].FieldName < out[j].FieldName
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Prune drops every slot and content entry whose file is not in keep.
// Returns the number of slot and content entries removed.
func (r *Registry) Prune(keep func(filename string) bool) (slots, contents int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.doc.BySlotKey {
		if !keep(e.Filename) {
			delete(r.doc.BySlotKey, k)
			slots++
		}
	}
	for h, e := range r.doc.ByContentHash {
		if !keep(e.Filename) {
			delete(r.doc.ByContentHash, h)
			contents++
		}
	}
	if slots+contents > 0 {
		r.dirty = true
	}
	return slots, contents
}

// Close closes the backend
func (r *Registry) Close() error {
	return r.backend.Close()
}
