package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/fetch"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/storage"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// Downloader fetches one image. *fetch.Downloader implements it.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*fetch.Download, error)
}

// Options configures a Deduplicator
type Options struct {
	ImagesDir    string // Directory holding the image files
	PublicPrefix string // Site path prefix for rewritten URLs, e.g. /images
	Retry        fetch.RetryPolicy
}

// Deduplicator resolves image references to local files, reusing a slot's
// previous file or any file with identical content before storing new bytes.
type Deduplicator struct {
	registry   *storage.Registry
	downloader Downloader
	opts       Options
	now        func() time.Time
	log        *logrus.Entry
}

// NewDeduplicator creates a Deduplicator
func NewDeduplicator(registry *storage.Registry, downloader Downloader, opts Options, log *logrus.Entry) *Deduplicator {
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/images"
	}
	return &Deduplicator{
		registry:   registry,
		downloader: downloader,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.WithField("component", "dedup"),
	}
}

// Resolve returns the outcome for one reference. It never returns an error:
// failures are reported in the result and the record keeps its remote URL.
func (d *Deduplicator) Resolve(ctx context.Context, ref models.ImageReference) models.ImageResult {
	slot := ref.Slot()
	imgLog := d.log.WithFields(logrus.Fields{
		"slot": slot.String(), "record_type": ref.RecordType,
	})
	result := models.ImageResult{Ref: ref}

	// 1. Slot already resolved and its file is still on disk
	if entry, ok := d.registry.LookupBySlot(slot); ok && d.fileExists(entry.Filename) {
		imgLog.Debugf("Reusing slot file %s", entry.Filename)
		return d.reused(result, models.OutcomeReusedSlot, entry)
	}

	// 2. Download with bounded retry
	var dl *fetch.Download
	err := fetch.Retry(ctx, d.opts.Retry, imgLog, func(ctx context.Context, attempt int) error {
		var err error
		dl, err = d.downloader.Download(ctx, ref.SourceURL)
		return err
	})
	if err != nil {
		return d.failed(result, imgLog, err)
	}

	// 3/4. Content dedup or new file, atomically with respect to other workers
	var outcome models.ImageOutcome
	var stored models.RegistryEntry
	err = d.registry.Update(func(tx *storage.RegistryTx) error {
		if existing, ok := tx.LookupByContent(dl.ContentHash); ok && d.fileExists(existing.Filename) {
			owner := models.SlotKey{RecordID: existing.RecordID, FieldName: existing.FieldName, Index: existing.Index}
			stored = d.entryFor(ref, existing.Filename, dl.ContentHash)
			stored.ReusedFrom = owner.String()
			tx.Upsert(slot, stored)
			outcome = models.OutcomeReusedContent
			return nil
		}

		filename := StableFilename(slot, ChooseExtension(ref.SourceURL, dl.ContentType))
		if slots, contents := tx.ReleaseFilename(filename, dl.ContentHash); slots+contents > 0 {
			imgLog.Infof("Replacing content of %s, dropped %d slot and %d content entries", filename, slots, contents)
		}
		if err := utils.WriteFileAtomic(filepath.Join(d.opts.ImagesDir, filename), dl.Body, 0o644); err != nil {
			return err
		}
		stored = d.entryFor(ref, filename, dl.ContentHash)
		tx.Upsert(slot, stored)
		tx.UpsertContent(dl.ContentHash, stored)
		outcome = models.OutcomeDownloaded
		return nil
	})
	if err != nil {
		return d.failed(result, imgLog, err)
	}

	if outcome == models.OutcomeReusedContent {
		imgLog.Debugf("Reusing identical content in %s (first stored by %s)", stored.Filename, stored.ReusedFrom)
		return d.reused(result, outcome, stored)
	}
	imgLog.WithField("bytes", dl.Size).Debugf("Stored new image %s", stored.Filename)
	result.Outcome = models.OutcomeDownloaded
	result.Filename = stored.Filename
	result.LocalPath = stored.LocalPath
	result.ContentHash = stored.ContentHash
	return result
}

func (d *Deduplicator) entryFor(ref models.ImageReference, filename, hash string) models.RegistryEntry {
	return models.RegistryEntry{
		Filename:     filename,
		LocalPath:    LocalPath(d.opts.PublicPrefix, filename),
		ContentHash:  hash,
		SourceURL:    ref.SourceURL,
		RecordType:   ref.RecordType,
		RecordID:     ref.RecordID,
		FieldName:    ref.FieldName,
		Index:        ref.Index,
		DownloadedAt: d.now(),
	}
}

func (d *Deduplicator) reused(result models.ImageResult, outcome models.ImageOutcome, entry models.RegistryEntry) models.ImageResult {
	result.Outcome = outcome
	result.Filename = entry.Filename
	result.LocalPath = LocalPath(d.opts.PublicPrefix, entry.Filename)
	result.ContentHash = entry.ContentHash
	return result
}

func (d *Deduplicator) failed(result models.ImageResult, imgLog *logrus.Entry, err error) models.ImageResult {
	result.Outcome = models.OutcomeFailed
	result.Err = err
	result.ErrorCategory = utils.CategorizeError(err)
	imgLog.WithFields(logrus.Fields{
		"url":            result.Ref.SourceURL,
		"error_category": result.ErrorCategory,
	}).Warnf("Image kept remote: %v", err)
	return result
}

func (d *Deduplicator) fileExists(filename string) bool {
	if filename == "" {
		return false
	}
	return utils.FileExists(filepath.Join(d.opts.ImagesDir, filename))
}

// EnsureDir creates the images directory
func (d *Deduplicator) EnsureDir() error {
	if err := os.MkdirAll(d.opts.ImagesDir, 0o755); err != nil {
		return fmt.Errorf("%w: create images dir %s: %w", utils.ErrFilesystem, d.opts.ImagesDir, err)
	}
	return nil
}
