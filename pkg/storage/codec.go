package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// legacySlotEntry is a slot entry as written by the first generation of the
// registry, which used originalUrl and no explicit version.
type legacySlotEntry struct {
	Filename     string    `json:"filename"`
	LocalPath    string    `json:"localPath"`
	RecordType   string    `json:"recordType"`
	RecordID     string    `json:"recordId"`
	FieldName    string    `json:"fieldName"`
	Index        int       `json:"index"`
	DownloadedAt time.Time `json:"downloadedAt"`
	OriginalURL  string    `json:"originalUrl"`
	SourceURL    string    `json:"sourceUrl"`
	ContentHash  string    `json:"contentHash"`
	ReusedFrom   string    `json:"reusedFrom"`
}

// legacyContentEntry is a content-hash entry from the first generation
type legacyContentEntry struct {
	FilePath    string    `json:"filePath"`
	Filename    string    `json:"filename"`
	LocalPath   string    `json:"localPath"`
	RegistryKey string    `json:"registryKey"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
}

// DecodeDocument parses a registry document. It accepts the current layout
// ({version, bySlotKey, byContentHash}), the legacy layout ({byKey,
// byContentHash}) and a bare map of slot entries. Errors wrap
// utils.ErrRegistryCorrupt.
func DecodeDocument(data []byte) (models.RegistryDocument, error) {
	doc := models.NewRegistryDocument()
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return doc, fmt.Errorf("%w: empty document", utils.ErrRegistryCorrupt)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return doc, fmt.Errorf("%w: %w: JSON: %w", utils.ErrRegistryCorrupt, utils.ErrParsing, err)
	}

	if _, ok := top["bySlotKey"]; ok {
		if err := json.Unmarshal(data, &doc); err != nil {
			return models.NewRegistryDocument(), fmt.Errorf("%w: %w: JSON: %w", utils.ErrRegistryCorrupt, utils.ErrParsing, err)
		}
		if doc.BySlotKey == nil {
			doc.BySlotKey = make(map[string]models.RegistryEntry)
		}
		if doc.ByContentHash == nil {
			doc.ByContentHash = make(map[string]models.RegistryEntry)
		}
		return doc, nil
	}

	// Legacy: {byKey: {...}, byContentHash: {...}} or just the byKey map itself
	slotsRaw, hasByKey := top["byKey"]
	var legacySlots map[string]legacySlotEntry
	if hasByKey {
		if err := json.Unmarshal(slotsRaw, &legacySlots); err != nil {
			return doc, fmt.Errorf("%w: %w: JSON byKey: %w", utils.ErrRegistryCorrupt, utils.ErrParsing, err)
		}
	} else {
		legacySlots = make(map[string]legacySlotEntry, len(top))
		for k, raw := range top {
			if k == "byContentHash" {
				continue
			}
			var e legacySlotEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				return doc, fmt.Errorf("%w: %w: JSON entry %q: %w", utils.ErrRegistryCorrupt, utils.ErrParsing, k, err)
			}
			legacySlots[k] = e
		}
	}

	for key, e := range legacySlots {
		entry := models.RegistryEntry{
			Filename:     e.Filename,
			LocalPath:    e.LocalPath,
			ContentHash:  e.ContentHash,
			SourceURL:    e.SourceURL,
			RecordType:   e.RecordType,
			RecordID:     e.RecordID,
			FieldName:    e.FieldName,
			Index:        e.Index,
			DownloadedAt: e.DownloadedAt,
			ReusedFrom:   e.ReusedFrom,
		}
		if entry.SourceURL == "" {
			entry.SourceURL = e.OriginalURL
		}
		if entry.Filename == "" && entry.LocalPath != "" {
			entry.Filename = filepath.Base(entry.LocalPath)
		}
		if entry.RecordID == "" {
			entry.RecordID, entry.FieldName, entry.Index = splitSlotKey(key)
		}
		doc.BySlotKey[key] = entry
	}

	if contentRaw, ok := top["byContentHash"]; ok {
		var legacyContent map[string]legacyContentEntry
		if err := json.Unmarshal(contentRaw, &legacyContent); err != nil {
			return doc, fmt.Errorf("%w: %w: JSON byContentHash: %w", utils.ErrRegistryCorrupt, utils.ErrParsing, err)
		}
		for hash, c := range legacyContent {
			filename := c.Filename
			if filename == "" {
				filename = filepath.Base(c.FilePath)
			}
			entry := models.RegistryEntry{
				Filename:     filename,
				LocalPath:    c.LocalPath,
				ContentHash:  hash,
				DownloadedAt: c.FirstSeenAt,
			}
			if owner, ok := doc.BySlotKey[c.RegistryKey]; ok {
				entry.SourceURL = owner.SourceURL
				entry.RecordType = owner.RecordType
				entry.RecordID = owner.RecordID
				entry.FieldName = owner.FieldName
				entry.Index = owner.Index
			}
			doc.ByContentHash[hash] = entry
		}
	}
	return doc, nil
}

// splitSlotKey recovers the parts of a "<recordId>-<fieldName>-<index>" key.
// Record IDs never contain '-', field names may.
func splitSlotKey(key string) (recordID, fieldName string, index int) {
	first := strings.Index(key, "-")
	last := strings.LastIndex(key, "-")
	if first < 0 || last <= first {
		return key, "", 0
	}
	idx, err := strconv.Atoi(key[last+1:])
	if err != nil {
		return key[:first], key[first+1:], 0
	}
	return key[:first], key[first+1 : last], idx
}
