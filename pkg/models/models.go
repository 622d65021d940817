package models

import (
	"fmt"
	"time"
)

// Record is one content record as returned by the records API, flattened to
// {id, ...fields}. Values are JSON-shaped (string, float64, bool, []any, map[string]any).
type Record map[string]any

// ID returns the record identifier, or "" if the record has none
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Dataset names, in the order the image pipeline processes them
const (
	DatasetEvents   = "events"
	DatasetPackages = "packages"
	DatasetDishes   = "dishes"
	DatasetGallery  = "gallery"
	DatasetHero     = "hero"
	DatasetAbout    = "about"
	DatasetMenus    = "menus"
)

// DatasetOrder is the fixed processing order across datasets
var DatasetOrder = []string{
	DatasetEvents,
	DatasetPackages,
	DatasetDishes,
	DatasetGallery,
	DatasetHero,
	DatasetAbout,
	DatasetMenus,
}

// SlotKey identifies one logical image position across syncs, independent of
// the URL or file currently filling it
type SlotKey struct {
	RecordID  string
	FieldName string
	Index     int
}

// String returns the persisted form of the key: <recordId>-<fieldName>-<index>
func (k SlotKey) String() string {
	return fmt.Sprintf("%s-%s-%d", k.RecordID, k.FieldName, k.Index)
}

// NameSeed returns the string hashed into the slot's stable filename.
// Index 0 is omitted so single-valued fields keep the shortest seed.
func (k SlotKey) NameSeed() string {
	if k.Index > 0 {
		return fmt.Sprintf("%s-%s-%d", k.RecordID, k.FieldName, k.Index)
	}
	return k.RecordID + "-" + k.FieldName
}

// ImageReference is an image as it appears embedded in a content record
type ImageReference struct {
	RecordID   string
	RecordType string // Dataset the record belongs to
	FieldName  string
	Index      int
	SourceURL  string
}

// Slot returns the slot key of the reference
func (r ImageReference) Slot() SlotKey {
	return SlotKey{RecordID: r.RecordID, FieldName: r.FieldName, Index: r.Index}
}

// RegistryEntry maps a slot or a content hash to a stored file
type RegistryEntry struct {
	Filename     string    `json:"filename"`
	LocalPath    string    `json:"localPath"`
	ContentHash  string    `json:"contentHash"`
	SourceURL    string    `json:"sourceUrl"`
	RecordType   string    `json:"recordType,omitempty"`
	RecordID     string    `json:"recordId"`
	FieldName    string    `json:"fieldName"`
	Index        int       `json:"index"`
	DownloadedAt time.Time `json:"downloadedAt"`
	ReusedFrom   string    `json:"reusedFrom,omitempty"` // Slot key that first stored the shared file
}

// RegistryDocument is the serialized form of the whole registry
type RegistryDocument struct {
	Version       int                      `json:"version"`
	BySlotKey     map[string]RegistryEntry `json:"bySlotKey"`
	ByContentHash map[string]RegistryEntry `json:"byContentHash"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// RegistryDocumentVersion is written into every flushed document
const RegistryDocumentVersion = 2

// NewRegistryDocument returns an empty document with initialized maps
func NewRegistryDocument() RegistryDocument {
	return RegistryDocument{
		Version:       RegistryDocumentVersion,
		BySlotKey:     make(map[string]RegistryEntry),
		ByContentHash: make(map[string]RegistryEntry),
	}
}

// DatasetStats aggregates image outcomes for one dataset
type DatasetStats struct {
	Downloaded int `json:"downloaded"`
	Reused     int `json:"reused"`
	Failed     int `json:"failed"`
}

// Record counts one image outcome
func (s *DatasetStats) Record(outcome ImageOutcome) {
	switch outcome {
	case OutcomeDownloaded:
		s.Downloaded++
	case OutcomeReusedSlot, OutcomeReusedContent:
		s.Reused++
	case OutcomeFailed:
		s.Failed++
	}
}

// Add merges other into s
func (s *DatasetStats) Add(other DatasetStats) {
	s.Downloaded += other.Downloaded
	s.Reused += other.Reused
	s.Failed += other.Failed
}

// Total returns the number of image slots seen
func (s DatasetStats) Total() int {
	return s.Downloaded + s.Reused + s.Failed
}

// ImageResult is the structured outcome of resolving one image reference
type ImageResult struct {
	Ref           ImageReference
	Outcome       ImageOutcome
	Filename      string // Empty on failure
	LocalPath     string // Empty on failure; the record keeps Ref.SourceURL
	ContentHash   string
	Err           error
	ErrorCategory string
}
