package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKey(t *testing.T) {
	t.Run("string form includes index", func(t *testing.T) {
		assert.Equal(t, "recA-Image-0", SlotKey{RecordID: "recA", FieldName: "Image"}.String())
		assert.Equal(t, "recA-Event Photos-3", SlotKey{RecordID: "recA", FieldName: "Event Photos", Index: 3}.String())
	})

	t.Run("name seed omits index zero", func(t *testing.T) {
		assert.Equal(t, "recA-Image", SlotKey{RecordID: "recA", FieldName: "Image"}.NameSeed())
		assert.Equal(t, "recA-Image-1", SlotKey{RecordID: "recA", FieldName: "Image", Index: 1}.NameSeed())
	})

	t.Run("reference slot", func(t *testing.T) {
		ref := ImageReference{RecordID: "recB", FieldName: "Photo", Index: 2, SourceURL: "https://x"}
		assert.Equal(t, SlotKey{RecordID: "recB", FieldName: "Photo", Index: 2}, ref.Slot())
	})
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "rec1", Record{"id": "rec1"}.ID())
	assert.Equal(t, "", Record{"Name": "x"}.ID())
	assert.Equal(t, "", Record{"id": 42}.ID())
}

func TestDatasetStats(t *testing.T) {
	var s DatasetStats
	s.Record(OutcomeDownloaded)
	s.Record(OutcomeReusedSlot)
	s.Record(OutcomeReusedContent)
	s.Record(OutcomeFailed)
	s.Record(OutcomeUnset)

	assert.Equal(t, DatasetStats{Downloaded: 1, Reused: 2, Failed: 1}, s)
	assert.Equal(t, 4, s.Total())

	s.Add(DatasetStats{Downloaded: 2, Failed: 1})
	assert.Equal(t, DatasetStats{Downloaded: 3, Reused: 2, Failed: 2}, s)
}

func TestRegistryDocument_JSONFieldNames(t *testing.T) {
	doc := NewRegistryDocument()
	doc.BySlotKey["recA-Image-0"] = RegistryEntry{
		Filename:     "699a42bbd00d.jpg",
		LocalPath:    "/images/699a42bbd00d.jpg",
		ContentHash:  "h",
		SourceURL:    "https://img.example/x.jpg",
		RecordID:     "recA",
		FieldName:    "Image",
		DownloadedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	raw := string(data)
	assert.Contains(t, raw, `"bySlotKey"`)
	assert.Contains(t, raw, `"byContentHash"`)
	assert.Contains(t, raw, `"localPath":"/images/699a42bbd00d.jpg"`)
	assert.Contains(t, raw, `"sourceUrl":"https://img.example/x.jpg"`)
	assert.NotContains(t, raw, "reusedFrom")
}
