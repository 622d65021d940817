package images

import (
	"net/url"
	"strings"

	"github.com/hanamal24/site-sync/pkg/models"
)

// ExtractReferences finds every image reference in a record. Each alias
// present on the record is scanned on its own. A field may hold a bare URL
// string, a single attachment object ({url, width, height, ...}) or an array
// of either. Elements without a well-formed absolute http(s) URL are skipped.
// Index is the element position within its field (0 for single values).
func ExtractReferences(record models.Record, recordType string, aliases []string) []models.ImageReference {
	recordID := record.ID()
	if recordID == "" {
		return nil
	}

	var refs []models.ImageReference
	for _, field := range aliases {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		add := func(index int, elem any) {
			if u, ok := elementURL(elem); ok {
				refs = append(refs, models.ImageReference{
					RecordID:   recordID,
					RecordType: recordType,
					FieldName:  field,
					Index:      index,
					SourceURL:  u,
				})
			}
		}
		if list, ok := value.([]any); ok {
			for i, elem := range list {
				add(i, elem)
			}
			continue
		}
		add(0, value)
	}
	return refs
}

// elementURL returns the URL carried by one field element
func elementURL(elem any) (string, bool) {
	var raw string
	switch v := elem.(type) {
	case string:
		raw = v
	case map[string]any:
		s, ok := v["url"].(string)
		if !ok {
			return "", false
		}
		raw = s
	default:
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if !IsRemoteURL(raw) {
		return "", false
	}
	return raw, true
}

// IsRemoteURL reports whether s is an absolute http(s) URL with a host
func IsRemoteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
