package images

import (
	"github.com/hanamal24/site-sync/pkg/models"
)

// Rewrite returns a deep copy of record with resolved slots pointing at their
// local paths. For attachment objects only "url" changes; bare string
// elements are replaced by the path. Field shapes are preserved and fields
// without a resolved slot are copied unchanged. record is not modified.
func Rewrite(record models.Record, resolved map[models.SlotKey]string) models.Record {
	out, _ := deepCopy(map[string]any(record)).(map[string]any)
	rewritten := models.Record(out)

	recordID := record.ID()
	if recordID == "" || len(resolved) == 0 {
		return rewritten
	}

	for slot, localPath := range resolved {
		if slot.RecordID != recordID {
			continue
		}
		value, ok := rewritten[slot.FieldName]
		if !ok {
			continue
		}
		if list, ok := value.([]any); ok {
			if slot.Index >= 0 && slot.Index < len(list) {
				list[slot.Index] = replaceURL(list[slot.Index], localPath)
			}
			continue
		}
		if slot.Index == 0 {
			rewritten[slot.FieldName] = replaceURL(value, localPath)
		}
	}
	return rewritten
}

// replaceURL swaps the URL of one element, which is already a private copy
func replaceURL(elem any, localPath string) any {
	switch v := elem.(type) {
	case string:
		if !IsRemoteURL(v) {
			return v
		}
		return localPath
	case map[string]any:
		if u, ok := v["url"].(string); ok && IsRemoteURL(u) {
			v["url"] = localPath
		}
		return v
	default:
		return elem
	}
}

// deepCopy copies JSON-shaped values (maps, slices and scalars)
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case models.Record:
		return deepCopy(map[string]any(t))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	default:
		return t
	}
}
