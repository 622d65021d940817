package leads

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// StoredLead is one line of the fallback file
type StoredLead struct {
	ID         string         `json:"id"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Fields     map[string]any `json:"fields"`
	Reason     string         `json:"reason,omitempty"` // Why the lead was not forwarded
}

// FallbackStore appends leads to a JSON Lines file
type FallbackStore struct {
	mu   sync.Mutex
	path string
}

// NewFallbackStore returns a store writing to path. The file and its
// directory are created on first append.
func NewFallbackStore(path string) *FallbackStore {
	return &FallbackStore{path: path}
}

// Path returns the file the store appends to
func (s *FallbackStore) Path() string {
	return s.path
}

// Append writes one lead and returns its generated id
func (s *FallbackStore) Append(fields map[string]any, reason string, now time.Time) (string, error) {
	rec := StoredLead{
		ID:         uuid.NewString(),
		ReceivedAt: now,
		Fields:     fields,
		Reason:     reason,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: encode lead: %w", utils.ErrParsing, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", fmt.Errorf("%w: create leads dir: %w", utils.ErrFilesystem, err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", utils.ErrFilesystem, s.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: write %s: %w", utils.ErrFilesystem, s.path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", utils.ErrFilesystem, s.path, err)
	}
	return rec.ID, nil
}
