package mcp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
	"github.com/hanamal24/site-sync/pkg/storage"
)

func TestExtractSnippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		maxLen  int
		wantHas string // substring that must appear
		wantPfx string // expected prefix (if any)
		wantSfx string // expected suffix (if any)
	}{
		{
			name:    "match in middle with ellipsis",
			content: "The quick brown fox jumps over the lazy dog and then keeps running forever",
			query:   "jumps",
			maxLen:  20,
			wantHas: "jumps",
			wantPfx: "...",
			wantSfx: "...",
		},
		{
			name:    "match at start",
			content: "Hello world this is a test",
			query:   "Hello",
			maxLen:  20,
			wantHas: "Hello",
		},
		{
			name:    "match at end",
			content: "This is a very long string that ends with target",
			query:   "target",
			maxLen:  20,
			wantHas: "target",
		},
		{
			name:    "no match truncated beginning",
			content: "abcdefghijklmnopqrstuvwxyz",
			query:   "zzz",
			maxLen:  10,
			wantHas: "abcdefghij",
			wantSfx: "...",
		},
		{
			name:    "short content returned as-is",
			content: "hi",
			query:   "missing",
			maxLen:  100,
			wantHas: "hi",
		},
		{
			name:    "empty content",
			content: "",
			query:   "test",
			maxLen:  50,
			wantHas: "",
		},
		{
			name:    "case insensitive",
			content: "The Quick Brown Fox",
			query:   "quick",
			maxLen:  100,
			wantHas: "Quick",
		},
		{
			name:    "unicode safety",
			content: "こんにちは世界、テストです。Unicode文字列のテスト。",
			query:   "テスト",
			maxLen:  15,
			wantHas: "テスト",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSnippet(tt.content, tt.query, tt.maxLen)
			if tt.wantHas != "" {
				assert.Contains(t, got, tt.wantHas)
			}
			if tt.wantPfx != "" {
				assert.Contains(t, got, tt.wantPfx, "expected prefix ellipsis")
			}
			if tt.wantSfx != "" {
				assert.True(t, len(got) > 0 && got[len(got)-3:] == "...", "expected suffix ellipsis")
			}
		})
	}
}


// blockingRunner records calls and blocks until release is closed
type blockingRunner struct {
	mu      sync.Mutex
	names   [][]string
	release chan struct{}
	err     error
}

func (r *blockingRunner) Run(ctx context.Context, names []string) (*orchestrate.RunResult, error) {
	r.mu.Lock()
	r.names = append(r.names, names)
	r.mu.Unlock()
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &orchestrate.RunResult{
		Datasets: []orchestrate.DatasetResult{{Dataset: "events", Records: 2, Stats: models.DatasetStats{Downloaded: 1, Reused: 1}}},
		Totals:   models.DatasetStats{Downloaded: 1, Reused: 1},
	}, nil
}

func newTestServer(t *testing.T, runner SyncRunner) *Server {
	t.Helper()
	root := t.TempDir()
	appCfg := &config.AppConfig{DataDir: filepath.Join(root, "data"), OutputDir: filepath.Join(root, "dist")}
	_, err := appCfg.Validate()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := storage.NewRegistry(storage.NewFileBackend(filepath.Join(root, "registry.json")), logrus.NewEntry(logger))
	require.NoError(t, registry.Load(context.Background()))

	s, err := NewServer(&ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: "config.yaml",
		Runner:     runner,
		Registry:   registry,
		Logger:     logger,
	})
	require.NoError(t, err)
	return s
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.IsError, "tool returned an error result")
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func writeSnapshot(t *testing.T, s *Server, dataset string, records []models.Record) {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(s.cfg.AppConfig.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.AppConfig.DataDir, dataset+".json"), data, 0o644))
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(&ServerConfig{})
	assert.Error(t, err)
	_, err = NewServer(&ServerConfig{AppConfig: &config.AppConfig{}})
	assert.Error(t, err)
}

func TestHandleListDatasets(t *testing.T) {
	s := newTestServer(t, &blockingRunner{})
	writeSnapshot(t, s, "events", []models.Record{{"id": "rec1"}, {"id": "rec2"}})

	res, err := s.handleListDatasets(context.Background(), callTool(nil))
	require.NoError(t, err)
	out := resultJSON(t, res)

	datasets := out["datasets"].([]any)
	assert.Equal(t, float64(len(datasets)), out["total_datasets"])
	first := datasets[0].(map[string]any)
	assert.Equal(t, "events", first["name"])
	assert.Equal(t, "Events", first["table"])
	assert.Equal(t, float64(2), first["records"])
	assert.NotEmpty(t, first["last_synced"])
}

func TestHandleRunSyncAndStatus(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s := newTestServer(t, runner)

	res, err := s.handleRunSync(context.Background(), callTool(map[string]any{"datasets": "events, menus"}))
	require.NoError(t, err)
	started := resultJSON(t, res)
	assert.Equal(t, "started", started["status"])
	jobID := started["job_id"].(string)

	// A second request while the first is running returns the same job
	res, err = s.handleRunSync(context.Background(), callTool(nil))
	require.NoError(t, err)
	again := resultJSON(t, res)
	assert.Equal(t, "already_running", again["status"])
	assert.Equal(t, jobID, again["job_id"])

	close(runner.release)
	require.Eventually(t, func() bool {
		job, ok := s.jobManager.GetJob(jobID)
		return ok && job.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	res, err = s.handleGetJobStatus(context.Background(), callTool(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	status := resultJSON(t, res)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, []any{"events", "menus"}, status["datasets"])
	assert.Equal(t, float64(1), status["images"].(map[string]any)["downloaded"])
	assert.Len(t, status["results"], 1)

	runner.mu.Lock()
	assert.Equal(t, [][]string{{"events", "menus"}}, runner.names)
	runner.mu.Unlock()
}

func TestHandleRunSync_UnknownDataset(t *testing.T) {
	s := newTestServer(t, &blockingRunner{})
	res, err := s.handleRunSync(context.Background(), callTool(map[string]any{"datasets": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, s.jobManager.ListJobs())
}

func TestHandleGetJobStatus_Errors(t *testing.T) {
	s := newTestServer(t, &blockingRunner{})

	res, err := s.handleGetJobStatus(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetJobStatus(context.Background(), callTool(map[string]any{"job_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleLookupRecordImagesAndStats(t *testing.T) {
	s := newTestServer(t, &blockingRunner{})
	reg := s.cfg.Registry
	entry := models.RegistryEntry{
		Filename: "699a42bbd00d.jpg", LocalPath: "/images/699a42bbd00d.jpg", ContentHash: "h1",
		SourceURL: "https://cdn.example.com/a.jpg", RecordType: "events", RecordID: "recA", FieldName: "Image",
		DownloadedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	reg.Upsert(models.SlotKey{RecordID: "recA", FieldName: "Image"}, entry)
	reg.UpsertContent("h1", entry)
	reused := entry
	reused.RecordID, reused.ReusedFrom = "recB", "recA-Image-0"
	reg.Upsert(models.SlotKey{RecordID: "recB", FieldName: "Image"}, reused)

	res, err := s.handleLookupRecordImages(context.Background(), callTool(map[string]any{"record_id": "recB"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["total"])
	img := out["images"].([]any)[0].(map[string]any)
	assert.Equal(t, "recB-Image-0", img["slot"])
	assert.Equal(t, "recA-Image-0", img["reused_from"])
	assert.Equal(t, "/images/699a42bbd00d.jpg", img["local_path"])

	res, err = s.handleRegistryStats(context.Background(), callTool(nil))
	require.NoError(t, err)
	stats := resultJSON(t, res)
	assert.Equal(t, float64(2), stats["slots"])
	assert.Equal(t, float64(1), stats["contents"])
	assert.Equal(t, float64(1), stats["files"])

	res, err = s.handleLookupRecordImages(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleSearchRecords(t *testing.T) {
	s := newTestServer(t, &blockingRunner{})
	writeSnapshot(t, s, "events", []models.Record{
		{"id": "rec1", "Name": "ערב יין בגינה", "Image": []any{map[string]any{"url": "/images/a.jpg"}}},
		{"id": "rec2", "Name": "Brunch", "Description": "Wine pairing brunch"},
	})
	writeSnapshot(t, s, "menus", []models.Record{{"id": "rec3", "Name": "Wine list"}})

	res, err := s.handleSearchRecords(context.Background(), callTool(map[string]any{"query": "wine"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(2), out["total_matches"])

	res, err = s.handleSearchRecords(context.Background(), callTool(map[string]any{"query": "יין", "dataset": "events"}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	require.Equal(t, float64(1), out["total_matches"])
	hit := out["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "rec1", hit["record_id"])
	assert.Equal(t, "Name", hit["field"])

	res, err = s.handleSearchRecords(context.Background(), callTool(map[string]any{"query": "x", "dataset": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
