package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
)

// handleListDatasets handles the list_datasets tool
func (s *Server) handleListDatasets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appCfg := s.cfg.AppConfig
	active, running := s.jobManager.ActiveJob()

	datasets := make([]map[string]interface{}, 0)
	for _, name := range appCfg.Datasets() {
		table, _ := appCfg.TableFor(name)
		info := map[string]interface{}{
			"name":  name,
			"table": table,
		}

		path := filepath.Join(appCfg.DataDir, name+".json")
		if st, err := os.Stat(path); err == nil {
			info["last_synced"] = st.ModTime().UTC().Format(time.RFC3339)
			if records, err := loadSnapshot(path); err == nil {
				info["records"] = len(records)
			}
		}
		if running && (len(active.Datasets) == 0 || contains(active.Datasets, name)) {
			info["status"] = "syncing"
		}
		datasets = append(datasets, info)
	}

	result := map[string]interface{}{
		"datasets":       datasets,
		"config_path":    s.cfg.ConfigPath,
		"total_datasets": len(datasets),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleRunSync handles the run_sync tool
func (s *Server) handleRunSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var names []string
	for _, n := range strings.Split(request.GetString("datasets", ""), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if err := orchestrate.ValidateDatasets(s.cfg.AppConfig, names); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.jobManager.CreateJob(names)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A sync is already in progress",
			"job_id":  job.ID,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runSyncJob(job.ID, names)

	result := map[string]interface{}{
		"status":   "started",
		"message":  "Sync started successfully",
		"job_id":   job.ID,
		"datasets": names,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runSyncJob runs a sync job in the background
func (s *Server) runSyncJob(jobID string, names []string) {
	s.jobManager.MarkRunning(jobID)
	jobLog := s.log.WithField("job_id", jobID)
	jobLog.Info("Sync job started")

	result, err := s.cfg.Runner.Run(s.jobManager.GetContext(jobID), names)
	s.jobManager.Finish(jobID, result, err)

	if err != nil {
		jobLog.Errorf("Sync job ended with error: %v", err)
		return
	}
	jobLog.Info("Sync job completed")
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"datasets":   job.Datasets,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"images": map[string]int{
			"downloaded": job.Totals.Downloaded,
			"reused":     job.Totals.Reused,
			"failed":     job.Totals.Failed,
		},
	}

	if len(job.Results) > 0 {
		perDataset := make([]map[string]interface{}, 0, len(job.Results))
		for _, r := range job.Results {
			entry := map[string]interface{}{
				"dataset": r.Dataset,
				"records": r.Records,
				"images":  r.Stats,
			}
			if r.FetchError != "" {
				entry["fetch_error"] = r.FetchError
			}
			perDataset = append(perDataset, entry)
		}
		result["results"] = perDataset
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleLookupRecordImages handles the lookup_record_images tool
func (s *Server) handleLookupRecordImages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordID := strings.TrimSpace(request.GetString("record_id", ""))
	if recordID == "" {
		return mcp.NewToolResultError("record_id parameter is required"), nil
	}

	entries := s.cfg.Registry.EntriesForRecord(recordID)
	images := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		img := map[string]interface{}{
			"slot":          models.SlotKey{RecordID: e.RecordID, FieldName: e.FieldName, Index: e.Index}.String(),
			"field":         e.FieldName,
			"index":         e.Index,
			"filename":      e.Filename,
			"local_path":    e.LocalPath,
			"source_url":    e.SourceURL,
			"content_hash":  e.ContentHash,
			"downloaded_at": e.DownloadedAt.Format(time.RFC3339),
		}
		if e.ReusedFrom != "" {
			img["reused_from"] = e.ReusedFrom
		}
		images = append(images, img)
	}

	result := map[string]interface{}{
		"record_id": recordID,
		"images":    images,
		"total":     len(images),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleRegistryStats handles the registry_stats tool
func (s *Server) handleRegistryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.cfg.Registry.Stats()
	result := map[string]interface{}{
		"slots":    stats.Slots,
		"contents": stats.Contents,
		"files":    stats.Files,
		"backend":  stats.Backend,
	}
	if !stats.Updated.IsZero() {
		result["updated_at"] = stats.Updated.Format(time.RFC3339)
	}
	if job, ok := s.jobManager.ActiveJob(); ok {
		result["active_job"] = job.ID
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchRecords handles the search_records tool
func (s *Server) handleSearchRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	dataset := request.GetString("dataset", "")
	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	datasets := s.cfg.AppConfig.Datasets()
	if dataset != "" {
		if _, ok := s.cfg.AppConfig.TableFor(dataset); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("dataset '%s' not found", dataset)), nil
		}
		datasets = []string{dataset}
	}

	results := s.searchSnapshots(query, datasets, maxResults)
	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	if dataset != "" {
		response["dataset"] = dataset
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchSnapshots scans the string fields of each dataset snapshot for query
func (s *Server) searchSnapshots(query string, datasets []string, maxResults int) []map[string]interface{} {
	results := make([]map[string]interface{}, 0)
	queryLower := strings.ToLower(query)

	for _, ds := range datasets {
		records, err := loadSnapshot(filepath.Join(s.cfg.AppConfig.DataDir, ds+".json"))
		if err != nil {
			continue // Not synced yet
		}

		for _, rec := range records {
			if len(results) >= maxResults {
				return results
			}

			fields := make([]string, 0, len(rec))
			for k := range rec {
				fields = append(fields, k)
			}
			sort.Strings(fields)

			for _, field := range fields {
				text, ok := rec[field].(string)
				if !ok || !strings.Contains(strings.ToLower(text), queryLower) {
					continue
				}
				results = append(results, map[string]interface{}{
					"dataset":   ds,
					"record_id": rec.ID(),
					"field":     field,
					"snippet":   extractSnippet(text, query, 150),
				})
				break
			}
		}
	}
	return results
}

// loadSnapshot reads a dataset file written by the sync
func loadSnapshot(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}
	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
