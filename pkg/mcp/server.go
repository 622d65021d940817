// Package mcp exposes sync jobs and image registry lookups as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
	"github.com/hanamal24/site-sync/pkg/storage"
)

const serverName = "site-sync"

// SyncRunner performs one sync. *orchestrate.Orchestrator implements it.
type SyncRunner interface {
	Run(ctx context.Context, names []string) (*orchestrate.RunResult, error)
}

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Version    string
	Runner     SyncRunner
	Registry   *storage.Registry
	Logger     *logrus.Logger
}

// Server wraps the MCP server with the sync tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, errors.New("AppConfig is required")
	}
	if cfg.Runner == nil || cfg.Registry == nil {
		return nil, errors.New("Runner and Registry are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	mcpServer := server.NewMCPServer(
		serverName,
		cfg.Version,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		Tool    mcp.Tool
		Handler server.ToolHandlerFunc
	}{
		{
			Tool: mcp.NewTool("list_datasets",
				mcp.WithDescription("List the configured datasets with their source tables and current snapshot sizes"),
			),
			Handler: s.handleListDatasets,
		},
		{
			Tool: mcp.NewTool("run_sync",
				mcp.WithDescription("Start a background sync that fetches records, localizes their images and rewrites the data files. Returns immediately with a job ID."),
				mcp.WithString("datasets",
					mcp.Description("Comma-separated dataset names (e.g. 'events,menus'); empty syncs all"),
				),
			),
			Handler: s.handleRunSync,
		},
		{
			Tool: mcp.NewTool("get_job_status",
				mcp.WithDescription("Get the status and image totals of a sync job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by run_sync"),
				),
			),
			Handler: s.handleGetJobStatus,
		},
		{
			Tool: mcp.NewTool("lookup_record_images",
				mcp.WithDescription("List the stored images of one record, by slot"),
				mcp.WithString("record_id",
					mcp.Required(),
					mcp.Description("Record ID, e.g. 'recA1b2C3'"),
				),
			),
			Handler: s.handleLookupRecordImages,
		},
		{
			Tool: mcp.NewTool("registry_stats",
				mcp.WithDescription("Summarize the image registry: slots, distinct contents and files"),
			),
			Handler: s.handleRegistryStats,
		},
		{
			Tool: mcp.NewTool("search_records",
				mcp.WithDescription("Search the synced dataset snapshots using text matching"),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Search query (case-insensitive substring match)"),
				),
				mcp.WithString("dataset",
					mcp.Description("Limit search to one dataset (optional)"),
				),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
				),
			),
			Handler: s.handleSearchRecords,
		},
	}
	for _, t := range tools {
		s.mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "", "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
