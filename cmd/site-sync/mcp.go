package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/mcp"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8090, "HTTP port (for sse transport)")
	offline := fs.Bool("offline", false, "Syncs re-process existing data files instead of calling Airtable")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  site-sync mcp-server -config site-sync.yaml

  # Start with SSE transport on port 8090
  site-sync mcp-server -config site-sync.yaml -transport sse -port 8090

Available MCP Tools:
  list_datasets         List datasets with record counts and last sync time
  run_sync              Start a background sync
  get_job_status        Progress and results of a sync job
  lookup_record_images  Registry entries for one record
  registry_stats        Image registry counts
  search_records        Search synced records
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doMcpServer(*configFile, *envFile, *transport, *port, *logLevel, *offline, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, envFile, transport string, port int, logLevel string, offline bool, stderr io.Writer) int {
	// MCP protocol uses stdout, logs go to stderr
	if _, err := logrus.ParseLevel(logLevel); err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log := setupLogger(logLevel, stderr)

	appCfg, _, err := loadConfig(configPath, envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, err := orchestrate.Build(ctx, appCfg, offline, logrus.NewEntry(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening sync components: %v\n", err)
		return 1
	}
	defer comps.Close()
	comps.StartEviction(ctx)

	srv, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  transport,
		Port:       port,
		Version:    version,
		Runner:     comps.Orchestrator,
		Registry:   comps.Registry,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer srv.Shutdown(ctx)

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := srv.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
