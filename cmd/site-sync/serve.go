package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/airtable"
	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/fetch"
	"github.com/hanamal24/site-sync/pkg/leads"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
	"github.com/hanamal24/site-sync/pkg/server"
)

// runServe handles the serve subcommand
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	addr := fs.String("addr", "", "Listen address (default: leads.listen_addr)")
	siteDir := fs.String("dir", "", "Site directory to serve (default: output_dir)")
	noLeads := fs.Bool("no-leads", false, "Do not mount /api/submit-lead")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync serve [options]

Serve the rendered site together with:
  POST /api/submit-lead  Lead form endpoint (Airtable, with local fallback)
  GET  /healthz          Liveness check
  GET  /metrics          Prometheus metrics

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, *envFile, log)

	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	srv := newSiteServer(appCfg, *siteDir, !*noLeads, logrus.NewEntry(log))
	listen := *addr
	if listen == "" {
		listen = appCfg.Leads.ListenAddr
	}
	if err := srv.ListenAndServe(ctx, listen); err != nil {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}

// newSiteServer wires the static site, the lead handler and metrics
func newSiteServer(appCfg *config.AppConfig, siteDir string, withLeads bool, log *logrus.Entry) *server.Server {
	if siteDir == "" {
		siteDir = appCfg.OutputDir
	}

	var leadHandler *leads.Handler
	if withLeads {
		apiClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
		at := airtable.NewClient(appCfg.Airtable, apiClient, orchestrate.RetryPolicy(appCfg), log)
		if !at.Configured() {
			log.Warnf("Airtable credentials missing, leads will only be stored in %s", appCfg.Leads.FallbackPath)
		}
		leadHandler = leads.NewHandler(at, appCfg.Airtable.LeadsTable, appCfg.Leads, log)
	}

	opts := server.Options{SiteDir: siteDir, RequestTimeout: 30 * time.Second}
	if leadHandler == nil {
		return server.New(opts, nil, log)
	}
	return server.New(opts, leadHandler, log)
}

