package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/audit"
	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/fetch"
	"github.com/hanamal24/site-sync/pkg/images"
	"github.com/hanamal24/site-sync/pkg/storage"
)

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile, envFile, _ := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync validate [options]

Validate the configuration file without running a sync.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, *envFile, os.Stdout, os.Stderr))
}

// doValidate validates config and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, envFile string, stdout, stderr io.Writer) int {
	appCfg, warnings, err := loadConfig(configPath, envFile)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	for _, ds := range appCfg.Datasets() {
		table, _ := appCfg.TableFor(ds)
		fmt.Fprintf(stdout, "OK: [%s] table %q\n", ds, table)
	}
	if appCfg.Airtable.Token == "" || appCfg.Airtable.BaseID == "" {
		fmt.Fprintln(stdout, "NOTE: Airtable credentials not set; sync will run offline")
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListDatasets handles the list-datasets subcommand
func runListDatasets(args []string) {
	fs := flag.NewFlagSet("list-datasets", flag.ExitOnError)
	configFile, envFile, _ := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync list-datasets [options]

List the datasets that sync processes, in pipeline order.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListDatasets(*configFile, *envFile, os.Stdout, os.Stderr))
}

// doListDatasets lists datasets and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListDatasets(configPath, envFile string, stdout, stderr io.Writer) int {
	appCfg, _, err := loadConfig(configPath, envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Datasets in %s:\n\n", configPath)
	for _, ds := range appCfg.Datasets() {
		table, _ := appCfg.TableFor(ds)
		fmt.Fprintf(stdout, "  %s\n", ds)
		fmt.Fprintf(stdout, "    Table: %s\n", table)
		fmt.Fprintf(stdout, "    Output: %s.json\n", ds)
		fmt.Fprintln(stdout)
	}
	return 0
}

// openRegistry opens and loads the configured image registry
func openRegistry(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) (*storage.Registry, error) {
	backend, err := storage.OpenBackend(appCfg.Registry, log)
	if err != nil {
		return nil, err
	}
	registry := storage.NewRegistry(backend, log)
	if err := registry.Load(ctx); err != nil {
		registry.Close()
		return nil, err
	}
	return registry, nil
}

// runCheck handles the check subcommand
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync check [options]

Request every source URL recorded in the image registry and report which
are no longer reachable. Exits 1 if any source is broken.

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
	os.Exit(doCheck(ctx, appCfg, log, os.Stdout))
}

// doCheck is the testable implementation of the check command
func doCheck(ctx context.Context, appCfg *config.AppConfig, log *logrus.Logger, stdout io.Writer) int {
	entry := logrus.NewEntry(log)
	registry, err := openRegistry(ctx, appCfg, entry)
	if err != nil {
		log.Errorf("Open registry: %v", err)
		return 1
	}
	defer registry.Close()

	client := fetch.NewClient(appCfg.ImageClientSettings(), entry)
	report, err := images.CheckSources(ctx, client, registry, appCfg.Images.RequestTimeout, appCfg.Images.NumWorkers, entry)
	if err != nil {
		log.Errorf("Check failed: %v", err)
		return 1
	}

	fmt.Fprintf(stdout, "Accessible: %d\nBroken: %d\n", len(report.Accessible), len(report.Broken))
	for _, b := range report.Broken {
		reason := b.Error
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", b.StatusCode)
		}
		fmt.Fprintf(stdout, "  BROKEN %s (%s) used by %v\n", b.URL, reason, b.Slots)
	}
	if len(report.Broken) > 0 {
		return 1
	}
	return 0
}

// runAudit handles the audit subcommand
func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	siteDir := fs.String("dir", "", "Rendered site directory (default: output_dir)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync audit [options]

Scan the rendered HTML for images served from other hosts or local image
paths with no file behind them, and check that every sitemap.xml location
has a page. Exits 1 if anything is found.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, *envFile, log)
	os.Exit(doAudit(appCfg, *siteDir, log, os.Stdout))
}

// doAudit is the testable implementation of the audit command
func doAudit(appCfg *config.AppConfig, siteDir string, log *logrus.Logger, stdout io.Writer) int {
	if siteDir == "" {
		siteDir = appCfg.OutputDir
	}
	var host string
	if u, err := url.Parse(appCfg.Site.BaseURL); err == nil {
		host = u.Hostname()
	}

	report, err := audit.Run(audit.Options{
		SiteDir:      siteDir,
		PublicPrefix: appCfg.Images.PublicPrefix,
		ImagesDir:    appCfg.Images.Dir,
		SiteHost:     host,
		BaseURL:      appCfg.Site.BaseURL,
	}, logrus.NewEntry(log))
	if err != nil {
		log.Errorf("Audit failed: %v", err)
		return 1
	}

	fmt.Fprintf(stdout, "Pages scanned: %d\nImages seen: %d\n", report.PagesScanned, report.ImagesSeen)
	for _, f := range report.Remote() {
		fmt.Fprintf(stdout, "  REMOTE  %s: %s %s\n", f.Page, f.Attr, f.Source)
	}
	for _, f := range report.Missing() {
		fmt.Fprintf(stdout, "  MISSING %s: %s %s\n", f.Page, f.Attr, f.Source)
	}
	for _, f := range report.MissingPages() {
		fmt.Fprintf(stdout, "  NO PAGE %s\n", f.Source)
	}
	if len(report.Findings) > 0 {
		return 1
	}
	fmt.Fprintln(stdout, "All images are local.")
	return 0
}

// runPrune handles the prune subcommand
func runPrune(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	dryRun := fs.Bool("dry-run", false, "Report orphans without deleting anything")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync prune [options]

Delete image files no registry entry references, drop registry entries
whose file is gone, and report files with identical content.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, *envFile, log)
	os.Exit(doPrune(context.Background(), appCfg, *dryRun, log, os.Stdout))
}

// doPrune is the testable implementation of the prune command
func doPrune(ctx context.Context, appCfg *config.AppConfig, dryRun bool, log *logrus.Logger, stdout io.Writer) int {
	entry := logrus.NewEntry(log)
	registry, err := openRegistry(ctx, appCfg, entry)
	if err != nil {
		log.Errorf("Open registry: %v", err)
		return 1
	}
	defer registry.Close()

	report, err := images.RemoveOrphans(appCfg.Images.Dir, registry, dryRun, entry)
	if err != nil {
		log.Errorf("Prune failed: %v", err)
		return 1
	}
	if !dryRun && registry.Dirty() {
		if err := registry.Flush(ctx); err != nil {
			log.Errorf("%v", err)
			return 1
		}
	}

	if dryRun {
		fmt.Fprintf(stdout, "Orphans: %d (dry run, nothing removed)\n", len(report.Orphans))
	} else {
		fmt.Fprintf(stdout, "Orphans: %d\nRemoved: %d\n", len(report.Orphans), len(report.Removed))
	}
	for _, f := range report.Orphans {
		fmt.Fprintf(stdout, "  %s\n", f)
	}
	fmt.Fprintf(stdout, "Dropped registry entries: %d slots, %d content hashes\n", report.DroppedSlots, report.DroppedContent)

	groups, err := images.ScanDuplicateFiles(appCfg.Images.Dir)
	if err != nil {
		log.Errorf("Duplicate scan failed: %v", err)
		return 1
	}
	for _, g := range groups {
		fmt.Fprintf(stdout, "  DUPLICATE %s: %v\n", g.ContentHash[:12], g.Files)
	}
	return 0
}
