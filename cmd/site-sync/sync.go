package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/metrics"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
	"github.com/hanamal24/site-sync/pkg/render"
	"github.com/hanamal24/site-sync/pkg/watch"
)

// syncOptions are the flags shared by sync and watch
type syncOptions struct {
	offline  bool
	render   bool
	datasets []string
}

// runSync handles the sync subcommand
func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	offline := fs.Bool("offline", false, "Re-process existing data files instead of calling Airtable")
	doRender := fs.Bool("render", false, "Render the static site after syncing")
	datasets := fs.String("datasets", "", "Comma-separated datasets to sync (default: all)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync sync [options]

Fetch every dataset, store its images locally with deduplication, write
<data_dir>/<dataset>.json and flush the image registry.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  site-sync sync -config site-sync.yaml
  site-sync sync -offline -render
  site-sync sync -datasets events,gallery
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, *envFile, log)
	logAppConfig(appCfg, log)

	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	opts := syncOptions{offline: *offline, render: *doRender, datasets: splitList(*datasets)}
	os.Exit(doSync(ctx, appCfg, opts, log, os.Stdout))
}

// doSync is the testable implementation of the sync command
func doSync(ctx context.Context, appCfg *config.AppConfig, opts syncOptions, log *logrus.Logger, stdout io.Writer) int {
	entry := logrus.NewEntry(log)
	if err := orchestrate.ValidateDatasets(appCfg, opts.datasets); err != nil {
		log.Errorf("%v", err)
		return 1
	}

	if appCfg.GlobalSyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, appCfg.GlobalSyncTimeout)
		defer cancel()
	}

	comps, err := orchestrate.Build(ctx, appCfg, opts.offline, entry)
	if err != nil {
		log.Errorf("Setup failed: %v", err)
		return 1
	}
	defer comps.Close()

	result, err := comps.Orchestrator.Run(ctx, opts.datasets)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("Sync exceeded global timeout %v: %v", appCfg.GlobalSyncTimeout, err)
		} else {
			log.Errorf("Sync failed: %v", err)
		}
		return 1
	}
	printSyncResult(stdout, result)
	log.Infof("Sync complete: %d downloaded, %d reused, %d failed in %v",
		result.Totals.Downloaded, result.Totals.Reused, result.Totals.Failed, result.Duration.Round(time.Millisecond))

	if opts.render {
		if err := renderSite(ctx, appCfg, entry); err != nil {
			log.Errorf("Render failed: %v", err)
			return 1
		}
	}
	return 0
}

// renderSite builds the static site from the data files
func renderSite(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) error {
	r, err := render.New(appCfg.Site, render.Options{
		DataDir:     appCfg.DataDir,
		OutputDir:   appCfg.OutputDir,
		PublicDir:   appCfg.PublicDir,
		ImageFields: appCfg.Images.FieldAliases,
		Clean:       true,
	}, log)
	if err != nil {
		return err
	}
	report, err := r.Build(ctx)
	if err != nil {
		return err
	}
	log.Infof("Rendered %d pages, %d sitemap URLs, %d public files into %s",
		len(report.Pages), report.SitemapURLs, report.CopiedFiles, appCfg.OutputDir)
	return nil
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile, envFile, logLevel := commonFlags(fs)
	intervalStr := fs.String("interval", "1h", "Sync interval (e.g., 30m, 1h, 24h)")
	offline := fs.Bool("offline", false, "Re-process existing data files instead of calling Airtable")
	doRender := fs.Bool("render", true, "Render the static site after every successful sync")
	datasets := fs.String("datasets", "", "Comma-separated datasets to sync (default: all)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: site-sync watch [options]

Run sync on a schedule. Run history is kept in <state_dir>/watch_state.json,
so a restart does not sync again before the interval has passed.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	interval, err := watch.ParseInterval(*intervalStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid interval: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg := loadAndValidateConfig(*configFile, *envFile, log)
	logAppConfig(appCfg, log)

	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	opts := syncOptions{offline: *offline, render: *doRender, datasets: splitList(*datasets)}
	os.Exit(doWatch(ctx, appCfg, opts, interval, log))
}

// doWatch runs the scheduler until ctx is cancelled
func doWatch(ctx context.Context, appCfg *config.AppConfig, opts syncOptions, interval time.Duration, log *logrus.Logger) int {
	entry := logrus.NewEntry(log)
	if err := orchestrate.ValidateDatasets(appCfg, opts.datasets); err != nil {
		log.Errorf("%v", err)
		return 1
	}

	comps, err := orchestrate.Build(ctx, appCfg, opts.offline, entry)
	if err != nil {
		log.Errorf("Setup failed: %v", err)
		return 1
	}
	defer comps.Close()
	comps.StartEviction(ctx)
	if appCfg.MetricsAddr != "" {
		go serveMetrics(ctx, appCfg.MetricsAddr, entry)
	}

	scheduler := watch.NewScheduler(comps.Orchestrator, opts.datasets, interval, appCfg.StateDir, entry)
	if opts.render {
		scheduler.OnAfterRun(func(ctx context.Context, _ *orchestrate.RunResult) error {
			return renderSite(ctx, appCfg, entry)
		})
	}

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Watch stopped: %v", err)
		return 1
	}
	log.Info("Watch stopped")
	return 0
}

// serveMetrics exposes /metrics on addr until ctx is cancelled
func serveMetrics(ctx context.Context, addr string, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Metrics server stopped: %v", err)
	}
}

// printSyncResult writes a per-dataset table for a run
func printSyncResult(w io.Writer, result *orchestrate.RunResult) {
	for _, ds := range result.Datasets {
		status := "OK"
		if ds.FetchError != "" {
			status = "FETCH FAILED"
		}
		fmt.Fprintf(w, "%-10s %-13s records:%-4d downloaded:%-4d reused:%-4d failed:%d\n",
			ds.Dataset, status, ds.Records, ds.Stats.Downloaded, ds.Stats.Reused, ds.Stats.Failed)
	}
}
