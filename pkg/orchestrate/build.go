package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/airtable"
	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/fetch"
	"github.com/hanamal24/site-sync/pkg/images"
	"github.com/hanamal24/site-sync/pkg/storage"
)

// Components is everything a sync needs, wired from one AppConfig
type Components struct {
	Orchestrator *Orchestrator
	Registry     *storage.Registry
	Airtable     *airtable.Client
	HostLimiter  *fetch.HostLimiter
}

// RetryPolicy returns the image retry policy configured in cfg
func RetryPolicy(cfg *config.AppConfig) fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxRetries:   cfg.Images.MaxRetries,
		InitialDelay: cfg.Images.InitialRetryDelay,
		MaxDelay:     cfg.Images.MaxRetryDelay,
	}
}

// Build opens the registry and wires the HTTP clients, downloader,
// deduplicator and record source. offline selects the DirSource. The caller
// must call Close.
func Build(ctx context.Context, cfg *config.AppConfig, offline bool, log *logrus.Entry) (*Components, error) {
	backend, err := storage.OpenBackend(cfg.Registry, log)
	if err != nil {
		return nil, fmt.Errorf("open image registry: %w", err)
	}
	registry := storage.NewRegistry(backend, log)
	if err := registry.Load(ctx); err != nil {
		registry.Close()
		return nil, fmt.Errorf("load image registry: %w", err)
	}

	apiClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	at := airtable.NewClient(cfg.Airtable, apiClient, RetryPolicy(cfg), log)

	imageClient := fetch.NewClient(cfg.ImageClientSettings(), log)
	limiter := fetch.NewHostLimiter(cfg.Images.MaxRequestsPerHost, cfg.Images.RequestTimeout, log)
	downloader := fetch.NewDownloader(imageClient, limiter, fetch.DownloaderOptions{
		MaxBytes:       cfg.Images.MaxImageSizeBytes,
		RequestTimeout: cfg.Images.RequestTimeout,
		UserAgent:      cfg.Images.UserAgent,
	}, log)
	dedup := images.NewDeduplicator(registry, downloader, images.Options{
		ImagesDir:    cfg.Images.Dir,
		PublicPrefix: cfg.Images.PublicPrefix,
		Retry:        RetryPolicy(cfg),
	}, log)

	var source RecordSource
	if offline || !at.Configured() {
		if !offline {
			log.Warn("Airtable credentials missing, re-processing existing data files")
		}
		source = NewDirSource(cfg.DataDir)
	} else {
		source = NewAirtableSource(at, cfg)
	}

	return &Components{
		Orchestrator: NewOrchestrator(cfg, source, registry, dedup, log),
		Registry:     registry,
		Airtable:     at,
		HostLimiter:  limiter,
	}, nil
}

// StartEviction prunes idle per-host limiter entries until ctx ends.
// Only long-running commands need it.
func (c *Components) StartEviction(ctx context.Context) {
	go c.HostLimiter.RunEviction(ctx, 5*time.Minute)
}

// Close releases the registry backend
func (c *Components) Close() error {
	return c.Registry.Close()
}
