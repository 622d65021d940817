package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/images"
	"github.com/hanamal24/site-sync/pkg/metrics"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/storage"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// DatasetResult contains the result of syncing a single dataset
type DatasetResult struct {
	Dataset    string              `json:"dataset"`
	Records    int                 `json:"records"`
	Stats      models.DatasetStats `json:"stats"`
	FetchError string              `json:"fetchError,omitempty"` // Dataset was written empty
	OutputPath string              `json:"outputPath"`
	Duration   time.Duration       `json:"duration"`

	Results []models.ImageResult `json:"-"`
}

// RunResult summarizes one sync run
type RunResult struct {
	Datasets []DatasetResult     `json:"datasets"`
	Totals   models.DatasetStats `json:"totals"`
	Duration time.Duration       `json:"duration"`
}

// Orchestrator runs a full sync: fetch every dataset, resolve images, write
// the rewritten datasets and flush the image registry.
type Orchestrator struct {
	cfg      *config.AppConfig
	source   RecordSource
	registry *storage.Registry
	dedup    *images.Deduplicator
	pipeline *images.Pipeline
	log      *logrus.Entry

	runMu sync.Mutex // One run at a time per registry
}

// NewOrchestrator creates an Orchestrator from already built components
func NewOrchestrator(cfg *config.AppConfig, source RecordSource, registry *storage.Registry, dedup *images.Deduplicator, log *logrus.Entry) *Orchestrator {
	log = log.WithField("component", "orchestrator")
	return &Orchestrator{
		cfg:      cfg,
		source:   source,
		registry: registry,
		dedup:    dedup,
		pipeline: images.NewPipeline(dedup, cfg.Images.FieldAliases, cfg.Images.NumWorkers, log),
		log:      log,
	}
}

// Registry returns the image registry the orchestrator writes to
func (o *Orchestrator) Registry() *storage.Registry {
	return o.registry
}

// Run syncs the named datasets, or every configured dataset when names is
// empty. Fetch failures and per-image failures are reported in the result;
// only cancellation, output write failures and registry flush failures are
// returned as errors.
func (o *Orchestrator) Run(ctx context.Context, names []string) (*RunResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := time.Now()
	datasets, err := o.selectDatasets(names)
	if err != nil {
		return nil, err
	}
	o.log.Infof("Starting sync of %d datasets from %s: %v", len(datasets), o.source.Describe(), datasets)

	if err := o.dedup.EnsureDir(); err != nil {
		metrics.ObserveSync("failed", time.Since(start))
		return nil, err
	}

	fetched, fetchErrs := o.fetchAll(ctx, datasets)
	if err := ctx.Err(); err != nil {
		metrics.ObserveSync("cancelled", time.Since(start))
		return nil, err
	}

	result := &RunResult{Datasets: make([]DatasetResult, 0, len(datasets))}
	var runErr error
	for _, ds := range datasets {
		dsStart := time.Now()
		dr := DatasetResult{Dataset: ds, Records: len(fetched[ds])}
		if fetchErrs[ds] != nil {
			dr.FetchError = fetchErrs[ds].Error()
		}

		outcome, err := o.pipeline.ProcessDataset(ctx, ds, fetched[ds])
		if err != nil {
			runErr = err
			break
		}
		dr.Stats = outcome.Stats
		dr.Results = outcome.Results

		dr.OutputPath = filepath.Join(o.cfg.DataDir, ds+".json")
		if err := writeDataset(dr.OutputPath, outcome.Records); err != nil {
			runErr = err
			break
		}
		dr.Duration = time.Since(dsStart)
		metrics.ObserveDatasetRecords(ds, dr.Records)

		result.Totals.Add(dr.Stats)
		result.Datasets = append(result.Datasets, dr)
	}

	// Flush whatever was resolved, even after a failure above, so the files
	// already written stay referenced.
	if o.registry.Dirty() {
		flushCtx := context.WithoutCancel(ctx)
		if err := o.registry.Flush(flushCtx); err != nil {
			o.log.WithField("error_category", utils.CategorizeError(err)).Errorf("Registry flush failed: %v", err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	stats := o.registry.Stats()
	metrics.SetRegistryEntries(stats.Slots, stats.Contents)

	result.Duration = time.Since(start)
	o.logSummary(result)

	status := "success"
	if runErr != nil {
		status = "failed"
	}
	metrics.ObserveSync(status, result.Duration)
	return result, runErr
}

// fetchAll fetches every dataset concurrently. A failed dataset is logged
// and becomes empty; it never cancels the others.
func (o *Orchestrator) fetchAll(ctx context.Context, datasets []string) (map[string][]models.Record, map[string]error) {
	records := make(map[string][]models.Record, len(datasets))
	errs := make(map[string]error)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(4)
	for _, ds := range datasets {
		g.Go(func() error {
			recs, err := o.source.FetchDataset(ctx, ds)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.log.WithFields(logrus.Fields{
					"dataset":        ds,
					"error_category": utils.CategorizeError(err),
				}).Errorf("Failed to fetch dataset, continuing with no records: %v", err)
				errs[ds] = err
				records[ds] = []models.Record{}
				return nil
			}
			o.log.WithField("dataset", ds).Infof("Fetched %d records", len(recs))
			records[ds] = recs
			return nil
		})
	}
	g.Wait()
	return records, errs
}

func (o *Orchestrator) selectDatasets(names []string) ([]string, error) {
	if len(names) == 0 {
		return o.cfg.Datasets(), nil
	}
	if err := ValidateDatasets(o.cfg, names); err != nil {
		return nil, err
	}
	// Keep pipeline order regardless of the order given
	order := make(map[string]int)
	for i, ds := range o.cfg.Datasets() {
		order[ds] = i
	}
	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out, nil
}

// writeDataset writes records as indented JSON, replacing path atomically
func writeDataset(path string, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: JSON %s: %w", utils.ErrParsing, path, err)
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

// logSummary logs a summary of the run
func (o *Orchestrator) logSummary(r *RunResult) {
	o.log.Info("============================================")
	o.log.Infof("Sync completed in %v", r.Duration)
	o.log.Info("Dataset Results:")

	fetchFailed := 0
	for _, d := range r.Datasets {
		status := "OK"
		if d.FetchError != "" {
			status = "FETCH FAILED"
			fetchFailed++
		}
		o.log.Infof("  %s: %s - %d records, %d new, %d reused, %d failed images",
			d.Dataset, status, d.Records, d.Stats.Downloaded, d.Stats.Reused, d.Stats.Failed)
		if d.FetchError != "" {
			o.log.Infof("    Error: %s", d.FetchError)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d datasets (%d fetch failures), %d images: %d new, %d reused, %d failed",
		len(r.Datasets), fetchFailed, r.Totals.Total(), r.Totals.Downloaded, r.Totals.Reused, r.Totals.Failed)
	o.log.Info("============================================")
}

// ValidateDatasets checks that all provided dataset names are configured
func ValidateDatasets(appCfg *config.AppConfig, names []string) error {
	for _, name := range names {
		if _, ok := appCfg.TableFor(name); !ok {
			return fmt.Errorf("%w: dataset '%s' not found. Available datasets: %v", utils.ErrConfigValidation, name, appCfg.Datasets())
		}
	}
	return nil
}
