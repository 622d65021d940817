package images

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hanamal24/site-sync/pkg/metrics"
	"github.com/hanamal24/site-sync/pkg/models"
)

// DatasetOutcome is the result of running one dataset through the pipeline
type DatasetOutcome struct {
	Dataset string
	Records []models.Record // Rewritten copies, in input order
	Stats   models.DatasetStats
	Results []models.ImageResult
}

// Pipeline extracts, resolves and rewrites the images of a dataset's records
type Pipeline struct {
	dedup      *Deduplicator
	aliases    []string
	numWorkers int
	log        *logrus.Entry
}

// NewPipeline creates a Pipeline. numWorkers bounds how many records are
// processed at once; images within a record are always sequential.
func NewPipeline(dedup *Deduplicator, aliases []string, numWorkers int, log *logrus.Entry) *Pipeline {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pipeline{
		dedup:      dedup,
		aliases:    aliases,
		numWorkers: numWorkers,
		log:        log.WithField("component", "pipeline"),
	}
}

// ProcessDataset resolves every image of records and returns rewritten
// copies. Per-image failures are counted, not returned; the only error is
// ctx cancellation.
func (p *Pipeline) ProcessDataset(ctx context.Context, dataset string, records []models.Record) (*DatasetOutcome, error) {
	dsLog := p.log.WithField("dataset", dataset)
	out := &DatasetOutcome{
		Dataset: dataset,
		Records: make([]models.Record, len(records)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.numWorkers)

	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rewritten, results := p.processRecord(gctx, dataset, rec)
			out.Records[i] = rewritten

			mu.Lock()
			out.Results = append(out.Results, results...)
			for _, r := range results {
				out.Stats.Record(r.Outcome)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	dsLog.WithFields(logrus.Fields{
		"records":    len(records),
		"downloaded": out.Stats.Downloaded,
		"reused":     out.Stats.Reused,
		"failed":     out.Stats.Failed,
	}).Info("Dataset images processed")
	return out, nil
}

// processRecord resolves a record's images one after another and rewrites it
func (p *Pipeline) processRecord(ctx context.Context, dataset string, rec models.Record) (models.Record, []models.ImageResult) {
	refs := ExtractReferences(rec, dataset, p.aliases)
	if len(refs) == 0 {
		return Rewrite(rec, nil), nil
	}

	results := make([]models.ImageResult, 0, len(refs))
	resolved := make(map[models.SlotKey]string, len(refs))
	for _, ref := range refs {
		start := time.Now()
		res := p.dedup.Resolve(ctx, ref)
		metrics.ObserveImage(dataset, res.Outcome.String(), res.ErrorCategory, time.Since(start))

		results = append(results, res)
		if res.Outcome != models.OutcomeFailed && res.LocalPath != "" {
			resolved[ref.Slot()] = res.LocalPath
		}
	}
	return Rewrite(rec, resolved), results
}
