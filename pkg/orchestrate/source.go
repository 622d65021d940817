package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hanamal24/site-sync/pkg/airtable"
	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// RecordSource supplies the raw records of a dataset
type RecordSource interface {
	FetchDataset(ctx context.Context, dataset string) ([]models.Record, error)
	Describe() string
}

// AirtableSource reads datasets from their configured Airtable tables
type AirtableSource struct {
	client *airtable.Client
	cfg    *config.AppConfig
}

// NewAirtableSource creates an AirtableSource
func NewAirtableSource(client *airtable.Client, cfg *config.AppConfig) *AirtableSource {
	return &AirtableSource{client: client, cfg: cfg}
}

// FetchDataset lists every record of the dataset's table
func (s *AirtableSource) FetchDataset(ctx context.Context, dataset string) ([]models.Record, error) {
	table, ok := s.cfg.TableFor(dataset)
	if !ok {
		return nil, fmt.Errorf("%w: no table configured for dataset %q", utils.ErrConfigValidation, dataset)
	}
	return s.client.ListRecords(ctx, table)
}

func (s *AirtableSource) Describe() string { return "airtable" }

// DirSource re-reads previously written <dataset>.json snapshots, so images
// can be re-resolved without calling the records API.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource reading from dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// FetchDataset decodes dir/<dataset>.json. A missing file is an empty dataset.
func (s *DirSource) FetchDataset(ctx context.Context, dataset string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, dataset+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", utils.ErrFilesystem, path, err)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: JSON %s: %w", utils.ErrParsing, path, err)
	}
	return records, nil
}

func (s *DirSource) Describe() string { return "dir:" + s.dir }
