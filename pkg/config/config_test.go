package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hanamal24/site-sync/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTableFor(t *testing.T) {
	tests := []struct {
		name      string
		tables    map[string]string
		dataset   string
		wantTable string
		wantOK    bool
	}{
		{
			name:      "default table",
			dataset:   models.DatasetEvents,
			wantTable: "Events",
			wantOK:    true,
		},
		{
			name:      "configured table overrides default",
			tables:    map[string]string{models.DatasetEvents: "tblCustom"},
			dataset:   models.DatasetEvents,
			wantTable: "tblCustom",
			wantOK:    true,
		},
		{
			name:      "extra dataset from config",
			tables:    map[string]string{"specials": "Specials"},
			dataset:   "specials",
			wantTable: "Specials",
			wantOK:    true,
		},
		{
			name:    "unknown dataset",
			dataset: "nope",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Airtable: AirtableConfig{Tables: tt.tables}}
			table, ok := cfg.TableFor(tt.dataset)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTable, table)
		})
	}
}

func TestDatasets_Order(t *testing.T) {
	cfg := AppConfig{Airtable: AirtableConfig{Tables: map[string]string{"specials": "Specials"}}}
	got := cfg.Datasets()

	require.Len(t, got, len(models.DatasetOrder)+1)
	assert.Equal(t, models.DatasetOrder, got[:len(models.DatasetOrder)])
	assert.Equal(t, "specials", got[len(got)-1])
}

func TestImageClientSettings(t *testing.T) {
	cfg := AppConfig{
		Images:             ImagesConfig{RequestTimeout: 10 * time.Second, MaxRedirects: 3},
		HTTPClientSettings: HTTPClientConfig{Timeout: time.Minute, MaxIdleConns: 7},
	}
	s := cfg.ImageClientSettings()

	assert.Equal(t, 10*time.Second, s.Timeout)
	assert.Equal(t, 3, s.MaxRedirects)
	assert.Equal(t, 7, s.MaxIdleConns)
	// Original is untouched
	assert.Equal(t, time.Minute, cfg.HTTPClientSettings.Timeout)
}

func TestAppConfig_YAMLRoundTrip(t *testing.T) {
	raw := `
data_dir: ./content
output_dir: ./site
airtable:
  base_id: appXYZ
  tables:
    events: tblEvents
images:
  dir: public/images
  request_timeout: 7s
  field_aliases: ["Image", "תמונה"]
registry:
  backend: badger
site:
  name: Hanamal 24
`
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "./content", cfg.DataDir)
	assert.Equal(t, "appXYZ", cfg.Airtable.BaseID)
	assert.Equal(t, "tblEvents", cfg.Airtable.Tables["events"])
	assert.Equal(t, 7*time.Second, cfg.Images.RequestTimeout)
	assert.Equal(t, []string{"Image", "תמונה"}, cfg.Images.FieldAliases)
	assert.Equal(t, RegistryBackendBadger, cfg.Registry.Backend)
	assert.Equal(t, "Hanamal 24", cfg.Site.Name)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAirtableToken, "patSECRET")
	t.Setenv(EnvAirtableBase, "appENV")
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvSiteName, "  ")

	cfg := AppConfig{Site: SiteConfig{BaseURL: "https://example.com", Name: "Keep"}}
	applied := cfg.ApplyEnv()

	assert.ElementsMatch(t, []string{EnvAirtableToken, EnvAirtableBase}, applied)
	assert.Equal(t, "patSECRET", cfg.Airtable.Token)
	assert.Equal(t, "appENV", cfg.Airtable.BaseID)
	assert.Equal(t, "https://example.com", cfg.Site.BaseURL)
	assert.Equal(t, "Keep", cfg.Site.Name)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITE_SYNC_TEST_VAR=from-file\n"), 0o644))

	t.Setenv("SITE_SYNC_TEST_VAR", "")
	os.Unsetenv("SITE_SYNC_TEST_VAR")

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("SITE_SYNC_TEST_VAR"))
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITE_SYNC_TEST_KEEP=from-file\n"), 0o644))

	t.Setenv("SITE_SYNC_TEST_KEEP", "from-process")
	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "from-process", os.Getenv("SITE_SYNC_TEST_KEEP"))
}
