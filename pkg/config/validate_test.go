package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hanamal24/site-sync/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Check defaults applied
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "./dist", cfg.OutputDir)
	assert.Equal(t, filepath.Join("data", "state"), filepath.Clean(cfg.StateDir))
	assert.Equal(t, "https://api.airtable.com/v0", cfg.Airtable.APIURL)
	assert.Equal(t, 100, cfg.Airtable.PageSize)
	assert.Equal(t, 5, cfg.Airtable.RequestsPerSecond)
	assert.Equal(t, "Leads", cfg.Airtable.LeadsTable)

	assert.Equal(t, filepath.Join("public", "images"), cfg.Images.Dir)
	assert.Equal(t, "/images", cfg.Images.PublicPrefix)
	assert.Equal(t, DefaultFieldAliases, cfg.Images.FieldAliases)
	assert.Equal(t, 5, cfg.Images.MaxRedirects)
	assert.Equal(t, 10*time.Second, cfg.Images.RequestTimeout)
	assert.Equal(t, 4, cfg.Images.NumWorkers)
	assert.Equal(t, 4, cfg.Images.MaxRequestsPerHost)
	assert.Equal(t, 2, cfg.Images.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Images.InitialRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Images.MaxRetryDelay)

	assert.Equal(t, RegistryBackendFile, cfg.Registry.Backend)
	assert.Equal(t, filepath.Join("data", "image-registry.json"), filepath.Clean(cfg.Registry.Path))

	assert.Equal(t, ":8080", cfg.Leads.ListenAddr)
	assert.Equal(t, "*", cfg.Leads.AllowedOrigin)

	// Check HTTP client defaults
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 4, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 5, cfg.HTTPClientSettings.MaxRedirects)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "data_dir is empty"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "images.num_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "only offline sync is possible"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		DataDir:   "/data",
		OutputDir: "/dist",
		Airtable: AirtableConfig{
			BaseID:   "appX",
			Token:    "patX",
			PageSize: 50,
		},
		Images: ImagesConfig{
			Dir:               "/public/images",
			PublicPrefix:      "/img/",
			NumWorkers:        8,
			MaxRetries:        3,
			InitialRetryDelay: time.Second,
			MaxRetryDelay:     10 * time.Second,
		},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 50, cfg.Airtable.PageSize)
	assert.Equal(t, "/img", cfg.Images.PublicPrefix)
	assert.Equal(t, 8, cfg.Images.NumWorkers)
	assert.Equal(t, 3, cfg.Images.MaxRetries)
	assert.Equal(t, "/data/image-registry.json", cfg.Registry.Path)
	assert.Equal(t, "/data/leads.jsonl", cfg.Leads.FallbackPath)
}

func TestAppConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{
			name: "unknown registry backend",
			cfg:  AppConfig{Registry: RegistryConfig{Backend: "redis"}},
		},
		{
			name: "relative public prefix",
			cfg:  AppConfig{Images: ImagesConfig{PublicPrefix: "images"}},
		},
		{
			name: "empty table name",
			cfg:  AppConfig{Airtable: AirtableConfig{Tables: map[string]string{"events": " "}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
		})
	}
}

func TestAppConfig_Validate_Retries(t *testing.T) {
	t.Run("retries disabled explicitly", func(t *testing.T) {
		cfg := AppConfig{Images: ImagesConfig{MaxRetries: 0, InitialRetryDelay: time.Millisecond}}
		_, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Images.MaxRetries)
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := AppConfig{Images: ImagesConfig{MaxRetries: -1, InitialRetryDelay: time.Millisecond}}
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Images.MaxRetries)
		assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
	})

	t.Run("initial delay clamped to max", func(t *testing.T) {
		cfg := AppConfig{Images: ImagesConfig{
			MaxRetries:        2,
			InitialRetryDelay: 10 * time.Second,
			MaxRetryDelay:     time.Second,
		}}
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Images.InitialRetryDelay)
		assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	})
}

func TestAppConfig_Validate_BadgerBackend(t *testing.T) {
	cfg := AppConfig{DataDir: "/data", Registry: RegistryConfig{Backend: RegistryBackendBadger}}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "/data/registry-db", cfg.Registry.BadgerDir)
}

func TestAppConfig_Validate_FieldAliasSuffix(t *testing.T) {
	tests := []struct {
		alias string
		warn  bool
	}{
		{"Photo-1", true},
		{"תמונה-12", true},
		{"Photo", false},
		{"Photo 2", false},
		{"Photo-1a", false},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			cfg := AppConfig{Images: ImagesConfig{FieldAliases: []string{"Image", tt.alias}}}
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.Equal(t, tt.warn, containsWarning(warnings, "ends in -<digits>"))
		})
	}

	// The defaults never trigger it
	cfg := AppConfig{}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.False(t, containsWarning(warnings, "ends in -<digits>"))
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	cfg := AppConfig{
		GlobalSyncTimeout: -time.Second,
		Images: ImagesConfig{
			MaxImageSizeBytes: -1,
			MaxRedirects:      -2,
		},
		Airtable: AirtableConfig{PageSize: 500},
	}
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.GlobalSyncTimeout)
	assert.Equal(t, int64(0), cfg.Images.MaxImageSizeBytes)
	assert.Equal(t, 5, cfg.Images.MaxRedirects)
	assert.Equal(t, 100, cfg.Airtable.PageSize)
	assert.True(t, containsWarning(warnings, "global_sync_timeout cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_image_size_bytes cannot be negative"))
	assert.True(t, containsWarning(warnings, "page_size 500 out of range"))
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
