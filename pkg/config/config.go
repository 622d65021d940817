package config

import (
	"time"

	"github.com/hanamal24/site-sync/pkg/models"
)

// Registry backend names
const (
	RegistryBackendFile   = "file"
	RegistryBackendBadger = "badger"
)

// DefaultFieldAliases lists the record fields probed for images, in order.
// Hebrew and English names coexist because tables were renamed over time.
var DefaultFieldAliases = []string{
	"תמונה (Image)",
	"Image",
	"תמונה",
	"Picture",
	"Photo",
	"תמונה של המנה",
	"Event Photos",
}

// DefaultTables maps dataset names to Airtable table names or IDs
var DefaultTables = map[string]string{
	models.DatasetEvents:   "Events",
	models.DatasetMenus:    "Menus",
	models.DatasetPackages: "tbl9C40JxeIkue5So",
	models.DatasetDishes:   "tblbi9b9lUjRRrAhW",
	models.DatasetAbout:    "tblvhDaSZbzlYP9bh",
	models.DatasetHero:     "tblOe7ONKtB6A9Q6L",
	models.DatasetGallery:  "tblpfVJY9nEb5JDlQ",
}

// AirtableConfig holds settings for the records API
type AirtableConfig struct {
	APIURL            string            `yaml:"api_url,omitempty"`
	BaseID            string            `yaml:"base_id,omitempty"` // Usually supplied through AIRTABLE_BASE
	Token             string            `yaml:"token,omitempty"`   // Usually supplied through AIRTABLE_TOKEN
	View              string            `yaml:"view,omitempty"`
	PageSize          int               `yaml:"page_size,omitempty"`
	RequestsPerSecond int               `yaml:"requests_per_second,omitempty"`
	Tables            map[string]string `yaml:"tables,omitempty"`
	LeadsTable        string            `yaml:"leads_table,omitempty"`
}

// ImagesConfig holds settings for the image ingestion pipeline
type ImagesConfig struct {
	Dir                string        `yaml:"dir"`
	PublicPrefix       string        `yaml:"public_prefix,omitempty"`
	FieldAliases       []string      `yaml:"field_aliases,omitempty"`
	MaxImageSizeBytes  int64         `yaml:"max_image_size_bytes,omitempty"`
	MaxRedirects       int           `yaml:"max_redirects,omitempty"`
	RequestTimeout     time.Duration `yaml:"request_timeout,omitempty"`
	NumWorkers         int           `yaml:"num_workers,omitempty"`
	MaxRequestsPerHost int           `yaml:"max_requests_per_host,omitempty"`
	MaxRetries         int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration `yaml:"max_retry_delay,omitempty"`
	UserAgent          string        `yaml:"user_agent,omitempty"`
}

// RegistryConfig selects where the image registry snapshot lives
type RegistryConfig struct {
	Backend   string `yaml:"backend,omitempty"`
	Path      string `yaml:"path,omitempty"`       // JSON document (file backend)
	BadgerDir string `yaml:"badger_dir,omitempty"` // Database directory (badger backend)
}

// SiteConfig holds values rendered into every page
type SiteConfig struct {
	Name     string `yaml:"name,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	City     string `yaml:"city,omitempty"`
	Country  string `yaml:"country,omitempty"`
	Cuisine  string `yaml:"cuisine,omitempty"`
	Currency string `yaml:"currency,omitempty"`
}

// LeadsConfig holds settings for the contact-form endpoint
type LeadsConfig struct {
	ListenAddr    string `yaml:"listen_addr,omitempty"`
	FallbackPath  string `yaml:"fallback_path,omitempty"`
	AllowedOrigin string `yaml:"allowed_origin,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DataDir            string           `yaml:"data_dir"`
	OutputDir          string           `yaml:"output_dir"`
	PublicDir          string           `yaml:"public_dir,omitempty"`
	StateDir           string           `yaml:"state_dir,omitempty"`
	GlobalSyncTimeout  time.Duration    `yaml:"global_sync_timeout,omitempty"`
	MetricsAddr        string           `yaml:"metrics_addr,omitempty"`
	Airtable           AirtableConfig   `yaml:"airtable"`
	Images             ImagesConfig     `yaml:"images"`
	Registry           RegistryConfig   `yaml:"registry"`
	Site               SiteConfig       `yaml:"site"`
	Leads              LeadsConfig      `yaml:"leads,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`           // Redirect hops before giving up
}

// TableFor returns the configured table for a dataset, falling back to the defaults
func (c *AppConfig) TableFor(dataset string) (string, bool) {
	if t, ok := c.Airtable.Tables[dataset]; ok && t != "" {
		return t, true
	}
	t, ok := DefaultTables[dataset]
	return t, ok
}

// Datasets returns the configured dataset names in pipeline order, followed
// by any extra datasets defined only in config (sorted by the caller if needed)
func (c *AppConfig) Datasets() []string {
	seen := make(map[string]bool, len(models.DatasetOrder))
	out := make([]string, 0, len(models.DatasetOrder))
	for _, ds := range models.DatasetOrder {
		if _, ok := c.TableFor(ds); ok {
			out = append(out, ds)
			seen[ds] = true
		}
	}
	for ds := range c.Airtable.Tables {
		if !seen[ds] {
			out = append(out, ds)
		}
	}
	return out
}

// ImageClientSettings returns the HTTP client settings used for image downloads:
// the shared settings with the image request timeout and redirect cap applied
func (c *AppConfig) ImageClientSettings() HTTPClientConfig {
	s := c.HTTPClientSettings
	s.Timeout = c.Images.RequestTimeout
	s.MaxRedirects = c.Images.MaxRedirects
	return s
}
