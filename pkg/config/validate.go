package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hanamal24/site-sync/pkg/utils"
)

var numericSuffix = regexp.MustCompile(`-\d+$`)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// DataDir
	if c.DataDir == "" {
		warnings = append(warnings, "data_dir is empty, defaulting to './data'")
		c.DataDir = "./data"
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './dist'")
		c.OutputDir = "./dist"
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.DataDir, "state")
	}

	// GlobalSyncTimeout
	if c.GlobalSyncTimeout < 0 {
		warnings = append(warnings, "global_sync_timeout cannot be negative, disabling timeout")
		c.GlobalSyncTimeout = 0
	}

	aw, err := c.validateAirtable()
	if err != nil {
		return warnings, err
	}
	warnings = append(warnings, aw...)

	iw, err := c.validateImages()
	if err != nil {
		return warnings, err
	}
	warnings = append(warnings, iw...)

	if err := c.validateRegistry(); err != nil {
		return warnings, err
	}

	c.validateSite()
	c.validateLeads()

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

func (c *AppConfig) validateAirtable() (warnings []string, err error) {
	a := &c.Airtable
	if a.APIURL == "" {
		a.APIURL = "https://api.airtable.com/v0"
	}
	a.APIURL = strings.TrimRight(a.APIURL, "/")
	if a.PageSize <= 0 || a.PageSize > 100 {
		if a.PageSize != 0 {
			warnings = append(warnings, fmt.Sprintf("airtable.page_size %d out of range 1..100, defaulting to 100", a.PageSize))
		}
		a.PageSize = 100
	}
	if a.RequestsPerSecond <= 0 {
		a.RequestsPerSecond = 5
	}
	if a.LeadsTable == "" {
		a.LeadsTable = "Leads"
	}
	for ds, table := range a.Tables {
		if strings.TrimSpace(table) == "" {
			return warnings, fmt.Errorf("%w: airtable.tables[%s] is empty", utils.ErrConfigValidation, ds)
		}
	}
	if a.Token == "" || a.BaseID == "" {
		warnings = append(warnings, "airtable token or base_id missing, only offline sync is possible")
	}
	return warnings, nil
}

func (c *AppConfig) validateImages() (warnings []string, err error) {
	im := &c.Images
	if im.Dir == "" {
		im.Dir = filepath.Join("public", "images")
	}
	if im.PublicPrefix == "" {
		im.PublicPrefix = "/images"
	}
	if !strings.HasPrefix(im.PublicPrefix, "/") {
		return warnings, fmt.Errorf("%w: images.public_prefix %q must start with '/'", utils.ErrConfigValidation, im.PublicPrefix)
	}
	im.PublicPrefix = strings.TrimRight(im.PublicPrefix, "/")
	if im.PublicPrefix == "" {
		im.PublicPrefix = "/"
	}

	if len(im.FieldAliases) == 0 {
		im.FieldAliases = append([]string(nil), DefaultFieldAliases...)
	}
	// Filenames are seeded with "<record>-<field>-<index>", so "Photo-1" at
	// index 0 hashes the same as "Photo" at index 1.
	for _, alias := range im.FieldAliases {
		if numericSuffix.MatchString(alias) {
			warnings = append(warnings, fmt.Sprintf("images.field_aliases entry %q ends in -<digits> and may share image filenames with another field", alias))
		}
	}

	// MaxImageSizeBytes
	if im.MaxImageSizeBytes < 0 {
		warnings = append(warnings, "images.max_image_size_bytes cannot be negative, setting to 0 (unlimited)")
		im.MaxImageSizeBytes = 0
	}

	// MaxRedirects
	if im.MaxRedirects < 0 {
		warnings = append(warnings, "images.max_redirects cannot be negative, defaulting to 5")
		im.MaxRedirects = 5
	}
	if im.MaxRedirects == 0 {
		im.MaxRedirects = 5
	}

	// RequestTimeout
	if im.RequestTimeout <= 0 {
		im.RequestTimeout = 10 * time.Second
	}

	// NumWorkers
	if im.NumWorkers <= 0 {
		warnings = append(warnings, "images.num_workers should be > 0, defaulting to 4")
		im.NumWorkers = 4
	}

	// MaxRequestsPerHost
	if im.MaxRequestsPerHost <= 0 {
		im.MaxRequestsPerHost = 4
	}

	// MaxRetries
	if im.MaxRetries < 0 {
		warnings = append(warnings, "images.max_retries cannot be negative, setting to 0")
		im.MaxRetries = 0
	}
	if im.MaxRetries == 0 && im.InitialRetryDelay == 0 {
		im.MaxRetries = 2
	}

	// Retry delays (only if retries enabled)
	if im.MaxRetries > 0 {
		if im.InitialRetryDelay <= 0 {
			im.InitialRetryDelay = 500 * time.Millisecond
		}
		if im.MaxRetryDelay <= 0 {
			im.MaxRetryDelay = 5 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if im.InitialRetryDelay > im.MaxRetryDelay && im.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"images.initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			im.InitialRetryDelay, im.MaxRetryDelay))
		im.InitialRetryDelay = im.MaxRetryDelay
	}

	if im.UserAgent == "" {
		im.UserAgent = "site-sync/1.0"
	}
	return warnings, nil
}

func (c *AppConfig) validateRegistry() error {
	r := &c.Registry
	if r.Backend == "" {
		r.Backend = RegistryBackendFile
	}
	switch r.Backend {
	case RegistryBackendFile:
		if r.Path == "" {
			r.Path = filepath.Join(c.DataDir, "image-registry.json")
		}
	case RegistryBackendBadger:
		if r.BadgerDir == "" {
			r.BadgerDir = filepath.Join(c.DataDir, "registry-db")
		}
	default:
		return fmt.Errorf("%w: unknown registry.backend %q (want %q or %q)",
			utils.ErrConfigValidation, r.Backend, RegistryBackendFile, RegistryBackendBadger)
	}
	return nil
}

func (c *AppConfig) validateSite() {
	s := &c.Site
	if s.Name == "" {
		s.Name = "Restaurant"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.Currency == "" {
		s.Currency = "ILS"
	}
	if s.Country == "" {
		s.Country = "IL"
	}
}

func (c *AppConfig) validateLeads() {
	l := &c.Leads
	if l.ListenAddr == "" {
		l.ListenAddr = ":8080"
	}
	if l.FallbackPath == "" {
		l.FallbackPath = filepath.Join(c.DataDir, "leads.jsonl")
	}
	if l.AllowedOrigin == "" {
		l.AllowedOrigin = "*"
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 5
	}
}
