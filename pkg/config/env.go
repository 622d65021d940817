package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file
const (
	EnvAirtableToken = "AIRTABLE_TOKEN"
	EnvAirtableBase  = "AIRTABLE_BASE"
	EnvBaseURL       = "BASE_URL"
	EnvSiteName      = "SITE_NAME"
)

// LoadEnv loads variables from the given dotenv files into the process
// environment without overriding variables that are already set.
// Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays secrets and deploy-specific values from the environment.
// Returns the names of the variables that were applied.
func (c *AppConfig) ApplyEnv() []string {
	var applied []string
	set := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
			applied = append(applied, name)
		}
	}
	set(EnvAirtableToken, &c.Airtable.Token)
	set(EnvAirtableBase, &c.Airtable.BaseID)
	set(EnvBaseURL, &c.Site.BaseURL)
	set(EnvSiteName, &c.Site.Name)
	return applied
}
