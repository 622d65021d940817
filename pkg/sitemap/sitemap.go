package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// Namespace is the sitemap protocol namespace written on <urlset>
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URL represents a <url> element in a sitemap
type URL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URLSet represents a <urlset> element in a sitemap
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	URLs    []URL    `xml:"url"`
}

// IndexEntry represents a <sitemap> element in a sitemap index file
type IndexEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Index represents a <sitemapindex> element
type Index struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []IndexEntry `xml:"sitemap"`
}

// Encode builds a sitemap document for locs. Locations that normalize to the
// same URL are written once, first occurrence wins.
func Encode(locs []string) ([]byte, error) {
	set := URLSet{Xmlns: Namespace}
	seen := make(map[string]bool, len(locs))
	for _, loc := range locs {
		key := loc
		if u, err := url.Parse(loc); err == nil {
			key = NormalizeURL(u)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		set.URLs = append(set.URLs, URL{Loc: loc})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: sitemap XML: %w", utils.ErrParsing, err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Write encodes locs and replaces the file at p atomically
func Write(p string, locs []string) (int, error) {
	data, err := Encode(locs)
	if err != nil {
		return 0, err
	}
	if err := utils.WriteFileAtomic(p, data, 0o644); err != nil {
		return 0, err
	}
	return bytes.Count(data, []byte("<loc>")), nil
}

// Decode parses a <urlset> document and returns its locations.
// A sitemap index is rejected: the site writes a single flat sitemap.
func Decode(data []byte) ([]string, error) {
	var index Index
	if err := xml.Unmarshal(data, &index); err == nil && len(index.Sitemaps) > 0 {
		return nil, fmt.Errorf("%w: sitemap index with %d entries, expected a url set", utils.ErrParsing, len(index.Sitemaps))
	}

	var set URLSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: sitemap XML: %w", utils.ErrParsing, err)
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// Read decodes the sitemap at p. A missing file returns os.ErrNotExist.
func Read(p string) ([]string, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", utils.ErrFilesystem, p, err)
	}
	return Decode(data)
}

// PagePath maps a sitemap location under baseURL to the file that serves it,
// relative to the site root: "/" is index.html, "/events/" and "/events" are
// events/index.html. ok is false for locations outside baseURL.
func PagePath(loc, baseURL string) (rel string, ok bool) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	if u.IsAbs() && !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}

	basePath := strings.TrimSuffix(base.Path, "/")
	p := u.Path
	if !strings.HasPrefix(p, basePath+"/") && p != basePath {
		return "", false
	}
	p = strings.Trim(strings.TrimPrefix(p, basePath), "/")
	if p == "" {
		return "index.html", true
	}
	if path.Ext(p) != "" {
		return p, true
	}
	return p + "/index.html", true
}

// NormalizeURL standardizes a URL for comparison. It lowercases the scheme
// and host, removes default ports and trailing slashes (except the root),
// turns an empty path into "/", and drops the fragment and query.
// The input is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""
	return normalized.String()
}
