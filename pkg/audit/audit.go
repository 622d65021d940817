// Package audit scans rendered pages for images that still point at remote
// hosts or at local files that do not exist, and checks sitemap.xml against
// the pages on disk.
package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/sitemap"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// Finding kinds
const (
	KindRemote       = "remote"        // Image served from another host
	KindMissingLocal = "missing_local" // Local image path with no file behind it
	KindMissingPage  = "missing_page"  // Sitemap location with no page behind it
)

// Finding is one problematic image reference
type Finding struct {
	Page   string `json:"page"` // Relative to the site root
	Source string `json:"source"`
	Attr   string `json:"attr"` // img[src] or og:image
	Kind   string `json:"kind"`
}

// Report is the result of an audit
type Report struct {
	PagesScanned int       `json:"pagesScanned"`
	ImagesSeen   int       `json:"imagesSeen"`
	Findings     []Finding `json:"findings"`
}

// Remote returns the findings of kind remote
func (r *Report) Remote() []Finding { return r.filter(KindRemote) }

// Missing returns the findings of kind missing_local
func (r *Report) Missing() []Finding { return r.filter(KindMissingLocal) }

// MissingPages returns the findings of kind missing_page
func (r *Report) MissingPages() []Finding { return r.filter(KindMissingPage) }

func (r *Report) filter(kind string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Options configures an audit
type Options struct {
	SiteDir      string // Rendered site root
	PublicPrefix string // e.g. /images; local references under it must exist in ImagesDir
	ImagesDir    string
	SiteHost     string // Host of the site's base URL; absolute URLs to it count as local
	BaseURL      string // When set, sitemap.xml locations under it must map to pages
}

// Run parses every *.html file under opts.SiteDir
func Run(opts Options, log *logrus.Entry) (*Report, error) {
	log = log.WithField("component", "audit")
	prefix := strings.TrimSuffix(opts.PublicPrefix, "/") + "/"
	report := &Report{}

	err := filepath.WalkDir(opts.SiteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		rel, _ := filepath.Rel(opts.SiteDir, p)
		rel = filepath.ToSlash(rel)

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%w: HTML %s: %w", utils.ErrParsing, rel, err)
		}
		report.PagesScanned++

		check := func(src, attr string) {
			src = strings.TrimSpace(src)
			if src == "" {
				return
			}
			report.ImagesSeen++
			if kind := classify(src, prefix, opts); kind != "" {
				report.Findings = append(report.Findings, Finding{Page: rel, Source: src, Attr: attr, Kind: kind})
			}
		}
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			check(src, "img[src]")
		})
		doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
			content, _ := s.Attr("content")
			check(content, "og:image")
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: audit %s: %w", utils.ErrFilesystem, opts.SiteDir, err)
	}

	if opts.BaseURL != "" {
		if err := checkSitemap(opts, report); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		if report.Findings[i].Page != report.Findings[j].Page {
			return report.Findings[i].Page < report.Findings[j].Page
		}
		return report.Findings[i].Source < report.Findings[j].Source
	})
	log.WithFields(logrus.Fields{
		"pages":         report.PagesScanned,
		"images":        report.ImagesSeen,
		"remote":        len(report.Remote()),
		"missing":       len(report.Missing()),
		"missing_pages": len(report.MissingPages()),
	}).Info("Audit complete")
	return report, nil
}

// classify returns the finding kind for one image source, or "" when it is fine
func classify(src, prefix string, opts Options) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	p := u.Path
	if u.IsAbs() || strings.HasPrefix(src, "//") {
		if u.Scheme == "data" {
			return ""
		}
		if opts.SiteHost == "" || !strings.EqualFold(u.Hostname(), opts.SiteHost) {
			return KindRemote
		}
	}
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	name, err := url.PathUnescape(strings.TrimPrefix(p, prefix))
	if err != nil || name == "" {
		return KindMissingLocal
	}
	if !utils.FileExists(filepath.Join(opts.ImagesDir, filepath.FromSlash(name))) {
		return KindMissingLocal
	}
	return ""
}

// checkSitemap reports sitemap locations whose page file does not exist.
// A site without sitemap.xml is not an error.
func checkSitemap(opts Options, report *Report) error {
	locs, err := sitemap.Read(filepath.Join(opts.SiteDir, "sitemap.xml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, loc := range locs {
		rel, ok := sitemap.PagePath(loc, opts.BaseURL)
		if !ok || !utils.FileExists(filepath.Join(opts.SiteDir, filepath.FromSlash(rel))) {
			report.Findings = append(report.Findings, Finding{Page: "sitemap.xml", Source: loc, Attr: "loc", Kind: KindMissingPage})
		}
	}
	return nil
}
