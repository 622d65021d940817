// Package render builds the static site from the synced datasets.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	xnumber "golang.org/x/text/number"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/sitemap"
	"github.com/hanamal24/site-sync/pkg/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

var currencySymbols = map[string]string{
	"ILS": "₪",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Options configures a Renderer
type Options struct {
	DataDir     string   // Where <dataset>.json files are read from
	OutputDir   string   // Site root to write
	PublicDir   string   // Copied verbatim into OutputDir; may be empty
	ImageFields []string // Record fields holding images
	Clean       bool     // Remove OutputDir before building
}

// Report lists what a build wrote
type Report struct {
	Pages       []string `json:"pages"` // Paths relative to the output dir
	SitemapURLs int      `json:"sitemapUrls"`
	CopiedFiles int      `json:"copiedFiles"`
}

// Renderer renders the site's HTML pages, sitemap and robots.txt
type Renderer struct {
	site        config.SiteConfig
	opts        Options
	imageFields []string
	pages       map[string]*template.Template
	md          goldmark.Markdown
	policy      *bluemonday.Policy
	printer     *message.Printer
	now         func() time.Time
	log         *logrus.Entry
}

// pageData is what every page template receives
type pageData struct {
	Site        config.SiteConfig
	Title       string
	Description string
	Canonical   string
	Image       string
	JSONLD      any
	Year        int
	Content     *Content
	Event       *Event
	Menu        *Menu
	Package     *Package
}

// New parses the embedded templates and returns a Renderer
func New(site config.SiteConfig, opts Options, log *logrus.Entry) (*Renderer, error) {
	r := &Renderer{
		site:        site,
		opts:        opts,
		imageFields: append(append([]string(nil), opts.ImageFields...), "Images", "Photos"),
		pages:       make(map[string]*template.Template),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy:  bluemonday.UGCPolicy(),
		printer: message.NewPrinter(language.Hebrew),
		now:     time.Now,
		log:     log.WithField("component", "render"),
	}
	r.site.BaseURL = strings.TrimSuffix(r.site.BaseURL, "/")

	funcs := template.FuncMap{
		"date": func(iso string) string {
			if len(iso) >= 10 {
				return iso[:10]
			}
			return iso
		},
	}
	for _, page := range []string{"index", "events", "event", "menus", "menu", "packages", "package", "gallery"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("%w: HTML template %s: %w", utils.ErrParsing, page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Build reads every dataset from the data dir and writes the site
func (r *Renderer) Build(ctx context.Context) (*Report, error) {
	start := r.now()
	if r.opts.Clean {
		if err := os.RemoveAll(r.opts.OutputDir); err != nil {
			return nil, fmt.Errorf("%w: clean %s: %w", utils.ErrFilesystem, r.opts.OutputDir, err)
		}
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", utils.ErrFilesystem, r.opts.OutputDir, err)
	}

	report := &Report{}
	if r.opts.PublicDir != "" {
		n, err := copyTree(r.opts.PublicDir, r.opts.OutputDir)
		if err != nil {
			return nil, err
		}
		report.CopiedFiles = n
	}

	data, err := r.loadData()
	if err != nil {
		return nil, err
	}
	content := r.normalize(data)

	var urls []string
	emit := func(page, rel string, pd pageData) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.writePage(page, rel, pd); err != nil {
			return err
		}
		report.Pages = append(report.Pages, rel)
		urls = append(urls, r.site.BaseURL+"/"+strings.TrimSuffix(rel, "index.html"))
		return nil
	}

	if err := emit("index", "index.html", r.page(r.site.Name, r.site.Name+" – אירועים וחוויות קולינריות", "/", firstOf(content.Hero), r.restaurantLD(), content)); err != nil {
		return nil, err
	}
	if err := emit("events", "events/index.html", r.page("אירועים", "האירועים שלנו", "/events/", "", nil, content)); err != nil {
		return nil, err
	}
	for _, e := range content.Events {
		pd := r.page(e.Title, orDefault(e.Summary, r.site.Name+" אירוע"), "/events/"+e.Slug+"/", e.Image, r.eventLD(e), content)
		pd.Event = e
		if err := emit("event", "events/"+e.Slug+"/index.html", pd); err != nil {
			return nil, err
		}
	}
	if err := emit("menus", "menus/index.html", r.page("תפריטים", "תפריטים עונתיים וחבילות", "/menus/", "", nil, content)); err != nil {
		return nil, err
	}
	for _, m := range content.Menus {
		pd := r.page(m.Title, orDefault(m.Summary, "תפריט"), "/menus/"+m.Slug+"/", m.Image, nil, content)
		pd.Menu = m
		if err := emit("menu", "menus/"+m.Slug+"/index.html", pd); err != nil {
			return nil, err
		}
	}
	if err := emit("packages", "packages/index.html", r.page("חבילות", "חבילות לאירועים", "/packages/", "", nil, content)); err != nil {
		return nil, err
	}
	for _, p := range content.Packages {
		pd := r.page(p.Title, orDefault(p.Summary, "חבילת אירוע"), "/packages/"+p.Slug+"/", p.Image, nil, content)
		pd.Package = p
		if err := emit("package", "packages/"+p.Slug+"/index.html", pd); err != nil {
			return nil, err
		}
	}
	if err := emit("gallery", "gallery/index.html", r.page("גלריה", "גלריית תמונות", "/gallery/", "", nil, content)); err != nil {
		return nil, err
	}

	n, err := r.writeSitemap(urls)
	if err != nil {
		return nil, err
	}
	report.SitemapURLs = n
	robots := fmt.Sprintf("User-agent: *\nAllow: /\nSitemap: %s/sitemap.xml\n", r.site.BaseURL)
	if err := utils.WriteFileAtomic(filepath.Join(r.opts.OutputDir, "robots.txt"), []byte(robots), 0o644); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"pages":    len(report.Pages),
		"events":   len(content.Events),
		"menus":    len(content.Menus),
		"packages": len(content.Packages),
		"copied":   report.CopiedFiles,
		"duration": time.Since(start),
	}).Info("Site built")
	return report, nil
}

func (r *Renderer) page(title, description, rel, image string, ld any, content *Content) pageData {
	return pageData{
		Site:        r.site,
		Title:       title,
		Description: description,
		Canonical:   r.site.BaseURL + rel,
		Image:       r.absolute(image),
		JSONLD:      ld,
		Year:        r.now().Year(),
		Content:     content,
	}
}

// absolute turns a site-relative image path into an absolute URL
func (r *Renderer) absolute(image string) string {
	if image == "" || !strings.HasPrefix(image, "/") {
		return image
	}
	return r.site.BaseURL + image
}

func (r *Renderer) restaurantLD() map[string]any {
	return map[string]any{
		"@context":      "https://schema.org",
		"@type":         "Restaurant",
		"name":          r.site.Name,
		"url":           r.site.BaseURL,
		"servesCuisine": r.site.Cuisine,
		"address":       r.addressLD(),
	}
}

func (r *Renderer) eventLD(e *Event) map[string]any {
	ld := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "Event",
		"name":        e.Title,
		"eventStatus": "https://schema.org/EventScheduled",
		"location": map[string]any{
			"@type":   "Place",
			"name":    r.site.Name,
			"address": r.addressLD(),
		},
	}
	if e.Start != "" {
		ld["startDate"] = e.Start
		ld["endDate"] = e.End
	}
	if e.Image != "" {
		ld["image"] = []string{r.absolute(e.Image)}
	}
	return ld
}

func (r *Renderer) addressLD() map[string]any {
	return map[string]any{
		"@type":           "PostalAddress",
		"addressLocality": r.site.City,
		"addressCountry":  r.site.Country,
	}
}

// markdown renders long text fields to sanitized HTML
func (r *Renderer) markdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		r.log.Warnf("Markdown conversion failed, using escaped text: %v", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// formatPrice formats a whole-unit price with grouping and the currency symbol
func (r *Renderer) formatPrice(amount float64) string {
	code := strings.ToUpper(r.site.Currency)
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code
	}
	return r.printer.Sprintf("%v %s", xnumber.Decimal(amount, xnumber.MaxFractionDigits(0)), symbol)
}

func (r *Renderer) writePage(page, rel string, pd pageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("no template for page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", pd); err != nil {
		return fmt.Errorf("%w: HTML render %s: %w", utils.ErrParsing, rel, err)
	}
	return utils.WriteFileAtomic(filepath.Join(r.opts.OutputDir, filepath.FromSlash(rel)), buf.Bytes(), 0o644)
}

func (r *Renderer) writeSitemap(urls []string) (int, error) {
	return sitemap.Write(filepath.Join(r.opts.OutputDir, "sitemap.xml"), urls)
}

// loadData reads every dataset file present in the data dir
func (r *Renderer) loadData() (map[string][]models.Record, error) {
	data := make(map[string][]models.Record, len(models.DatasetOrder))
	for _, ds := range models.DatasetOrder {
		p := filepath.Join(r.opts.DataDir, ds+".json")
		raw, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			r.log.Debugf("No %s dataset at %s", ds, p)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", utils.ErrFilesystem, p, err)
		}
		var recs []models.Record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, fmt.Errorf("%w: JSON %s: %w", utils.ErrParsing, p, err)
		}
		data[ds] = recs
	}
	return data, nil
}

// copyTree copies regular files under src into dst, keeping the layout
func copyTree(src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == src && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(p, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("%w: copy %s: %w", utils.ErrFilesystem, src, err)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func firstOf(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

