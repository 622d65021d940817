package render

import (
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// Event is a published event page
type Event struct {
	ID          string
	Slug        string
	Title       string
	Description template.HTML
	Summary     string // Plain text for meta description
	Start       string // RFC 3339, empty if unknown
	End         string
	Image       string
	Menus       []*Menu
	Packages    []*Package
}

// Menu groups dishes under one title
type Menu struct {
	ID          string
	Slug        string
	Title       string
	Description template.HTML
	Summary     string
	Image       string
	Dishes      []*Dish
}

// Dish is one menu item
type Dish struct {
	ID    string
	Title string
	Price string
	Image string
}

// Package is an event package with a price
type Package struct {
	ID          string
	Slug        string
	Title       string
	Price       string
	Description template.HTML
	Summary     string
	Image       string
}

// GalleryItem is one image on the gallery page
type GalleryItem struct {
	Title string
	Image string
}

// About is the home page "about us" block
type About struct {
	Title       string
	Description template.HTML
	Extra       template.HTML
	Image       string
}

// Content is every dataset normalized for rendering
type Content struct {
	Events   []*Event
	Menus    []*Menu
	Packages []*Package
	Gallery  []GalleryItem
	Hero     []string // Image paths
	About    *About
}

// str returns the first non-empty string value among keys
func str(rec models.Record, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// number returns the first numeric value among keys. Numeric strings count.
func number(rec models.Record, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// ids returns the linked record ids stored in key
func ids(rec models.Record, key string) []string {
	list, _ := rec[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// firstImage returns the first image URL found under the given fields
func firstImage(rec models.Record, fields []string) string {
	for _, f := range fields {
		if u := imageURL(rec[f]); u != "" {
			return u
		}
	}
	return ""
}

func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		s, _ := t["url"].(string)
		return strings.TrimSpace(s)
	case []any:
		for _, e := range t {
			if u := imageURL(e); u != "" {
				return u
			}
		}
	}
	return ""
}

// allImages returns every image URL under the given fields, in order
func allImages(rec models.Record, fields []string) []string {
	var out []string
	for _, f := range fields {
		switch t := rec[f].(type) {
		case []any:
			for _, e := range t {
				if u := imageURL(e); u != "" {
					out = append(out, u)
				}
			}
		default:
			if u := imageURL(t); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

// isoDate parses the date formats the records API emits
func isoDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

// eventVisible reports whether an event with this status is published
func eventVisible(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return true
	}
	for _, prefix := range []string{"publish", "active", "live", "scheduled"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// slugger hands out unique slugs within one section
type slugger map[string]int

func (s slugger) slug(rec models.Record, title string) string {
	base := str(rec, "slug", "Slug")
	if base == "" {
		base = utils.Slugify(title)
	}
	if base == "" {
		base = strings.ToLower(rec.ID())
	}
	s[base]++
	if n := s[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// sortEvents orders events by start date, undated ones last
func sortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Start, events[j].Start
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
}
