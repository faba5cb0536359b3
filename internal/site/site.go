// Package site defines the per-source scraping strategy interface and the
// registry the crawl engine selects adapters from.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/normalize"
)

// ErrExtraction marks a page whose expected structure is absent or changed.
var ErrExtraction = errors.New("extraction failed")

// Extractionf wraps ErrExtraction with a formatted detail message.
func Extractionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

// ListItem is one detail link discovered on a list page.
type ListItem struct {
	URL    string
	SiteID string
}

// ListPage is the parsed content of one list page.
type ListPage struct {
	Items []ListItem
	// NextURL is empty on the last page.
	NextURL string
}

// Adapter extracts structured records from one source site's HTML.
type Adapter interface {
	Site() music.Site
	// FirstListURL is where pagination starts.
	FirstListURL() string
	// ParseListPage returns the detail links of a list page and the next
	// page to visit. pageNum is 1-based.
	ParseListPage(doc *goquery.Document, pageNum int) (ListPage, error)
	// ExtractRecord turns a detail page into a normalized record.
	ExtractRecord(doc *goquery.Document, item ListItem) (music.Record, error)
	// TitleTag returns the visible post title of a detail page.
	TitleTag(doc *goquery.Document) string
}

// Registry maps sites to their adapters.
type Registry struct {
	adapters map[music.Site]Adapter
}

// NewRegistry validates and indexes adapters. Nil and duplicate entries are rejected.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[music.Site]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		if _, dup := r.adapters[a.Site()]; dup {
			return nil, fmt.Errorf("duplicate adapter for site %q", a.Site())
		}
		r.adapters[a.Site()] = a
	}
	return r, nil
}

// Get returns the adapter for s.
func (r *Registry) Get(s music.Site) (Adapter, bool) {
	a, ok := r.adapters[s]
	return a, ok
}

// Sites lists registered sites in name order.
func (r *Registry) Sites() []music.Site {
	out := make([]music.Site, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Text returns the trimmed, BOM-free text of sel.
func Text(sel *goquery.Selection) string {
	return strings.TrimSpace(normalize.StripBOM(sel.Text()))
}

// Attr returns the first non-empty attribute among names.
func Attr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok {
			if v = strings.TrimSpace(normalize.StripBOM(v)); v != "" {
				return v
			}
		}
	}
	return ""
}

// Resolve makes href absolute against the document URL.
func Resolve(doc *goquery.Document, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || doc == nil || doc.Url == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return doc.Url.ResolveReference(ref).String()
}

// PostID extracts the WordPress post id from an element id such as "post-123".
func PostID(sel *goquery.Selection) string {
	id, _ := sel.Attr("id")
	id = strings.TrimPrefix(strings.TrimSpace(id), "post-")
	if id == "" {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}

// SlugID derives a local id from the last path segment of a post URL.
func SlugID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	slug := path.Base(strings.TrimSuffix(u.Path, "/"))
	if unescaped, err := url.PathUnescape(slug); err == nil {
		slug = unescaped
	}
	if slug == "." || slug == "/" {
		return ""
	}
	return slug
}
