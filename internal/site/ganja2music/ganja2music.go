// Package ganja2music scrapes ganja2music.com. Posts carry a labelled info
// list, Jalali release dates and, for albums, a track list.
package ganja2music

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/normalize"
	"github.com/Amir-4m/music-crawler/internal/site"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "https://ganja2music.com/"

// Info list labels.
const (
	labelArtistFA = "خواننده"
	labelArtistEN = "Artist"
	labelSongFA   = "نام آهنگ"
	labelSongEN   = "Song"
	labelAlbumFA  = "نام آلبوم"
	labelAlbumEN  = "Album"
	labelDate     = "تاریخ انتشار"
)

var titlePrefixes = []string{"دانلود آلبوم جدید", "دانلود آهنگ جدید", "دانلود آلبوم", "دانلود آهنگ"}

// Adapter implements site.Adapter for Ganja2Music.
type Adapter struct {
	baseURL string
}

var _ site.Adapter = (*Adapter)(nil)

// New returns an adapter rooted at baseURL, or DefaultBaseURL when empty.
func New(baseURL string) *Adapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Adapter{baseURL: baseURL}
}

// Site identifies the source.
func (a *Adapter) Site() music.Site { return music.SiteGanja2Music }

// FirstListURL is the home page.
func (a *Adapter) FirstListURL() string { return a.baseURL }

// ParseListPage collects post links and follows the "next" link.
func (a *Adapter) ParseListPage(doc *goquery.Document, pageNum int) (site.ListPage, error) {
	var page site.ListPage
	seen := make(map[string]struct{})
	doc.Find("article").Each(func(_ int, art *goquery.Selection) {
		link := art.Find("h2 a, a.more-link").First()
		href := site.Resolve(doc, site.Attr(link, "href"))
		if href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		local := site.PostID(art)
		if local == "" {
			local = site.SlugID(href)
		}
		if local == "" {
			return
		}
		page.Items = append(page.Items, site.ListItem{URL: href, SiteID: music.SiteID(music.SiteGanja2Music, local)})
	})
	if len(page.Items) == 0 && pageNum == 1 {
		return site.ListPage{}, site.Extractionf("ganja2music list page has no posts")
	}

	next := site.Attr(doc.Find("a.next.page-numbers").First(), "href")
	if next == "" {
		next = site.Attr(doc.Find(`link[rel="next"]`).First(), "href")
	}
	next = site.Resolve(doc, next)
	if doc.Url != nil && next == doc.Url.String() {
		next = ""
	}
	page.NextURL = next
	return page, nil
}

// TitleTag returns the post title.
func (a *Adapter) TitleTag(doc *goquery.Document) string {
	if t := site.Text(doc.Find("h1.entry-title").First()); t != "" {
		return t
	}
	return site.Text(doc.Find("h1").First())
}

// infoList wraps the labelled list of a post.
type infoList struct{ *goquery.Selection }

// Fields maps each label to its value. Labels and values are separated by
// the bold label element and an optional colon.
func (l infoList) Fields() map[string]string {
	out := make(map[string]string)
	l.Find("li").Each(func(_ int, li *goquery.Selection) {
		labelSel := li.Find("strong, b").First()
		label := strings.Trim(site.Text(labelSel), " :：")
		if label == "" {
			return
		}
		value := strings.TrimSpace(strings.TrimPrefix(site.Text(li), site.Text(labelSel)))
		value = strings.TrimSpace(strings.TrimLeft(value, ":："))
		if _, ok := out[label]; !ok {
			out[label] = normalize.CollapseSpace(value)
		}
	})
	return out
}

// qualityLinks classifies anchors by the bitrate found in their href or text.
func qualityLinks(doc *goquery.Document, sel *goquery.Selection) (mp3128, mp3320 string) {
	sel.Each(func(_ int, a *goquery.Selection) {
		href := site.Resolve(doc, site.Attr(a, "href"))
		if href == "" {
			return
		}
		hint := href + " " + normalize.Digits(a.Text())
		switch {
		case strings.Contains(hint, "320") && mp3320 == "":
			mp3320 = href
		case strings.Contains(hint, "128") && mp3128 == "":
			mp3128 = href
		}
	})
	return mp3128, mp3320
}

func stripTitlePrefix(title string) string {
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(title, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(title, prefix))
		}
	}
	return title
}

// ExtractRecord parses a Ganja2Music single or album post.
func (a *Adapter) ExtractRecord(doc *goquery.Document, item site.ListItem) (music.Record, error) {
	title := a.TitleTag(doc)
	if title == "" {
		return music.Record{}, site.Extractionf("title missing at %s", item.URL)
	}
	content := doc.Find("div.entry-content").First()
	if content.Length() == 0 {
		return music.Record{}, site.Extractionf("entry content missing at %s", item.URL)
	}
	fields := infoList{content.Find("ul.info").First()}.Fields()

	rec := music.Record{
		Site:         music.SiteGanja2Music,
		SiteID:       item.SiteID,
		PageURL:      item.URL,
		Title:        title,
		ArtistNameEN: fields[labelArtistEN],
		ArtistNameFA: fields[labelArtistFA],
		PostType:     music.PostTypeSingle,
	}
	if rec.ArtistNameEN == "" && rec.ArtistNameFA == "" {
		return music.Record{}, site.Extractionf("artist missing at %s", item.URL)
	}

	rawDate := fields[labelDate]
	if rawDate == "" {
		rawDate = site.Text(doc.Find("span.date").First())
	}
	published, err := normalize.ParseJalali(rawDate)
	if err != nil {
		return music.Record{}, fmt.Errorf("%s: %w: %w", item.URL, site.ErrExtraction, err)
	}
	rec.PublishedDate = published

	var lines []string
	content.Find("div.lyrics p").Each(func(_ int, p *goquery.Selection) {
		if line := site.Text(p); line != "" {
			lines = append(lines, line)
		}
	})
	rec.Lyrics = normalize.StripDownloadMarker(normalize.StripQuotes(strings.Join(lines, "\n")))

	rec.Links.MP3128, rec.Links.MP3320 = qualityLinks(doc, content.Find("div.download a"))
	rec.Links.Thumbnail = site.Resolve(doc, site.Attr(content.Find("img").First(), "data-src", "src"))

	tracks := content.Find("ol.tracklist li")
	if tracks.Length() > 0 || fields[labelAlbumEN] != "" || fields[labelAlbumFA] != "" {
		rec.PostType = music.PostTypeAlbumTrack
		rec.SongNameEN = fields[labelAlbumEN]
		rec.SongNameFA = fields[labelAlbumFA]
		tracks.Each(func(i int, li *goquery.Selection) {
			t := music.RecordTrack{
				SiteID:     item.SiteID + "-" + strconv.Itoa(i+1),
				SongNameEN: site.Text(li.Find(".en").First()),
				SongNameFA: site.Text(li.Find(".fa").First()),
			}
			t.Links.MP3128, t.Links.MP3320 = qualityLinks(doc, li.Find("a"))
			if t.SongNameEN == "" && t.SongNameFA == "" {
				t.SongNameFA = strings.TrimSpace(li.Clone().Children().Remove().End().Text())
			}
			rec.Tracks = append(rec.Tracks, t)
		})
	} else {
		rec.SongNameEN = fields[labelSongEN]
		rec.SongNameFA = fields[labelSongFA]
	}
	if rec.SongNameFA == "" && rec.SongNameEN == "" {
		rec.SongNameFA = normalize.CleanLocalizedName(stripTitlePrefix(title), rec.ArtistNames())
	}
	return rec, nil
}
