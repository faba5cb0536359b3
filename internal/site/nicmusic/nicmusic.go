// Package nicmusic scrapes nicmusic.net, a WordPress site whose posts mix
// Persian markup with a Latin "Download ... By <artist> Called <song>" line.
package nicmusic

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
const DefaultBaseURL = "https://nicmusic.net/"

const (
	markerCalled   = "Called "
	markerBy       = "By "
	markerDownload = "Download "
	songNameMarker = "به نام"
	// lyricsStart is the index of the first lyrics paragraph in the post body.
	lyricsStart = 7
)

var categoryPrefixes = []string{"آهنگ های ", "دانلود آهنگ "}

// titlePrefixes are boilerplate openings of post titles, longest first.
var titlePrefixes = []string{"دانلود آهنگ جدید", "دانلود آهنگ"}

// genericCategories are listing categories, not artist categories.
var genericCategories = map[string]struct{}{
	"آهنگ های گوناگون":  {},
	"تک آهنگ های جدید": {},
}

// Adapter implements site.Adapter for NicMusic.
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
func (a *Adapter) Site() music.Site { return music.SiteNicMusic }

// FirstListURL is the home page, which doubles as list page 1.
func (a *Adapter) FirstListURL() string { return a.baseURL }

// PageURL returns the URL of list page n.
func (a *Adapter) PageURL(n int) string {
	if n <= 1 {
		return a.baseURL
	}
	return fmt.Sprintf("%spage/%d/", a.baseURL, n)
}

// ParseListPage collects post links and derives the next page from the
// last-page indicator of the navigation block.
func (a *Adapter) ParseListPage(doc *goquery.Document, pageNum int) (site.ListPage, error) {
	var page site.ListPage
	seen := make(map[string]struct{})
	doc.Find("a.show-more").Each(func(_ int, sel *goquery.Selection) {
		href := site.Resolve(doc, site.Attr(sel, "href"))
		if href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		local := site.PostID(sel.Closest("article"))
		if local == "" {
			local = site.SlugID(href)
		}
		if local == "" {
			return
		}
		page.Items = append(page.Items, site.ListItem{URL: href, SiteID: music.SiteID(music.SiteNicMusic, local)})
	})
	if len(page.Items) == 0 && pageNum == 1 {
		return site.ListPage{}, site.Extractionf("nicmusic list page has no posts")
	}
	if last := lastPage(doc); pageNum < last {
		page.NextURL = a.PageURL(pageNum + 1)
	}
	return page, nil
}

// lastPage reads the second to last navigation link, the last one being "next".
func lastPage(doc *goquery.Document) int {
	links := doc.Find("div.nav-links a")
	if links.Length() < 2 {
		return 1
	}
	n, err := strconv.Atoi(normalize.Digits(site.Text(links.Eq(links.Length() - 2))))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// TitleTag returns the post title.
func (a *Adapter) TitleTag(doc *goquery.Document) string {
	return site.Text(doc.Find("h1.title a").First())
}

// postContent wraps the div holding the body of a post.
type postContent struct{ *goquery.Selection }

func (c postContent) paragraphs() []string {
	var out []string
	c.Find("p").Each(func(_ int, p *goquery.Selection) {
		out = append(out, normalize.StripBOM(p.Text()))
	})
	return out
}

func (c postContent) strongs() []string {
	var out []string
	c.Find("strong").Each(func(_ int, s *goquery.Selection) {
		out = append(out, site.Text(s))
	})
	return out
}

// latinNames splits the Latin blob into artist and song names and the post
// type, read from the words between "Download " and "By ". The paragraph
// carrying every marker wins; otherwise all paragraphs are joined.
func latinNames(paragraphs []string) (artist, song string, postType music.PostType, err error) {
	blob := ""
	for _, p := range paragraphs {
		latin := normalize.LatinOnly(p)
		if strings.Contains(latin, markerCalled) && strings.Contains(latin, markerBy) {
			blob = latin
			break
		}
	}
	if blob == "" {
		blob = normalize.LatinOnly(strings.Join(paragraphs, ""))
	}
	called := strings.Index(blob, markerCalled)
	by := strings.Index(blob, markerBy)
	if called < 0 || by < 0 || !strings.Contains(blob, markerDownload) {
		return "", "", "", site.Extractionf("latin title markers missing")
	}
	if by+len(markerBy) <= called {
		artist = strings.TrimSpace(blob[by+len(markerBy)-1 : called])
	}
	song = strings.TrimSpace(blob[called+len(markerCalled)-1:])
	postType = music.PostTypeSingle
	if dl := strings.Index(blob, markerDownload); dl < by {
		kind := strings.ToLower(blob[dl+len(markerDownload) : by])
		if strings.Contains(kind, "album") {
			postType = music.PostTypeAlbumTrack
		}
	}
	return normalize.CollapseSpace(artist), normalize.CollapseSpace(song), postType, nil
}

// persianArtist resolves the Persian artist name from the category label,
// falling back to the bold names of the post body.
func persianArtist(category string, strongs []string) string {
	name := ""
	if len(strongs) > 0 {
		_, generic := genericCategories[category]
		for _, prefix := range categoryPrefixes {
			if !generic && strings.HasPrefix(category, prefix) {
				name = strings.TrimSpace(strings.TrimPrefix(category, prefix))
				break
			}
		}
		if name == "" {
			name = strongs[0]
		}
	}
	if name == "" || normalize.IsLatinLead(name) {
		if len(strongs) > 2 && strongs[2] != "" && !normalize.IsLatinLead(strongs[2]) {
			name = strongs[2]
		}
	}
	return name
}

func lyrics(paragraphs []string) string {
	if len(paragraphs) <= lyricsStart {
		return ""
	}
	lines := make([]string, 0, len(paragraphs)-lyricsStart)
	for _, p := range paragraphs[lyricsStart:] {
		lines = append(lines, strings.TrimSpace(p))
	}
	text := normalize.StripQuotes(strings.Join(lines, "\n"))
	return normalize.StripDownloadMarker(strings.TrimSpace(text))
}

// ExtractRecord parses a NicMusic post.
func (a *Adapter) ExtractRecord(doc *goquery.Document, item site.ListItem) (music.Record, error) {
	title := a.TitleTag(doc)
	if title == "" {
		return music.Record{}, site.Extractionf("title missing at %s", item.URL)
	}
	content := postContent{doc.Find("div.post-content").First()}
	if content.Length() == 0 {
		return music.Record{}, site.Extractionf("post content missing at %s", item.URL)
	}
	paragraphs := content.paragraphs()

	artistEN, songEN, postType, err := latinNames(paragraphs)
	if err != nil {
		return music.Record{}, fmt.Errorf("%s: %w", item.URL, err)
	}
	if artistEN == "" {
		return music.Record{}, site.Extractionf("english artist name empty at %s", item.URL)
	}

	category := normalize.StripBOM(doc.Find("div.categories a").First().Text())
	artistFA := persianArtist(category, content.strongs())

	songFA := ""
	if i := strings.Index(title, songNameMarker); i >= 0 {
		songFA = strings.TrimSpace(title[i+len(songNameMarker):])
	} else {
		bare := title
		for _, prefix := range titlePrefixes {
			if strings.HasPrefix(bare, prefix) {
				bare = strings.TrimSpace(strings.TrimPrefix(bare, prefix))
				break
			}
		}
		songFA = normalize.CleanLocalizedName(bare, music.UniqueNames(artistFA, artistEN))
	}

	published, err := normalize.ParseGregorianPersianMonth(site.Text(doc.Find("div.times").First()))
	if err != nil {
		return music.Record{}, fmt.Errorf("%s: %w: %w", item.URL, site.ErrExtraction, err)
	}

	return music.Record{
		Site:         music.SiteNicMusic,
		SiteID:       item.SiteID,
		PageURL:      item.URL,
		Title:        title,
		SongNameEN:   songEN,
		SongNameFA:   songFA,
		ArtistNameEN: artistEN,
		ArtistNameFA: artistFA,
		Lyrics:       lyrics(paragraphs),
		PostType:     postType,
		Links: music.MediaLinks{
			MP3128:    site.Resolve(doc, site.Attr(doc.Find("a.dl-128").First(), "href")),
			MP3320:    site.Resolve(doc, site.Attr(doc.Find("a.dl-320").First(), "href")),
			Thumbnail: site.Resolve(doc, site.Attr(doc.Find("img.size-full, img.size-medium").First(), "data-src", "src")),
		},
		PublishedDate: published,
	}, nil
}
