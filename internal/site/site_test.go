package site

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amir-4m/music-crawler/internal/music"
)

type fakeAdapter struct{ site music.Site }

func (f fakeAdapter) Site() music.Site     { return f.site }
func (f fakeAdapter) FirstListURL() string { return "https://example.org/" }
func (f fakeAdapter) ParseListPage(*goquery.Document, int) (ListPage, error) {
	return ListPage{}, nil
}

func (f fakeAdapter) ExtractRecord(*goquery.Document, ListItem) (music.Record, error) {
	return music.Record{}, nil
}
func (f fakeAdapter) TitleTag(*goquery.Document) string { return "" }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(fakeAdapter{music.SiteNicMusic}, fakeAdapter{music.SiteGanja2Music})
	require.NoError(t, err)
	assert.Equal(t, []music.Site{music.SiteGanja2Music, music.SiteNicMusic}, r.Sites())

	a, ok := r.Get(music.SiteNicMusic)
	require.True(t, ok)
	assert.Equal(t, music.SiteNicMusic, a.Site())
	_, ok = r.Get("unknown")
	assert.False(t, ok)

	_, err = NewRegistry(fakeAdapter{music.SiteNicMusic}, fakeAdapter{music.SiteNicMusic})
	require.Error(t, err)
	_, err = NewRegistry(nil)
	require.Error(t, err)
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<article id="post-812"><a class="more" href="/song-a/">x</a><img data-src=" " src="/c.jpg"></article>`))
	require.NoError(t, err)
	doc.Url = mustURL(t, "https://nicmusic.net/page/2/")

	assert.Equal(t, "812", PostID(doc.Find("article")))
	assert.Equal(t, "https://nicmusic.net/song-a/", Resolve(doc, Attr(doc.Find("a.more"), "href")))
	assert.Equal(t, "/c.jpg", Attr(doc.Find("img"), "data-src", "src"))
	assert.Equal(t, "آهنگ-گل", SlugID("https://nicmusic.net/%D8%A2%D9%87%D9%86%DA%AF-%DA%AF%D9%84/"))
	assert.Equal(t, "", SlugID("https://nicmusic.net/"))
	assert.ErrorIs(t, Extractionf("missing %s", "title"), ErrExtraction)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
