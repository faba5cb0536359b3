package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amir-4m/music-crawler/internal/crawl"
)

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func TestFetchRevisitsListPages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "music-crawler-test", r.UserAgent())
		assert.Equal(t, "fa-IR", r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h1 class="title"><a>سلام</a></h1></body></html>`))
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	f := New(Config{
		UserAgent: "music-crawler-test",
		Timeout:   time.Second,
		Headers:   http.Header{"Accept-Language": {"fa-IR"}},
	}, limiter)

	for i := 0; i < 2; i++ {
		page, err := f.Fetch(context.Background(), srv.URL+"/page/1/")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, page.StatusCode)

		doc, err := page.Document()
		require.NoError(t, err)
		assert.Equal(t, "سلام", doc.Find("h1.title a").Text())
		assert.Equal(t, "/page/1/", doc.Url.Path)
	}
	assert.Equal(t, int32(2), limiter.calls.Load())
}

func TestFetchDecodesLegacyCharset(t *testing.T) {
	t.Parallel()

	// "سلام" in windows-1256.
	body := append([]byte(`<html><body><p>`), 0xD3, 0xE1, 0xC7, 0xE3)
	body = append(body, []byte(`</p></body></html>`)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1256")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	page, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	doc, err := page.Document()
	require.NoError(t, err)
	assert.Equal(t, "سلام", doc.Find("p").Text())
}

func TestFetchRejectsMediaResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL+"/song.mp3")
	require.ErrorIs(t, err, ErrNotHTML)
}

func TestFetchClassifiesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second}, nil)
	tests := []struct {
		path      string
		code      int
		transient bool
	}{
		{path: "/missing", code: http.StatusNotFound},
		{path: "/down", code: http.StatusServiceUnavailable, transient: true},
	}
	for _, tt := range tests {
		_, err := f.Fetch(context.Background(), srv.URL+tt.path)
		var statusErr *crawl.StatusError
		require.ErrorAs(t, err, &statusErr, tt.path)
		assert.Equal(t, tt.code, statusErr.Code)
		assert.Equal(t, tt.transient, statusErr.Transient())
	}
}

func TestFetchStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{err: errors.New("rate limit wait for nicmusic.net: context canceled")}
	_, err := New(Config{}, limiter).Fetch(context.Background(), "https://nicmusic.net/page/3/")
	require.EqualError(t, err, "rate limit wait for nicmusic.net: context canceled")
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordedHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (h *recordedHooks) OnRequest(cb colly.RequestCallback)   { h.onRequest = cb }
func (h *recordedHooks) OnResponse(cb colly.ResponseCallback) { h.onResponse = cb }
func (h *recordedHooks) OnError(cb colly.ErrorCallback)       { h.onError = cb }

func TestCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"Referer": {"https://ganja2music.com/"}}}, nil)
	var (
		page    crawl.Page
		hookErr error
		hooks   recordedHooks
	)
	f.configureCollectorHooks(&hooks, &page, &hookErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	assert.Equal(t, "https://ganja2music.com/", req.Headers.Get("Referer"))

	postURL, err := url.Parse("https://ganja2music.com/archive/1234")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: postURL},
	})
	assert.Equal(t, "https://ganja2music.com/archive/1234", page.URL)
	assert.Equal(t, "text/html", page.Header.Get("Content-Type"))

	hooks.onError(&colly.Response{StatusCode: http.StatusGone, Request: &colly.Request{URL: postURL}}, errors.New("Gone"))
	var statusErr *crawl.StatusError
	require.ErrorAs(t, hookErr, &statusErr)
	assert.Equal(t, http.StatusGone, statusErr.Code)

	hooks.onError(nil, errors.New("dial tcp: connection refused"))
	require.EqualError(t, hookErr, "dial tcp: connection refused")
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	assert.True(t, isHTML(""))
	assert.True(t, isHTML("text/html; charset=UTF-8"))
	assert.True(t, isHTML("application/xhtml+xml"))
	assert.False(t, isHTML("image/jpeg"))
	assert.False(t, isHTML(";;"))
}
