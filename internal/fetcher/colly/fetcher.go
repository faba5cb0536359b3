// Package collyfetcher implements crawl.Fetcher on top of gocolly. Pages are
// fetched one at a time through a per-host limiter and converted to UTF-8
// when a source serves a legacy Persian code page.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/Amir-4m/music-crawler/internal/crawl"
)

// ErrNotHTML is returned when a list or post URL answers with something
// other than an HTML document, typically a direct media link.
var ErrNotHTML = errors.New("response is not html")

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior. MaxBodySize defaults to 8 MiB.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Headers     http.Header
	MaxBodySize int
}

// Fetcher implements crawl.Fetcher. Every call is a single attempt; failed
// pages are retried by the next scheduled run.
type Fetcher struct {
	cfg     Config
	limiter Limiter
	base    *colly.Collector
}

var _ crawl.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 8 << 20
	}
	base := colly.NewCollector(
		colly.Async(false),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(transport())
	return &Fetcher{cfg: cfg, limiter: limiter, base: base}
}

// Fetch waits for the host's rate limit and then GETs url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawl.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return crawl.Page{}, err
		}
	}
	var (
		page    crawl.Page
		hookErr error
	)
	c := f.base.Clone()
	f.configureCollectorHooks(c, &page, &hookErr)

	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()
	select {
	case <-ctx.Done():
		return crawl.Page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if hookErr != nil {
			return crawl.Page{}, fmt.Errorf("colly response failed: %w", hookErr)
		}
		if err != nil {
			return crawl.Page{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if !isHTML(page.Header.Get("Content-Type")) {
		return crawl.Page{}, fmt.Errorf("%s: %w (%s)", page.URL, ErrNotHTML, page.Header.Get("Content-Type"))
	}
	return page, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, page *crawl.Page, hookErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		*page = crawl.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Header:     r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.Request != nil {
			*hookErr = &crawl.StatusError{URL: r.Request.URL.String(), Code: r.StatusCode}
			return
		}
		*hookErr = err
	})
}

// isHTML accepts a missing content type; some mirrors omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func transport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
