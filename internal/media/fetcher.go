// Package media downloads the audio and thumbnail files referenced by
// catalog links and stores them in a blob store.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// File is a downloaded media binary.
type File struct {
	URL         string
	Name        string
	ContentType string
	Data        []byte
}

// IsImage reports whether the payload sniffs as an image.
func (f *File) IsImage() bool { return filetype.IsImage(f.Data) }

// IsAudio reports whether the payload sniffs as audio.
func (f *File) IsAudio() bool { return filetype.IsAudio(f.Data) }

// FetcherConfig controls the media collector.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs single GET requests without following redirects.
type Fetcher struct {
	cfg    FetcherConfig
	base   *colly.Collector
	logger *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	// Redirect targets on the source hosts are usually expired mirrors.
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	return &Fetcher{cfg: cfg, base: c, logger: logger}
}

// Fetch downloads rawURL. It returns nil when the file is unavailable for
// any reason; the failure is logged.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *File {
	file, err := f.fetch(ctx, rawURL)
	if err != nil {
		f.logger.Warn("media unavailable", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	return file
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*File, error) {
	if rawURL == "" {
		return nil, errors.New("empty media url")
	}
	c := f.base.Clone()
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = 0
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.SetRequestTimeout(f.cfg.Timeout)

	var (
		file     *File
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		file = &File{
			URL:         rawURL,
			Name:        FileName(rawURL),
			ContentType: r.Headers.Get("Content-Type"),
			Data:        append([]byte(nil), r.Body...),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() { done <- c.Visit(rawURL) }()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("media fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("visit: %w", err)
		}
	}
	if file == nil || len(file.Data) == 0 {
		return nil, errors.New("empty media body")
	}
	if kind, err := filetype.Match(file.Data); err == nil && kind != filetype.Unknown {
		file.ContentType = kind.MIME.Value
	}
	return file, nil
}
