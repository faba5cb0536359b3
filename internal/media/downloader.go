package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/music"
)

// ErrUnavailable is returned when a media file cannot be downloaded.
var ErrUnavailable = errors.New("media unavailable")

// Download outcomes reported to metrics.
const (
	outcomeOK          = "ok"
	outcomeUnavailable = "unavailable"
	outcomeInvalid     = "invalid"
	outcomeStoreError  = "store_error"
)

// BlobStore persists downloaded files.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Source fetches one media URL, returning nil when unavailable.
type Source interface {
	Fetch(ctx context.Context, rawURL string) *File
}

// Store is the catalog subset the downloader updates.
type Store interface {
	ListTracksPendingDownload(ctx context.Context, site music.Site, limit int) ([]music.Track, error)
	ListAlbumsPendingDownload(ctx context.Context, site music.Site, limit int) ([]music.Album, error)
	UpdateTrackFiles(ctx context.Context, id int64, files music.MediaFiles, downloaded bool) error
	UpdateAlbumFiles(ctx context.Context, id int64, files music.MediaFiles, downloaded bool) error
}

// Stats summarises a download run.
type Stats struct {
	Site      music.Site `json:"site"`
	Tracks    int        `json:"tracks"`
	Albums    int        `json:"albums"`
	Files     int        `json:"files"`
	Failed    int        `json:"failed"`
	Completed int        `json:"completed"`
}

// Downloader copies pending media links into the blob store.
type Downloader struct {
	store  Store
	blobs  BlobStore
	source Source
	batch  int
	logger *zap.Logger
}

// NewDownloader constructs a Downloader. batch caps the records handled per
// run; zero means 500.
func NewDownloader(store Store, blobs BlobStore, source Source, batch int, logger *zap.Logger) *Downloader {
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{store: store, blobs: blobs, source: source, batch: batch, logger: logger}
}

// Run downloads every missing file of the site's pending tracks and albums.
// Records whose links are all downloaded are flagged; the rest stay pending
// for the next run.
func (d *Downloader) Run(ctx context.Context, site music.Site) (Stats, error) {
	stats := Stats{Site: site}

	tracks, err := d.store.ListTracksPendingDownload(ctx, site, d.batch)
	if err != nil {
		return stats, fmt.Errorf("list pending tracks: %w", err)
	}
	for _, t := range tracks {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("download canceled: %w", err)
		}
		stats.Tracks++
		files, n, failed := d.fill(ctx, t.Links, t.Files)
		stats.Files += n
		stats.Failed += failed
		complete := files.Complete(t.Links)
		if n == 0 && !complete {
			continue
		}
		if err := d.store.UpdateTrackFiles(ctx, t.ID, files, complete); err != nil {
			d.logger.Warn("update track files", zap.String("site_id", t.SiteID), zap.Error(err))
			continue
		}
		if complete {
			stats.Completed++
		}
	}

	albums, err := d.store.ListAlbumsPendingDownload(ctx, site, d.batch)
	if err != nil {
		return stats, fmt.Errorf("list pending albums: %w", err)
	}
	for _, a := range albums {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("download canceled: %w", err)
		}
		stats.Albums++
		files, n, failed := d.fill(ctx, a.Links, a.Files)
		stats.Files += n
		stats.Failed += failed
		complete := files.Complete(a.Links)
		if n == 0 && !complete {
			continue
		}
		if err := d.store.UpdateAlbumFiles(ctx, a.ID, files, complete); err != nil {
			d.logger.Warn("update album files", zap.String("site_id", a.SiteID), zap.Error(err))
			continue
		}
		if complete {
			stats.Completed++
		}
	}

	d.logger.Info("media download finished",
		zap.String("site", string(site)),
		zap.Int("tracks", stats.Tracks),
		zap.Int("albums", stats.Albums),
		zap.Int("files", stats.Files),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// fill downloads every linked field that has no file yet.
func (d *Downloader) fill(ctx context.Context, links music.MediaLinks, files music.MediaFiles) (music.MediaFiles, int, int) {
	var stored, failed int
	for _, field := range music.MediaFields {
		link := links.Get(field)
		if link == "" || files.Get(field) != "" {
			continue
		}
		path, err := d.Download(ctx, link, field)
		if err != nil {
			failed++
			continue
		}
		files.Set(field, path)
		stored++
	}
	return files, stored, failed
}

// Download fetches link, checks that its payload matches field and writes
// it to the blob store, returning the blob path.
func (d *Downloader) Download(ctx context.Context, link string, field music.MediaField) (string, error) {
	file := d.source.Fetch(ctx, link)
	if file == nil {
		metrics.ObserveMediaDownload(string(field), outcomeUnavailable)
		return "", fmt.Errorf("%s: %w", link, ErrUnavailable)
	}
	if !matches(file, field) {
		metrics.ObserveMediaDownload(string(field), outcomeInvalid)
		d.logger.Warn("media payload rejected",
			zap.String("url", link),
			zap.String("field", string(field)),
			zap.String("content_type", file.ContentType),
		)
		return "", fmt.Errorf("%s: unexpected %s payload: %w", link, file.ContentType, ErrUnavailable)
	}
	path := StoragePath(link)
	if path == "" {
		metrics.ObserveMediaDownload(string(field), outcomeInvalid)
		return "", fmt.Errorf("%s: no file name: %w", link, ErrUnavailable)
	}
	if _, err := d.blobs.PutObject(ctx, path, file.ContentType, bytes.NewReader(file.Data)); err != nil {
		metrics.ObserveMediaDownload(string(field), outcomeStoreError)
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	metrics.ObserveMediaDownload(string(field), outcomeOK)
	return path, nil
}

func matches(file *File, field music.MediaField) bool {
	if field == music.FieldThumbnail {
		return file.IsImage()
	}
	return file.IsAudio()
}

// EnsureTrackFile returns the blob path of the track's field, downloading
// and persisting it first when the file is missing.
func (d *Downloader) EnsureTrackFile(ctx context.Context, t *music.Track, field music.MediaField) (string, error) {
	path, changed, err := d.ensure(ctx, t.Links, &t.Files, field)
	if err != nil || !changed {
		return path, err
	}
	if err := d.store.UpdateTrackFiles(ctx, t.ID, t.Files, t.Files.Complete(t.Links)); err != nil {
		return "", fmt.Errorf("update track %d files: %w", t.ID, err)
	}
	return path, nil
}

// EnsureAlbumFile is EnsureTrackFile for albums.
func (d *Downloader) EnsureAlbumFile(ctx context.Context, a *music.Album, field music.MediaField) (string, error) {
	path, changed, err := d.ensure(ctx, a.Links, &a.Files, field)
	if err != nil || !changed {
		return path, err
	}
	if err := d.store.UpdateAlbumFiles(ctx, a.ID, a.Files, a.Files.Complete(a.Links)); err != nil {
		return "", fmt.Errorf("update album %d files: %w", a.ID, err)
	}
	return path, nil
}

func (d *Downloader) ensure(ctx context.Context, links music.MediaLinks, files *music.MediaFiles, field music.MediaField) (string, bool, error) {
	if path := files.Get(field); path != "" {
		ok, err := d.blobs.Exists(ctx, path)
		if err != nil {
			return "", false, fmt.Errorf("check %s: %w", path, err)
		}
		if ok {
			return path, false, nil
		}
	}
	link := links.Get(field)
	if link == "" {
		return "", false, fmt.Errorf("no %s link: %w", field, ErrUnavailable)
	}
	path, err := d.Download(ctx, link, field)
	if err != nil {
		return "", false, err
	}
	files.Set(field, path)
	return path, true, nil
}
