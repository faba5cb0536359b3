package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/crawl"
	"github.com/Amir-4m/music-crawler/internal/media"
	"github.com/Amir-4m/music-crawler/internal/music"
)

// Crawler runs one crawl of a site.
type Crawler interface {
	Run(ctx context.Context) (crawl.Stats, error)
}

// Downloader fetches pending media of a site.
type Downloader interface {
	Run(ctx context.Context, site music.Site) (media.Stats, error)
}

// Cleaner removes catalog rows nothing refers to.
type Cleaner interface {
	DeleteEmptyAlbums(ctx context.Context) (int64, error)
	DeleteOrphanArtists(ctx context.Context) (int64, error)
}

// Chain triggers a follow-up job once a crawl finishes.
type Chain func(ctx context.Context, name Name) error

// Deps are the collaborators of the default jobs. Crawlers without an
// entry are not registered.
type Deps struct {
	Crawlers   map[music.Site]Crawler
	Downloader Downloader
	Cleaner    Cleaner
	// Then queues the download job after a crawl; nil disables chaining.
	Then   Chain
	Logger *zap.Logger
}

type sitePair struct {
	site     music.Site
	crawl    Name
	download Name
}

var sitePairs = []sitePair{
	{site: music.SiteNicMusic, crawl: CollectMusicsNic, download: CollectFilesNic},
	{site: music.SiteGanja2Music, crawl: CollectMusicsGanja, download: CollectFilesGanja},
}

// RegisterDefaults registers the crawl, download and cleanup jobs.
func RegisterDefaults(r *Registry, d Deps) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, p := range sitePairs {
		c, ok := d.Crawlers[p.site]
		if !ok {
			continue
		}
		if err := r.Register(p.crawl, crawlJob(c, p.download, d.Then, logger)); err != nil {
			return err
		}
		if d.Downloader == nil {
			continue
		}
		if err := r.Register(p.download, downloadJob(d.Downloader, p.site)); err != nil {
			return err
		}
	}
	if d.Cleaner != nil {
		if err := r.Register(CleanupCatalog, cleanupJob(d.Cleaner, logger)); err != nil {
			return err
		}
	}
	return nil
}

func crawlJob(c Crawler, next Name, then Chain, logger *zap.Logger) Func {
	return func(ctx context.Context) error {
		if _, err := c.Run(ctx); err != nil {
			return err
		}
		if then == nil {
			return nil
		}
		if err := then(ctx, next); err != nil {
			// The download job also runs on its own schedule.
			logger.Warn("chain download job", zap.String("next", string(next)), zap.Error(err))
		}
		return nil
	}
}

func downloadJob(d Downloader, site music.Site) Func {
	return func(ctx context.Context) error {
		_, err := d.Run(ctx, site)
		return err
	}
}

func cleanupJob(c Cleaner, logger *zap.Logger) Func {
	return func(ctx context.Context) error {
		albums, err := c.DeleteEmptyAlbums(ctx)
		if err != nil {
			return fmt.Errorf("delete empty albums: %w", err)
		}
		artists, err := c.DeleteOrphanArtists(ctx)
		if err != nil {
			return fmt.Errorf("delete orphan artists: %w", err)
		}
		logger.Info("catalog cleaned", zap.Int64("albums", albums), zap.Int64("artists", artists))
		return nil
	}
}
