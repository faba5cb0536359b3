// Package server wires configuration into the running service: catalog,
// blob storage, crawl engines, jobs, queue, scheduler, publisher and API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/api"
	"github.com/Amir-4m/music-crawler/internal/clock/system"
	"github.com/Amir-4m/music-crawler/internal/config"
	"github.com/Amir-4m/music-crawler/internal/crawl"
	"github.com/Amir-4m/music-crawler/internal/curate"
	"github.com/Amir-4m/music-crawler/internal/dispatcher"
	"github.com/Amir-4m/music-crawler/internal/events"
	memoryevents "github.com/Amir-4m/music-crawler/internal/events/memory"
	pubsubevents "github.com/Amir-4m/music-crawler/internal/events/pubsub"
	collyfetcher "github.com/Amir-4m/music-crawler/internal/fetcher/colly"
	"github.com/Amir-4m/music-crawler/internal/id/uuid"
	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/media"
	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/policy/ratelimit"
	"github.com/Amir-4m/music-crawler/internal/publish"
	queueMemory "github.com/Amir-4m/music-crawler/internal/queue/memory"
	"github.com/Amir-4m/music-crawler/internal/resolver"
	"github.com/Amir-4m/music-crawler/internal/scheduler"
	"github.com/Amir-4m/music-crawler/internal/site"
	"github.com/Amir-4m/music-crawler/internal/site/ganja2music"
	"github.com/Amir-4m/music-crawler/internal/site/nicmusic"
	gcsstorage "github.com/Amir-4m/music-crawler/internal/storage/gcs"
	localstorage "github.com/Amir-4m/music-crawler/internal/storage/local"
	memoryStorage "github.com/Amir-4m/music-crawler/internal/storage/memory"
	pgstore "github.com/Amir-4m/music-crawler/internal/storage/postgres"
	"github.com/Amir-4m/music-crawler/internal/worker"
	"github.com/Amir-4m/music-crawler/internal/wordpress"
)

// ErrPublishingDisabled is returned by the publish helpers when no
// WordPress site is configured.
var ErrPublishingDisabled = errors.New("publishing disabled: wordpress.base_url not set")

// JobStatus is one row of the job overview.
type JobStatus struct {
	Name     jobs.Name `json:"name"`
	Running  bool      `json:"running"`
	Schedule string    `json:"schedule,omitempty"`
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  music.Clock

	catalog   music.CatalogStore
	curator   *curate.Service
	pg        *pgstore.CatalogStore
	blobs     media.BlobStore
	gcsClient *storage.Client
	events    events.Publisher
	closeEv   func() error

	mediaSource *media.Downloader
	registry    *jobs.Registry
	queue       *queueMemory.Queue
	dispatch    *dispatcher.Dispatcher
	schedule    *scheduler.Scheduler
	publisher   *publish.Service
	apiServer   *api.Server

	// serving switches job chaining from synchronous runs to the queue.
	serving atomic.Bool
}

// Build creates the application's dependencies. Nothing is started.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger, clock: system.New(time.UTC)}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("events_backend", cfg.Events.Backend),
	)

	steps := []func(context.Context) error{
		app.setupCatalog,
		app.setupStorage,
		app.setupEvents,
		app.setupJobs,
		app.setupPublisher,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
	}
	app.setupScheduler()
	app.setupAPI()
	return app, nil
}

func (a *App) setupCatalog(ctx context.Context) error {
	if a.cfg.DB.Driver == "memory" {
		a.logger.Warn("using in-memory catalog; data is lost on exit")
		a.catalog = memoryStorage.NewCatalogStore()
		a.curator = curate.New(a.catalog, a.logger.Named("curate"))
		return nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
	if err != nil {
		return fmt.Errorf("catalog store init failed: %w", err)
	}
	a.pg = store
	a.catalog = store
	a.curator = curate.New(store, a.logger.Named("curate"))
	a.logger.Info("postgres catalog initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("using GCS media storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	default:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.MediaRoot})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("using local media storage", zap.String("media_root", a.cfg.Storage.MediaRoot))
	}
	return nil
}

func (a *App) setupEvents(ctx context.Context) error {
	switch a.cfg.Events.Backend {
	case "pubsub":
		pub, err := pubsubevents.New(ctx, a.cfg.Events.ProjectID, a.cfg.Events.Topic, a.logger.Named("events"))
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.events = pub
		a.closeEv = pub.Close
		a.logger.Info("Pub/Sub events enabled",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.Topic),
		)
	case "memory":
		a.events = memoryevents.New(1000)
	default:
		a.events = events.Nop{}
	}
	return nil
}

func (a *App) setupJobs(_ context.Context) error {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Crawler.RequestsPerSecond,
		DefaultBurst: a.cfg.Crawler.Burst,
		Hosts:        a.cfg.SiteHostRates(),
	})
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.CrawlTimeout(),
	}, limiter)

	sites, err := site.NewRegistry(
		nicmusic.New(a.cfg.Sites.NicMusic.BaseURL),
		ganja2music.New(a.cfg.Sites.Ganja2Music.BaseURL),
	)
	if err != nil {
		return fmt.Errorf("site registry: %w", err)
	}
	ingest := resolver.New(a.catalog, a.logger.Named("resolver"))
	crawlers := make(map[music.Site]jobs.Crawler)
	for _, s := range sites.Sites() {
		adapter, _ := sites.Get(s)
		crawlers[s] = crawl.NewEngine(adapter, pages, a.catalog, ingest, a.clock, crawl.Config{
			DuplicateThreshold: a.cfg.Crawler.DuplicateThreshold,
			MaxPages:           a.cfg.Crawler.MaxPages,
		}, a.logger.Named("crawl"))
	}

	files := media.NewFetcher(media.FetcherConfig{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.MediaTimeout(),
	}, a.logger.Named("media"))
	downloader := media.NewDownloader(a.catalog, a.blobs, files, a.cfg.Crawler.DownloadBatch, a.logger.Named("media"))

	guard, err := lock.New(a.cfg.Locks.Dir, a.logger.Named("lock"))
	if err != nil {
		return fmt.Errorf("lock guard init failed: %w", err)
	}
	a.registry = jobs.NewRegistry(guard, a.logger.Named("jobs"))
	if err := jobs.RegisterDefaults(a.registry, jobs.Deps{
		Crawlers:   crawlers,
		Downloader: downloader,
		Cleaner:    a.catalog,
		Then:       a.chain,
		Logger:     a.logger.Named("jobs"),
	}); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	a.queue = queueMemory.NewQueue(a.cfg.Queue.Depth)
	var workers []*worker.Worker
	for i := 0; i < a.cfg.Queue.Workers; i++ {
		workers = append(workers, worker.New(
			i,
			a.queue,
			a.registry,
			a.clock,
			worker.Config{JobTimeout: a.cfg.JobTimeout()},
			a.logger.Named("worker"),
		))
	}
	a.dispatch = dispatcher.New(a.queue, workers, uuid.New("run"), a.clock)
	a.logger.Info("jobs registered",
		zap.Int("jobs", len(a.registry.Registered())),
		zap.Int("workers", a.cfg.Queue.Workers),
		zap.Int("queue_depth", a.cfg.Queue.Depth),
	)

	a.mediaSource = downloader
	return nil
}

func (a *App) setupPublisher(_ context.Context) error {
	wp := a.cfg.WordPress
	if wp.BaseURL == "" {
		a.logger.Warn("wordpress.base_url not set; publishing disabled")
		return nil
	}
	client, err := wordpress.NewClient(wordpress.Config{
		BaseURL:  wp.BaseURL,
		Username: wp.Username,
		Password: wp.Password,
		TokenTTL: wp.TokenTTL,
		Timeout:  time.Duration(wp.TimeoutSeconds) * time.Second,
	}, a.clock, a.logger.Named("wordpress"))
	if err != nil {
		return fmt.Errorf("wordpress client init failed: %w", err)
	}
	cms := wordpress.NewPublisher(client, a.mediaSource, a.blobs, a.catalog, wordpress.PublisherConfig{
		AuthorID:      wp.AuthorID,
		Categories:    a.cfg.SiteCategories(),
		PublicBaseURL: a.cfg.Storage.PublicBaseURL,
	}, a.logger.Named("wordpress"))
	a.publisher = publish.New(a.catalog, cms, a.events, a.clock, a.logger.Named("publish"))
	return nil
}

func (a *App) setupScheduler() {
	a.schedule = scheduler.New(a.dispatch, a.logger.Named("scheduler"))
	specs := a.cfg.Schedules()
	// Only registered jobs can be scheduled.
	for name := range specs {
		if !a.registry.Has(name) {
			delete(specs, name)
		}
	}
	if err := a.schedule.AddAll(specs); err != nil {
		a.logger.Error("invalid schedule; scheduler left partially configured", zap.Error(err))
	}
}

func (a *App) setupAPI() {
	deps := api.Deps{
		Jobs:      a.registry,
		Submitter: a.dispatch,
		Schedule:  a.schedule,
		Catalog:   a.catalog,
		Curator:   a.curator,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	a.apiServer = api.NewServer(deps, api.Config{
		AuthEnabled: a.cfg.Auth.Enabled,
		APIKey:      a.cfg.Auth.APIKey,
	}, a.logger.Named("api"))
}

// chain runs the follow-up of a crawl job: queued while serving, inline
// from the CLI.
func (a *App) chain(ctx context.Context, name jobs.Name) error {
	if a.serving.Load() {
		return a.dispatch.Chain(ctx, name)
	}
	outcome, err := a.registry.Run(ctx, name)
	if err != nil {
		return err
	}
	a.logger.Info("chained job finished", zap.String("job", string(name)), zap.String("outcome", string(outcome)))
	return nil
}

// Jobs exposes the job registry.
func (a *App) Jobs() *jobs.Registry { return a.registry }

// Publisher returns the publish service, or nil when WordPress is not configured.
func (a *App) Publisher() *publish.Service { return a.publisher }

// Schedule returns the cron schedule.
func (a *App) Schedule() *scheduler.Scheduler { return a.schedule }

// RunJob runs name synchronously under its lock.
func (a *App) RunJob(ctx context.Context, name jobs.Name) (lock.Outcome, error) {
	return a.registry.Run(ctx, name)
}

// Status lists every registered job with its lock state and schedule.
func (a *App) Status() ([]JobStatus, error) {
	specs := make(map[jobs.Name]string)
	for _, e := range a.schedule.Entries() {
		specs[e.Job] = e.Spec
	}
	names := a.registry.Registered()
	out := make([]JobStatus, 0, len(names))
	for _, name := range names {
		running, err := a.registry.IsRunning(name)
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", name, err)
		}
		out = append(out, JobStatus{Name: name, Running: running, Schedule: specs[name]})
	}
	return out, nil
}

// PublishTrack publishes one track.
func (a *App) PublishTrack(ctx context.Context, id int64) (publish.Result, error) {
	if a.publisher == nil {
		return publish.Result{}, ErrPublishingDisabled
	}
	return a.publisher.Track(ctx, id)
}

// PublishAlbum publishes one album.
func (a *App) PublishAlbum(ctx context.Context, id int64) (publish.Result, error) {
	if a.publisher == nil {
		return publish.Result{}, ErrPublishingDisabled
	}
	return a.publisher.Album(ctx, id)
}

// PublishPending publishes up to limit editable records.
func (a *App) PublishPending(ctx context.Context, limit int) (publish.Batch, error) {
	if a.publisher == nil {
		return publish.Batch{}, ErrPublishingDisabled
	}
	return a.publisher.Pending(ctx, limit)
}

// SetStatus moves a track or album to a new lifecycle status.
func (a *App) SetStatus(ctx context.Context, kind string, id int64, status string) (curate.Change, error) {
	k, err := curate.ParseKind(kind)
	if err != nil {
		return curate.Change{}, err
	}
	st, err := curate.ParseStatus(status)
	if err != nil {
		return curate.Change{}, err
	}
	return a.curator.Set(ctx, k, id, st)
}

// Migrate applies the catalog schema. The memory driver needs none.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("memory catalog; nothing to migrate")
		return nil
	}
	return a.pg.Migrate(ctx)
}

// Run starts the dispatcher, scheduler and HTTP server and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.serving.Store(true)
	defer a.serving.Store(false)
	a.logger.Info("application started")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()
	a.schedule.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.schedule.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop timed out", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients. It is safe after a failed Build.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.closeEv != nil {
		if err := a.closeEv(); err != nil {
			errs = append(errs, fmt.Errorf("events close: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
