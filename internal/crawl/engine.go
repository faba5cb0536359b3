package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/resolver"
	"github.com/Amir-4m/music-crawler/internal/site"
)

// DefaultDuplicateThreshold is a full list page on both supported sites.
const DefaultDuplicateThreshold = 30

// State is a step of the crawl state machine.
type State string

// Crawl states.
const (
	StateStart         State = "start"
	StateFetchListPage State = "fetch_list_page"
	StateYieldItems    State = "yield_items"
	StateFetchNextPage State = "fetch_next_page"
	StateStop          State = "stop"
	StateEnd           State = "end"
)

// Item outcomes reported to metrics.
const (
	OutcomeCreated      = "created"
	OutcomeExisting     = "existing"
	OutcomeKnown        = "known"
	OutcomeFetchError   = "fetch_error"
	OutcomeExtractError = "extract_error"
	OutcomeStoreError   = "store_error"
)

// Ingester stores a normalized record.
type Ingester interface {
	Ingest(ctx context.Context, rec music.Record) (resolver.Result, error)
}

// SiteIDChecker reports which site ids are already stored.
type SiteIDChecker interface {
	ExistingSiteIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// Config tunes a crawl run.
type Config struct {
	// DuplicateThreshold stops pagination once a list page has at least
	// this many already stored items.
	DuplicateThreshold int
	// MaxPages caps the number of list pages; zero means no cap.
	MaxPages int
}

// Stats summarises a crawl run.
type Stats struct {
	Site                music.Site `json:"site"`
	Pages               int        `json:"pages"`
	Items               int        `json:"items"`
	Created             int        `json:"created"`
	Existing            int        `json:"existing"`
	Known               int        `json:"known"`
	Failed              int        `json:"failed"`
	StoppedOnDuplicates bool       `json:"stopped_on_duplicates"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          time.Time  `json:"finished_at"`
}

// Engine crawls one site.
type Engine struct {
	adapter  site.Adapter
	fetcher  Fetcher
	checker  SiteIDChecker
	ingester Ingester
	clock    music.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(
	adapter site.Adapter,
	fetcher Fetcher,
	checker SiteIDChecker,
	ingester Ingester,
	clock music.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = DefaultDuplicateThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		adapter:  adapter,
		fetcher:  fetcher,
		checker:  checker,
		ingester: ingester,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(zap.String("site", string(adapter.Site()))),
	}
}

// Run executes one crawl. Only a failure on the first list page, a store
// lookup failure or context cancellation is returned as an error; item
// failures are logged and counted.
func (e *Engine) Run(ctx context.Context) (stats Stats, err error) {
	stats = Stats{Site: e.adapter.Site(), StartedAt: e.clock.Now()}
	defer func() { stats.FinishedAt = e.clock.Now() }()

	var (
		state    = StateStart
		pageURL  = e.adapter.FirstListURL()
		pageNum  = 1
		listPage site.ListPage
		known    map[string]struct{}
	)
	for state != StateEnd {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, fmt.Errorf("crawl %s canceled: %w", stats.Site, ctxErr)
		}
		switch state {
		case StateStart:
			e.logger.Info("crawl started", zap.String("url", pageURL))
			state = StateFetchListPage

		case StateFetchListPage:
			page, err := e.fetchListPage(ctx, pageURL, pageNum)
			if err != nil {
				if pageNum == 1 {
					return stats, err
				}
				e.logger.Warn("list page failed, stopping", zap.Int("page", pageNum), zap.Error(err))
				state = StateStop
				continue
			}
			stats.Pages++
			metrics.ObserveListPage(string(stats.Site))
			listPage = page
			if len(page.Items) == 0 {
				state = StateStop
				continue
			}
			known, err = e.checker.ExistingSiteIDs(ctx, siteIDs(page.Items))
			if err != nil {
				return stats, fmt.Errorf("check stored site ids: %w", err)
			}
			if len(known) >= e.cfg.DuplicateThreshold {
				e.logger.Info("list page already stored, stopping",
					zap.Int("page", pageNum),
					zap.Int("known", len(known)),
				)
				stats.StoppedOnDuplicates = true
				state = StateStop
				continue
			}
			state = StateYieldItems

		case StateYieldItems:
			for _, item := range listPage.Items {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stats, fmt.Errorf("crawl %s canceled: %w", stats.Site, ctxErr)
				}
				stats.Items++
				if _, ok := known[item.SiteID]; ok {
					stats.Known++
					metrics.ObserveItem(string(stats.Site), OutcomeKnown)
					continue
				}
				e.processItem(ctx, item, &stats)
			}
			state = StateFetchNextPage

		case StateFetchNextPage:
			if listPage.NextURL == "" || (e.cfg.MaxPages > 0 && pageNum >= e.cfg.MaxPages) {
				state = StateStop
				continue
			}
			pageURL = listPage.NextURL
			pageNum++
			state = StateFetchListPage

		case StateStop:
			e.logger.Info("crawl finished",
				zap.Int("pages", stats.Pages),
				zap.Int("items", stats.Items),
				zap.Int("created", stats.Created),
				zap.Int("failed", stats.Failed),
				zap.Bool("stopped_on_duplicates", stats.StoppedOnDuplicates),
			)
			state = StateEnd
		}
	}
	return stats, nil
}

func (e *Engine) fetchListPage(ctx context.Context, pageURL string, pageNum int) (site.ListPage, error) {
	page, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return site.ListPage{}, fmt.Errorf("fetch list page %d: %w", pageNum, err)
	}
	doc, err := page.Document()
	if err != nil {
		return site.ListPage{}, fmt.Errorf("list page %d: %w", pageNum, err)
	}
	list, err := e.adapter.ParseListPage(doc, pageNum)
	if err != nil {
		return site.ListPage{}, fmt.Errorf("parse list page %d: %w", pageNum, err)
	}
	return list, nil
}

func (e *Engine) processItem(ctx context.Context, item site.ListItem, stats *Stats) {
	log := e.logger.With(zap.String("site_id", item.SiteID), zap.String("url", item.URL))
	outcome := e.ingestItem(ctx, item, log)
	metrics.ObserveItem(string(stats.Site), outcome)
	switch outcome {
	case OutcomeCreated:
		stats.Created++
	case OutcomeExisting:
		stats.Existing++
	default:
		stats.Failed++
	}
}

func (e *Engine) ingestItem(ctx context.Context, item site.ListItem, log *zap.Logger) string {
	page, err := e.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		log.Warn("item fetch failed", zap.Bool("transient", isTransient(err)), zap.Error(err))
		return OutcomeFetchError
	}
	doc, err := page.Document()
	if err != nil {
		log.Warn("item parse failed", zap.Error(err))
		return OutcomeExtractError
	}
	rec, err := e.adapter.ExtractRecord(doc, item)
	if err != nil {
		log.Warn("item extraction failed", zap.Error(err))
		return OutcomeExtractError
	}
	res, err := e.ingester.Ingest(ctx, rec)
	if err != nil {
		log.Warn("item store failed", zap.Error(err))
		return OutcomeStoreError
	}
	if res.Created > 0 {
		log.Debug("item stored", zap.Int64("artist_id", res.ArtistID), zap.Int("created", res.Created))
		return OutcomeCreated
	}
	return OutcomeExisting
}

func isTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func siteIDs(items []site.ListItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.SiteID)
	}
	return ids
}
