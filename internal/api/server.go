package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/curate"
	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/middleware"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/publish"
	"github.com/Amir-4m/music-crawler/internal/queue"
	"github.com/Amir-4m/music-crawler/internal/scheduler"
)

// JobRegistry lists jobs and reports lock status.
type JobRegistry interface {
	Registered() []jobs.Name
	Has(name jobs.Name) bool
	IsRunning(name jobs.Name) (bool, error)
}

// Submitter queues a job request.
type Submitter interface {
	Submit(ctx context.Context, name string, source string) (queue.Item, error)
}

// Schedule lists cron entries.
type Schedule interface {
	Entries() []scheduler.Entry
}

// Catalog is the read side used by the export.
type Catalog interface {
	ListTracks(ctx context.Context) ([]music.Track, error)
	GetArtist(ctx context.Context, id int64) (music.Artist, error)
}

// PublishService publishes records on demand.
type PublishService interface {
	Track(ctx context.Context, id int64) (publish.Result, error)
	Album(ctx context.Context, id int64) (publish.Result, error)
	Pending(ctx context.Context, limit int) (publish.Batch, error)
}

// Curator changes record lifecycle status.
type Curator interface {
	Set(ctx context.Context, kind curate.Kind, id int64, status music.Status) (curate.Change, error)
}

// Config controls the server.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	SubmitTimeout  time.Duration
}

// Deps are the collaborators behind the routes. Schedule, Publisher and
// Curator may be nil.
type Deps struct {
	Jobs      JobRegistry
	Submitter Submitter
	Schedule  Schedule
	Catalog   Catalog
	Publisher PublishService
	Curator   Curator
}

// Server wires HTTP handlers to the job registry, the queue and the catalog.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.AuthEnabled {
			r.Use(middleware.APIKey(cfg.APIKey))
		}
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/{name}", s.submitJob)
			r.Get("/{name}/status", s.jobStatus)
		})
		r.Get("/tracks/export", s.exportTracks)
		if deps.Publisher != nil {
			r.Post("/tracks/{id}/publish", s.publishTrack)
			r.Post("/albums/{id}/publish", s.publishAlbum)
			r.Post("/publish/pending", s.publishPending)
		}
		if deps.Curator != nil {
			r.Post("/tracks/{id}/status", s.setStatus(curate.KindTrack))
			r.Post("/albums/{id}/status", s.setStatus(curate.KindAlbum))
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Jobs == nil || s.deps.Submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "job runner not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
