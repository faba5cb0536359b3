package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/curate"
	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/publish"
	"github.com/Amir-4m/music-crawler/internal/queue"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

type jobDTO struct {
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	Schedule string `json:"schedule,omitempty"`
}

// listJobs handles GET /v1/jobs.
func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	schedules := map[jobs.Name]string{}
	if s.deps.Schedule != nil {
		for _, e := range s.deps.Schedule.Entries() {
			schedules[e.Job] = e.Spec
		}
	}
	names := s.deps.Jobs.Registered()
	out := make([]jobDTO, 0, len(names))
	for _, name := range names {
		running, err := s.deps.Jobs.IsRunning(name)
		if err != nil {
			s.logger.Error("job status failed", zap.String("job", string(name)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read job status")
			return
		}
		out = append(out, jobDTO{Name: string(name), Running: running, Schedule: schedules[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) jobName(w http.ResponseWriter, r *http.Request) (jobs.Name, bool) {
	name, err := jobs.Parse(chi.URLParam(r, "name"))
	if err != nil || !s.deps.Jobs.Has(name) {
		writeError(w, http.StatusNotFound, "job not found")
		return "", false
	}
	return name, true
}

// submitJob handles POST /v1/jobs/{name}. The job runs asynchronously; the
// response carries the request id.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	name, ok := s.jobName(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SubmitTimeout)
	defer cancel()
	item, err := s.deps.Submitter.Submit(ctx, string(name), queue.SourceAPI)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("job submit failed", zap.String("job", string(name)), zap.Error(err))
		writeError(w, status, "failed to queue job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"request": item})
}

// jobStatus handles GET /v1/jobs/{name}/status.
func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	name, ok := s.jobName(w, r)
	if !ok {
		return
	}
	running, err := s.deps.Jobs.IsRunning(name)
	if err != nil {
		s.logger.Error("job status failed", zap.String("job", string(name)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}
	writeJSON(w, http.StatusOK, jobDTO{Name: string(name), Running: running})
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// publishTrack handles POST /v1/tracks/{id}/publish.
func (s *Server) publishTrack(w http.ResponseWriter, r *http.Request) {
	s.publishOne(w, r, s.deps.Publisher.Track)
}

// publishAlbum handles POST /v1/albums/{id}/publish.
func (s *Server) publishAlbum(w http.ResponseWriter, r *http.Request) {
	s.publishOne(w, r, s.deps.Publisher.Album)
}

func (s *Server) publishOne(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (publish.Result, error)) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := fn(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, music.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, publish.ErrAlreadyPublished):
		writeError(w, http.StatusConflict, "record already published")
	default:
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "publish failed", "result": res})
	}
}

// publishPending handles POST /v1/publish/pending?limit=.
func (s *Server) publishPending(w http.ResponseWriter, r *http.Request) {
	limit := defaultPendingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(val, maxPendingLimit)
	}
	batch, err := s.deps.Publisher.Pending(r.Context(), limit)
	if err != nil {
		s.logger.Error("pending publish failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "pending publish failed", "batch": batch})
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type statusRequest struct {
	Status string `json:"status"`
}

// setStatus handles POST /v1/tracks/{id}/status and /v1/albums/{id}/status
// with a body of {"status": "editable"}.
func (s *Server) setStatus(kind curate.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var req statusRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		status, err := curate.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		change, err := s.deps.Curator.Set(r.Context(), kind, id, status)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, change)
		case errors.Is(err, music.ErrNotFound):
			writeError(w, http.StatusNotFound, "record not found")
		case errors.Is(err, music.ErrAlreadyPublished):
			writeError(w, http.StatusConflict, "record already published")
		default:
			s.logger.Error("status change failed", zap.String("kind", string(kind)), zap.Int64("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "status change failed")
		}
	}
}
