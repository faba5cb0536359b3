// Package jobs is the registry of named, zero-argument jobs that the
// scheduler, the admin API and the CLI can trigger. Every run goes through
// the single-flight lock guard.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/metrics"
)

// Name identifies a job.
type Name string

// Known job names.
const (
	CollectMusicsNic   Name = "collect_musics_nic"
	CollectFilesNic    Name = "collect_files_nic"
	CollectMusicsGanja Name = "collect_musics_ganja"
	CollectFilesGanja  Name = "collect_files_ganja"
	CleanupCatalog     Name = "cleanup_catalog"
)

// Names lists every known job.
var Names = []Name{CollectMusicsNic, CollectFilesNic, CollectMusicsGanja, CollectFilesGanja, CleanupCatalog}

// Job outcomes reported to metrics.
const (
	outcomeRan     = "ran"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

var (
	// ErrUnknownJob is returned for names outside the known set.
	ErrUnknownJob = errors.New("unknown job")
	// ErrNotRegistered is returned for known names with no registered function.
	ErrNotRegistered = errors.New("job not registered")
)

// Func is a job body.
type Func func(ctx context.Context) error

// Parse validates a job name.
func Parse(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, s)
}

// Guard is the single-flight lock used around job bodies.
type Guard interface {
	RunExclusive(ctx context.Context, job string, body func(context.Context) error) (lock.Outcome, error)
	IsRunning(job string) (bool, error)
}

// Registry maps job names to functions.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[Name]Func
	guard  Guard
	logger *zap.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(guard Guard, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{jobs: make(map[Name]Func), guard: guard, logger: logger}
}

// Register binds fn to name. Unknown names, nil functions and duplicate
// registrations are rejected.
func (r *Registry) Register(name Name, fn Func) error {
	if _, err := Parse(string(name)); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("register %s: nil job function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[name]; dup {
		return fmt.Errorf("register %s: already registered", name)
	}
	r.jobs[name] = fn
	return nil
}

// Registered lists registered job names in sorted order.
func (r *Registry) Registered() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.jobs))
	for n := range r.jobs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[name]
	return ok
}

// Run executes the job under its lock. A job that is already running is
// skipped and reported as lock.Skipped with a nil error.
func (r *Registry) Run(ctx context.Context, name Name) (lock.Outcome, error) {
	r.mu.RLock()
	fn, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		if _, err := Parse(string(name)); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	log := r.logger.With(zap.String("job", string(name)))
	outcome, err := r.guard.RunExclusive(ctx, string(name), func(ctx context.Context) error {
		log.Info("job started")
		return fn(ctx)
	})
	switch {
	case err != nil:
		metrics.ObserveJob(string(name), outcomeFailed)
		log.Error("job failed", zap.Error(err))
		return outcome, fmt.Errorf("job %s: %w", name, err)
	case outcome == lock.Skipped:
		metrics.ObserveJob(string(name), outcomeSkipped)
	default:
		metrics.ObserveJob(string(name), outcomeRan)
		log.Info("job finished")
	}
	return outcome, nil
}

// IsRunning reports whether the job currently holds its lock.
func (r *Registry) IsRunning(name Name) (bool, error) {
	if _, err := Parse(string(name)); err != nil {
		return false, err
	}
	running, err := r.guard.IsRunning(string(name))
	if err != nil {
		return false, fmt.Errorf("job %s status: %w", name, err)
	}
	return running, nil
}
