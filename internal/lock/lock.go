// Package lock guards jobs against overlapping runs with per-job lock files.
//
// Each running job owns <dir>/<job>.pid: the file holds the owner pid and
// an exclusive flock. The file is removed on release, so the directory
// listing doubles as a status view for other processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Outcome reports whether the guarded body ran.
type Outcome string

// Outcomes of RunExclusive.
const (
	Ran     Outcome = "ran"
	Skipped Outcome = "skipped"
)

const pidSuffix = ".pid"

// ErrInvalidJobName is returned for names that cannot be used as a file name.
var ErrInvalidJobName = errors.New("invalid job name")

// Guard runs jobs exclusively per job name.
type Guard struct {
	dir    string
	logger *zap.Logger
}

// New creates the lock directory if needed and returns a Guard over it.
func New(dir string, logger *zap.Logger) (*Guard, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{dir: dir, logger: logger}, nil
}

// Dir returns the lock directory.
func (g *Guard) Dir() string { return g.dir }

func (g *Guard) path(job string) (string, error) {
	if job == "" || job != filepath.Base(job) || strings.HasPrefix(job, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobName, job)
	}
	return filepath.Join(g.dir, job+pidSuffix), nil
}

// RunExclusive invokes body unless another holder owns the job's lock, in
// which case it returns Skipped without calling body. The lock is released
// on every exit path, including a panic in body.
func (g *Guard) RunExclusive(ctx context.Context, job string, body func(context.Context) error) (Outcome, error) {
	path, err := g.path(job)
	if err != nil {
		return "", err
	}
	f, err := acquire(path)
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", job, err)
	}
	if f == nil {
		g.logger.Info("job already running, skipped", zap.String("job", job))
		return Skipped, nil
	}
	defer g.release(job, path, f)

	return Ran, body(ctx)
}

// acquire returns nil, nil when the lock is held elsewhere.
func acquire(path string) (*os.File, error) {
	// A holder may unlink the file between our open and flock; retry until
	// the locked descriptor still matches the path.
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, err
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			_ = f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, nil
			}
			return nil, fmt.Errorf("flock: %w", err)
		}
		if !samePath(f, path) {
			_ = f.Close()
			continue
		}
		if err := writePID(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return f, nil
	}
	return nil, nil
}

func samePath(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (g *Guard) release(job, path string, f *os.File) {
	// Unlink while still holding the lock so no waiter locks a dead file.
	if samePath(f, path) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn("remove lock file", zap.String("job", job), zap.Error(err))
		}
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		g.logger.Warn("unlock", zap.String("job", job), zap.Error(err))
	}
	if err := f.Close(); err != nil {
		g.logger.Warn("close lock file", zap.String("job", job), zap.Error(err))
	}
}

// IsRunning reports whether job currently holds its lock. It only reads the
// lock directory; a lock file left behind by a dead process is ignored.
func (g *Guard) IsRunning(job string) (bool, error) {
	path, err := g.path(job)
	if err != nil {
		return false, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock file %s: %w", job, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		// The holder has created the file but not yet written its pid.
		return true, nil
	}
	return processAlive(pid), nil
}

// Running lists the jobs that currently hold a lock.
func (g *Guard) Running() ([]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("read lock directory: %w", err)
	}
	var jobs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pidSuffix) {
			continue
		}
		job := strings.TrimSuffix(name, pidSuffix)
		running, err := g.IsRunning(job)
		if err != nil {
			return nil, err
		}
		if running {
			jobs = append(jobs, job)
		}
	}
	sort.Strings(jobs)
	return jobs, nil
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
