package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := New(filepath.Join(t.TempDir(), "locks"), zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestRunExclusiveSkipsOverlappingRun(t *testing.T) {
	t.Parallel()
	g := newGuard(t)
	ctx := context.Background()

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err := g.RunExclusive(ctx, "job_x", func(context.Context) error {
			calls.Add(1)
			close(entered)
			<-release
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, Ran, outcome)
	}()

	<-entered
	outcome, err := g.RunExclusive(ctx, "job_x", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)

	running, err := g.IsRunning("job_x")
	require.NoError(t, err)
	assert.True(t, running)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	running, err = g.IsRunning("job_x")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestRunExclusiveIsPerJob(t *testing.T) {
	t.Parallel()
	g := newGuard(t)
	ctx := context.Background()

	outcome, err := g.RunExclusive(ctx, "collect_musics_nic", func(ctx context.Context) error {
		inner, err := g.RunExclusive(ctx, "collect_files_nic", func(context.Context) error { return nil })
		assert.Equal(t, Ran, inner)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, Ran, outcome)
}

func TestRunExclusiveReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()
	g := newGuard(t)
	ctx := context.Background()
	boom := errors.New("boom")

	outcome, err := g.RunExclusive(ctx, "job", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Ran, outcome)

	assert.Panics(t, func() {
		_, _ = g.RunExclusive(ctx, "job", func(context.Context) error { panic("kaboom") })
	})

	_, statErr := os.Stat(filepath.Join(g.Dir(), "job.pid"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	outcome, err = g.RunExclusive(ctx, "job", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Ran, outcome)
}

func TestRunExclusiveWritesPID(t *testing.T) {
	t.Parallel()
	g := newGuard(t)

	_, err := g.RunExclusive(context.Background(), "job", func(context.Context) error {
		raw, err := os.ReadFile(filepath.Join(g.Dir(), "job.pid"))
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(raw))
		return nil
	})
	require.NoError(t, err)
}

func TestIsRunningIgnoresStaleFiles(t *testing.T) {
	t.Parallel()
	g := newGuard(t)

	require.NoError(t, os.WriteFile(filepath.Join(g.Dir(), "stale.pid"), []byte("999999999\n"), 0o644))
	running, err := g.IsRunning("stale")
	require.NoError(t, err)
	assert.False(t, running)

	outcome, err := g.RunExclusive(context.Background(), "stale", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Ran, outcome)
}

func TestRunningListsHeldLocks(t *testing.T) {
	t.Parallel()
	g := newGuard(t)

	_, err := g.RunExclusive(context.Background(), "b_job", func(context.Context) error {
		_, err := g.RunExclusive(context.Background(), "a_job", func(context.Context) error {
			jobs, err := g.Running()
			require.NoError(t, err)
			assert.Equal(t, []string{"a_job", "b_job"}, jobs)
			return nil
		})
		return err
	})
	require.NoError(t, err)

	jobs, err := g.Running()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestInvalidJobNames(t *testing.T) {
	t.Parallel()
	g := newGuard(t)

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := g.RunExclusive(context.Background(), name, func(context.Context) error { return nil })
		require.ErrorIs(t, err, ErrInvalidJobName, name)
		_, err = g.IsRunning(name)
		require.ErrorIs(t, err, ErrInvalidJobName, name)
	}
}

func TestNewRequiresDir(t *testing.T) {
	t.Parallel()
	_, err := New(" ", nil)
	require.Error(t, err)
}
