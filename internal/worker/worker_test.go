package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/queue"
	"github.com/Amir-4m/music-crawler/internal/queue/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRunner struct {
	mu       sync.Mutex
	ran      []jobs.Name
	outcome  lock.Outcome
	err      error
	deadline bool
}

func (r *fakeRunner) Run(ctx context.Context, name jobs.Name) (lock.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, name)
	_, r.deadline = ctx.Deadline()
	return r.outcome, r.err
}

func (r *fakeRunner) names() []jobs.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Name(nil), r.ran...)
}

func startWorker(t *testing.T, q queue.Queue, runner Runner, cfg Config) (<-chan Result, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 8)
	w := New(1, q, runner, &fakeClock{now: time.Unix(100, 0)}, cfg, zap.NewNop())
	w.onResult = func(r Result) { results <- r }
	go w.Run(ctx)
	t.Cleanup(cancel)
	return results, cancel
}

func nextResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(time.Second):
		t.Fatal("worker did not process request")
		return Result{}
	}
}

func TestWorker_RunsRequestedJob(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	runner := &fakeRunner{outcome: lock.Ran}
	results, _ := startWorker(t, q, runner, Config{JobTimeout: time.Minute})

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{ID: "r1", Job: "collect_musics_nic", Source: queue.SourceAPI}))
	res := nextResult(t, results)
	require.NoError(t, res.Err)
	require.Equal(t, lock.Ran, res.Outcome)
	require.Equal(t, []jobs.Name{jobs.CollectMusicsNic}, runner.names())
	require.True(t, runner.deadline)
}

func TestWorker_ReportsSkippedAndFailedRuns(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	runner := &fakeRunner{outcome: lock.Skipped}
	results, _ := startWorker(t, q, runner, Config{})

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{ID: "r1", Job: "collect_files_nic"}))
	res := nextResult(t, results)
	require.NoError(t, res.Err)
	require.Equal(t, lock.Skipped, res.Outcome)
	require.False(t, runner.deadline)

	runner.mu.Lock()
	runner.outcome, runner.err = lock.Ran, errors.New("boom")
	runner.mu.Unlock()
	require.NoError(t, q.Enqueue(context.Background(), queue.Item{ID: "r2", Job: "cleanup_catalog"}))
	res = nextResult(t, results)
	require.EqualError(t, res.Err, "boom")
}

func TestWorker_RejectsUnknownJobs(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	runner := &fakeRunner{outcome: lock.Ran}
	results, _ := startWorker(t, q, runner, Config{})

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{ID: "r1", Job: "drop_tables"}))
	res := nextResult(t, results)
	require.ErrorIs(t, res.Err, jobs.ErrUnknownJob)
	require.Empty(t, runner.names())
}

func TestWorker_StopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New(1, q, &fakeRunner{}, &fakeClock{}, Config{}, nil)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

func TestWorker_ContinuesAfterDequeueError(t *testing.T) {
	t.Parallel()

	q := &flakyQueue{items: []queue.Item{{ID: "r1", Job: "collect_musics_ganja"}}}
	runner := &fakeRunner{outcome: lock.Ran}
	results, _ := startWorker(t, q, runner, Config{})

	res := nextResult(t, results)
	require.Equal(t, "r1", res.Item.ID)
	require.Equal(t, []jobs.Name{jobs.CollectMusicsGanja}, runner.names())
}

// flakyQueue fails its first Dequeue, then serves items, then blocks.
type flakyQueue struct {
	mu     sync.Mutex
	failed bool
	items  []queue.Item
}

func (q *flakyQueue) Enqueue(context.Context, queue.Item) error { return nil }

func (q *flakyQueue) Dequeue(ctx context.Context) (queue.Item, error) {
	q.mu.Lock()
	if !q.failed {
		q.failed = true
		q.mu.Unlock()
		return queue.Item{}, fmt.Errorf("transient broker error")
	}
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return queue.Item{}, ctx.Err()
}
