// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/queue"
	"github.com/Amir-4m/music-crawler/internal/queue/memory"
	"github.com/Amir-4m/music-crawler/internal/worker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("req-%d", s.n), nil
}

type noopRunner struct{}

func (noopRunner) Run(context.Context, jobs.Name) (lock.Outcome, error) { return lock.Ran, nil }

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	q := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(1, q, noopRunner{}, fixedClock{}, worker.Config{}, zap.NewNop())
	dispatch := New(q, []*worker.Worker{w}, &seqIDs{}, fixedClock{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := &errorQueue{err: errors.New("boom")}
	dispatch := New(q, nil, &seqIDs{}, fixedClock{})

	err := dispatch.Enqueue(context.Background(), queue.Item{ID: "req"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDispatcherSubmit(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := memory.NewQueue(2)
	dispatch := New(q, nil, &seqIDs{}, fixedClock{now: now})

	item, err := dispatch.Submit(context.Background(), "collect_musics_nic", queue.SourceAPI)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	want := queue.Item{ID: "req-1", Job: "collect_musics_nic", Source: queue.SourceAPI, RequestedAt: now}
	if item != want {
		t.Fatalf("Submit() = %+v, want %+v", item, want)
	}

	if err := dispatch.Chain(context.Background(), jobs.CollectFilesNic); err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	chained, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if chained.Job != "collect_files_nic" || chained.Source != queue.SourceChain {
		t.Fatalf("unexpected chained item %+v", chained)
	}

	if _, err := dispatch.Submit(context.Background(), "format_disk", queue.SourceAPI); !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("expected unknown job error, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ queue.Item) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (queue.Item, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return queue.Item{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, queue.Item) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (queue.Item, error) {
	return queue.Item{}, nil
}
