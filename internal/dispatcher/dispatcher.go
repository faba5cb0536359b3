// Package dispatcher manages worker fan-out over the job request queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/queue"
	"github.com/Amir-4m/music-crawler/internal/worker"
)

// IDGenerator issues request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
	ids     IDGenerator
	clock   music.Clock
}

// New creates a Dispatcher.
func New(q queue.Queue, workers []*worker.Worker, ids IDGenerator, clock music.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		workers: workers,
		ids:     ids,
		clock:   clock,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item queue.Item) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit validates name and queues a request to run it.
func (d *Dispatcher) Submit(ctx context.Context, name string, source string) (queue.Item, error) {
	job, err := jobs.Parse(name)
	if err != nil {
		return queue.Item{}, err
	}
	id, err := d.ids.NewID()
	if err != nil {
		return queue.Item{}, fmt.Errorf("request id: %w", err)
	}
	item := queue.Item{
		ID:          id,
		Job:         string(job),
		Source:      source,
		RequestedAt: d.clock.Now(),
	}
	if err := d.Enqueue(ctx, item); err != nil {
		return queue.Item{}, err
	}
	return item, nil
}

// Chain adapts Submit for job chaining.
func (d *Dispatcher) Chain(ctx context.Context, name jobs.Name) error {
	_, err := d.Submit(ctx, string(name), queue.SourceChain)
	return err
}
