// Package memory provides an in-process job request queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amir-4m/music-crawler/internal/queue"
)

// Queue is a bounded in-memory queue. Close stops new requests; items
// already waiting are still handed out before Dequeue reports ErrClosed.
type Queue struct {
	ch   chan queue.Item
	done chan struct{}
	once sync.Once
}

var _ queue.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding at most capacity waiting requests.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	return &Queue{
		ch:   make(chan queue.Item, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue waits for room in the queue. It fails with queue.ErrClosed after
// Close, including when Close happens while waiting.
func (q *Queue) Enqueue(ctx context.Context, item queue.Item) error {
	select {
	case <-q.done:
		return queue.ErrClosed
	default:
	}
	select {
	case <-q.done:
		return queue.ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (queue.Item, error) {
	select {
	case item := <-q.ch:
		return item, nil
	default:
	}
	select {
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return queue.Item{}, queue.ErrClosed
		}
	case <-ctx.Done():
		return queue.Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	}
}

// Len reports the number of waiting requests.
func (q *Queue) Len() int { return len(q.ch) }

// Close rejects further requests. It is safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
