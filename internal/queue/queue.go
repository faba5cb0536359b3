// Package queue defines the job request queue shared by the admin API, the
// scheduler and the worker pool.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned once a queue has been closed.
var ErrClosed = errors.New("queue closed")

// Sources of a job request.
const (
	SourceAPI       = "api"
	SourceScheduler = "scheduler"
	SourceChain     = "chain"
)

// Item is one request to run a named job.
type Item struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
}

// Queue moves job requests to workers.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
}
