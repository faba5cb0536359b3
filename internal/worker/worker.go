// Package worker executes queued job requests.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/queue"
)

// Runner executes a named job under its lock.
type Runner interface {
	Run(ctx context.Context, name jobs.Name) (lock.Outcome, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single job run; zero means no bound.
	JobTimeout time.Duration
}

// Result describes one processed request.
type Result struct {
	Item     queue.Item
	Outcome  lock.Outcome
	Err      error
	Started  time.Time
	Finished time.Time
}

// Worker consumes queue items and runs the requested jobs.
type Worker struct {
	id     int
	queue  queue.Queue
	runner Runner
	clock  music.Clock
	cfg    Config
	logger *zap.Logger
	// onResult is a test hook.
	onResult func(Result)
}

// New constructs a Worker.
func New(
	id int,
	q queue.Queue,
	runner Runner,
	clock music.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  q,
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job request",
			zap.String("request_id", item.ID),
			zap.String("job", item.Job),
		)
		res := w.process(ctx, item)
		if w.onResult != nil {
			w.onResult(res)
		}
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) Result {
	res := Result{Item: item, Started: w.clock.Now()}
	log := w.logger.With(
		zap.String("request_id", item.ID),
		zap.String("job", item.Job),
		zap.String("source", item.Source),
	)

	name, err := jobs.Parse(item.Job)
	if err != nil {
		log.Error("rejected job request", zap.Error(err))
		res.Err = err
		res.Finished = w.clock.Now()
		return res
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	runCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	res.Outcome, res.Err = w.runner.Run(runCtx, name)
	res.Finished = w.clock.Now()

	switch {
	case res.Err != nil:
		log.Error("job request failed", zap.Error(res.Err))
	case res.Outcome == lock.Skipped:
		log.Info("job request skipped, already running")
	default:
		log.Info("job request done", zap.Duration("duration", res.Finished.Sub(res.Started)))
	}
	return res
}
