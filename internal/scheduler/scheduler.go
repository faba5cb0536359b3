// Package scheduler submits jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/queue"
)

// Defaults are the schedules used when configuration names none.
func Defaults() map[jobs.Name]string {
	return map[jobs.Name]string{
		jobs.CollectMusicsNic: "0 */6 * * *",
		jobs.CollectFilesNic:  "0 */10 * * *",
	}
}

// Submitter queues a job request.
type Submitter interface {
	Submit(ctx context.Context, name string, source string) (queue.Item, error)
}

// Entry describes one scheduled job.
type Entry struct {
	Job  jobs.Name `json:"job"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler wraps a cron instance that submits job requests.
type Scheduler struct {
	cron      *cron.Cron
	parser    cron.Parser
	submitter Submitter
	logger    *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[jobs.Name]scheduled
}

type scheduled struct {
	id   cron.EntryID
	spec string
}

// New constructs a stopped Scheduler.
func New(submitter Submitter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLog := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cron:      cron.New(cron.WithParser(parser), cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		parser:    parser,
		submitter: submitter,
		logger:    logger,
		ctx:       context.Background(),
		entries:   make(map[jobs.Name]scheduled),
	}
}

// Add schedules name on spec, replacing an earlier schedule for the same job.
// An empty spec removes the job from the schedule.
func (s *Scheduler) Add(name jobs.Name, spec string) error {
	if _, err := jobs.Parse(string(name)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
		delete(s.entries, name)
	}
	if spec == "" {
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: parse %q: %w", name, spec, err)
	}
	id, err := s.cron.AddFunc(spec, func() { s.trigger(name) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = scheduled{id: id, spec: spec}
	s.logger.Info("job scheduled", zap.String("job", string(name)), zap.String("spec", spec))
	return nil
}

// AddAll schedules every job in specs.
func (s *Scheduler) AddAll(specs map[jobs.Name]string) error {
	names := make([]jobs.Name, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, n := range names {
		if err := s.Add(n, specs[n]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) trigger(name jobs.Name) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	item, err := s.submitter.Submit(ctx, string(name), queue.SourceScheduler)
	if err != nil {
		s.logger.Error("scheduled submit failed", zap.String("job", string(name)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job submitted", zap.String("job", string(name)), zap.String("request_id", item.ID))
}

// Entries lists the scheduled jobs with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, Entry{Job: name, Spec: e.spec, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// Start runs the cron loop; submissions use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron loop and waits for running triggers or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ logger *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
