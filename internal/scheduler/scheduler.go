package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

// JobFunc is the work a schedule entry performs.
type JobFunc func(ctx context.Context) error

// Scheduler runs outreach jobs on cron expressions. A job still running when
// its next tick fires is skipped rather than stacked.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	timeout time.Duration
	logger  *logging.Logger
	baseCtx context.Context
}

func New(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	adapter := cronLogger{logger: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter))),
		jobs:    make(map[string]cron.EntryID),
		timeout: time.Hour,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// WithJobTimeout bounds every job run.
func (s *Scheduler) WithJobTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Add registers a named job. An empty schedule leaves the job disabled.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("scheduler: job %s has no function", name)
	}
	if schedule == "" || schedule == "off" {
		s.logger.Info("scheduled job disabled", "job", name)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", name)
	}
	id, err := s.cron.AddFunc(schedule, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", schedule, name, err)
	}
	s.jobs[name] = id
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// Start runs the cron loop until ctx is cancelled, then waits for in-flight
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// JobCount returns the number of enabled jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Next reports when a job fires next. False if the job is unknown or the
// scheduler has not started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.Lock()
	parent := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
}

// RunCycleJob runs one routing cycle per tick. An overlapping cycle is not an error.
func RunCycleJob(runner outreach.CycleRunner, logger *logging.Logger) JobFunc {
	return func(ctx context.Context) error {
		report, err := runner.RunCycle(ctx, "cron")
		if errors.Is(err, outreach.ErrCycleInProgress) {
			logger.Info("cron cycle skipped: cycle already running")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("cron cycle finished", "cycle_id", report.CycleID, "applied", report.Applied, "skipped", report.Skipped, "failed", report.Failed)
		return nil
	}
}

// CheckRepliesJob polls the sender mailboxes once per tick.
func CheckRepliesJob(checker inbox.ReplyChecker, logger *logging.Logger) JobFunc {
	return func(ctx context.Context) error {
		report, err := checker.CheckReplies(ctx)
		if err != nil {
			return err
		}
		if report.Recorded > 0 {
			logger.Info("cron reply check recorded replies", "recorded", report.Recorded)
		}
		return nil
	}
}

type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
