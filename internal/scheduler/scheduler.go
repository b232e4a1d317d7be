// Package scheduler fires the dispatch jobs on cron expressions inside the
// process, as an alternative to an external trigger calling the job endpoints.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/HabitLine/internal/models"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 5 * time.Minute

// JobFunc is one scheduled job invocation.
type JobFunc func(ctx context.Context) (models.JobResponse, error)

// Opts configures a Scheduler.
type Opts struct {
	Location *time.Location
	Timeout  time.Duration
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithLocation sets the zone cron expressions are evaluated in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithJobTimeout sets the per-run deadline.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	cfg := Opts{Location: time.UTC, Timeout: DefaultJobTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	// Standard 5-field parser (min, hour, dom, month, dow) plus @every/@daily descriptors.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Scheduler{cron: c, timeout: cfg.Timeout}
}

// Schedule registers job under name. An empty expression leaves the job
// unscheduled and is not an error.
func (s *Scheduler) Schedule(name, expr string, job JobFunc) error {
	if expr == "" {
		slog.Debug("Scheduler.Schedule: no expression, skipping", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(expr, func() { s.Run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, expr, err)
	}
	slog.Info("Scheduler.Schedule: job scheduled", "job", name, "expr", expr)
	return nil
}

// Run executes job once with the configured timeout and logs its outcome.
func (s *Scheduler) Run(name string, job JobFunc) models.JobResponse {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := job(ctx)
	if err != nil {
		slog.Error("Scheduler.Run: job failed", "job", name, "error", err)
		return models.JobResponse{Success: false, Message: err.Error()}
	}
	slog.Info("Scheduler.Run: job finished", "job", name, "total", resp.Total, "successful", resp.Successful, "failed", resp.Failed, "elapsed", time.Since(start))
	return resp
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins firing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
