// Package jobs implements the scheduled dispatch jobs: the reminder matcher,
// the weekly report aggregator and the daily feedback generator. Each job
// fans its deliveries out in parallel and reports per-item outcomes as counts.
package jobs

import (
	"time"

	"github.com/BTreeMap/HabitLine/internal/genai"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// DefaultConcurrency bounds the number of deliveries in flight per job.
const DefaultConcurrency = 8

// Opts configures a Runner.
type Opts struct {
	Now         func() time.Time
	Concurrency int
}

// Option configures a Runner.
type Option func(*Opts)

// WithClock overrides the job clock.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithConcurrency sets the fan-out limit. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// Runner runs the scheduled jobs against a store, a sender and a completer.
// It keeps no state between invocations.
type Runner struct {
	store     store.Store
	sender    messaging.Sender
	completer genai.Completer
	now       func() time.Time
	limit     int
}

// NewRunner creates a Runner. completer may be nil, in which case feedback
// always uses the persona fallback text.
func NewRunner(st store.Store, sender messaging.Sender, completer genai.Completer, opts ...Option) *Runner {
	cfg := Opts{Now: time.Now, Concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{
		store:     st,
		sender:    sender,
		completer: completer,
		now:       cfg.Now,
		limit:     cfg.Concurrency,
	}
}
