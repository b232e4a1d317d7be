// Package store provides the RetryRunner that drains the retry queue.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

// RetryHandler re-attempts the work recorded in a retry job.
type RetryHandler func(ctx context.Context, job models.RetryJob) error

// RetryRunner periodically claims due retry jobs and dispatches them to
// handlers registered per operation type.
type RetryRunner struct {
	repo           RetryRepo
	handlers       map[models.RetryOperation]RetryHandler
	mu             sync.RWMutex
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	baseBackoff    time.Duration
	now            func() time.Time
}

// NewRetryRunner creates a new RetryRunner.
func NewRetryRunner(repo RetryRepo, pollInterval time.Duration) *RetryRunner {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &RetryRunner{
		repo:           repo,
		handlers:       make(map[models.RetryOperation]RetryHandler),
		pollInterval:   pollInterval,
		staleThreshold: 10 * time.Minute,
		claimLimit:     20,
		baseBackoff:    DefaultRetryDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RegisterHandler registers a handler for an operation type.
func (r *RetryRunner) RegisterHandler(op models.RetryOperation, handler RetryHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[op] = handler
	slog.Debug("RetryRunner.RegisterHandler", "operation", op)
}

// RecoverStaleJobs requeues jobs that were running when the process died.
// Should be called once at startup.
func (r *RetryRunner) RecoverStaleJobs(ctx context.Context) error {
	n, err := r.repo.RequeueStaleRetries(ctx, r.now().Add(-r.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("RetryRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (r *RetryRunner) Run(ctx context.Context) {
	slog.Info("RetryRunner.Run: starting retry runner", "pollInterval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RetryRunner.Run: stopping")
			return
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll claims and processes one batch of due jobs. It returns the number of
// jobs that completed successfully.
func (r *RetryRunner) Poll(ctx context.Context) int {
	now := r.now()
	jobs, err := r.repo.ClaimDueRetries(ctx, now, r.claimLimit)
	if err != nil {
		slog.Error("RetryRunner.Poll: claim failed", "error", err)
		return 0
	}

	done := 0
	for _, job := range jobs {
		r.mu.RLock()
		handler, ok := r.handlers[job.OperationType]
		r.mu.RUnlock()

		if !ok {
			slog.Warn("RetryRunner.Poll: no handler for operation", "operation", job.OperationType, "id", job.ID)
			if err := r.repo.FailRetry(ctx, job.ID, "no handler registered for operation: "+string(job.OperationType), now.Add(r.baseBackoff)); err != nil {
				slog.Error("RetryRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}

		slog.Debug("RetryRunner.Poll: executing job", "id", job.ID, "operation", job.OperationType, "retry_count", job.RetryCount)
		if err := handler(ctx, job); err != nil {
			// Exponential backoff: 5m, 10m, 20m, ...
			next := now.Add(r.baseBackoff * time.Duration(1<<job.RetryCount))
			slog.Error("RetryRunner.Poll: retry failed", "id", job.ID, "operation", job.OperationType, "error", err, "next_retry_at", next)
			if err := r.repo.FailRetry(ctx, job.ID, err.Error(), next); err != nil {
				slog.Error("RetryRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}
		if err := r.repo.CompleteRetry(ctx, job.ID); err != nil {
			slog.Error("RetryRunner.Poll: complete job error", "id", job.ID, "error", err)
			continue
		}
		done++
		slog.Debug("RetryRunner.Poll: job completed", "id", job.ID, "operation", job.OperationType)
	}
	return done
}
