// Package store provides the RetryRepo interface for failed outbound operations.
package store

import (
	"context"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

// Retry queue defaults applied by the Retry Queue Writer.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Minute
)

// RetryRepo defines the interface for retry queue persistence.
type RetryRepo interface {
	// EnqueueRetry inserts a new retry job in pending state.
	EnqueueRetry(ctx context.Context, job models.RetryJob) (string, error)

	// ClaimDueRetries marks up to limit pending jobs whose next_retry_at <= now
	// as running and returns them.
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]models.RetryJob, error)

	// CompleteRetry marks a job as done.
	CompleteRetry(ctx context.Context, id string) error

	// FailRetry increments retry_count and stores the error. The job is
	// rescheduled at next unless it has reached max_retries, in which case it
	// becomes exhausted.
	FailRetry(ctx context.Context, id string, errMsg string, next time.Time) error

	// RequeueStaleRetries resets jobs left running since before staleBefore
	// back to pending (crash recovery).
	RequeueStaleRetries(ctx context.Context, staleBefore time.Time) (int, error)

	// ListRetries returns every retry job.
	ListRetries(ctx context.Context) ([]models.RetryJob, error)
}
