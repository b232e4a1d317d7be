package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// retryPolicy lists which failed outbound operations get a RetryJob.
// Reports and feedback are logged only.
var retryPolicy = map[models.RetryOperation]bool{
	models.OperationSendReminder: true,
	models.OperationSendReport:   false,
	models.OperationSendFeedback: false,
}

// Retryable reports whether a failed op is written to the retry queue.
func Retryable(op models.RetryOperation) bool {
	return retryPolicy[op]
}

// recordFailure writes a pending RetryJob for a failed delivery when the
// policy allows it. Enqueue errors are logged and swallowed.
func (r *Runner) recordFailure(ctx context.Context, op models.RetryOperation, payload any, cause error) {
	if !Retryable(op) {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Runner.recordFailure: marshal payload failed", "operation", op, "error", err)
		return
	}
	job := models.RetryJob{
		OperationType: op,
		Payload:       raw,
		RetryCount:    0,
		MaxRetries:    store.DefaultMaxRetries,
		NextRetryAt:   r.now().UTC().Add(store.DefaultRetryDelay),
		ErrorMessage:  cause.Error(),
		Status:        models.RetryStatusPending,
	}
	// The row must land even when the run itself was cancelled.
	id, err := r.store.EnqueueRetry(context.WithoutCancel(ctx), job)
	if err != nil {
		slog.Error("Runner.recordFailure: enqueue failed", "operation", op, "error", err)
		return
	}
	slog.Info("Runner.recordFailure: retry queued", "operation", op, "retry_id", id, "next_retry_at", job.NextRetryAt)
}

// RegisterRetryHandlers installs a handler on rr for every retryable operation.
func (r *Runner) RegisterRetryHandlers(rr *store.RetryRunner) {
	handlers := map[models.RetryOperation]store.RetryHandler{
		models.OperationSendReminder: r.RetryReminder,
	}
	for op, h := range handlers {
		if Retryable(op) {
			rr.RegisterHandler(op, h)
		}
	}
}
