package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

func TestRetryRunner_Poll(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	clock := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)

	okID, _ := s.EnqueueRetry(ctx, models.RetryJob{OperationType: models.OperationSendReminder, Payload: []byte(`{"ok":true}`), MaxRetries: 3, NextRetryAt: clock})
	badID, _ := s.EnqueueRetry(ctx, models.RetryJob{OperationType: models.OperationSendReminder, Payload: []byte(`{"ok":false}`), MaxRetries: 3, NextRetryAt: clock})
	orphanID, _ := s.EnqueueRetry(ctx, models.RetryJob{OperationType: models.OperationSendFeedback, MaxRetries: 1, NextRetryAt: clock})

	runner := NewRetryRunner(s, time.Second)
	runner.now = func() time.Time { return clock }
	runner.RegisterHandler(models.OperationSendReminder, func(ctx context.Context, job models.RetryJob) error {
		if string(job.Payload) == `{"ok":true}` {
			return nil
		}
		return errors.New("push failed")
	})

	if done := runner.Poll(ctx); done != 1 {
		t.Fatalf("Poll completed %d jobs, want 1", done)
	}

	byID := map[string]models.RetryJob{}
	jobs, _ := s.ListRetries(ctx)
	for _, j := range jobs {
		byID[j.ID] = j
	}
	if byID[okID].Status != models.RetryStatusDone {
		t.Errorf("ok job status = %q, want done", byID[okID].Status)
	}
	bad := byID[badID]
	if bad.Status != models.RetryStatusPending || bad.RetryCount != 1 {
		t.Errorf("failed job = %+v, want pending with count 1", bad)
	}
	if want := clock.Add(DefaultRetryDelay); !bad.NextRetryAt.Equal(want) {
		t.Errorf("next retry = %v, want %v", bad.NextRetryAt, want)
	}
	if byID[orphanID].Status != models.RetryStatusExhausted {
		t.Errorf("job without handler = %q, want exhausted", byID[orphanID].Status)
	}

	// Second failure doubles the backoff.
	clock = clock.Add(DefaultRetryDelay)
	runner.Poll(ctx)
	jobs, _ = s.ListRetries(ctx)
	for _, j := range jobs {
		if j.ID == badID {
			if want := clock.Add(2 * DefaultRetryDelay); !j.NextRetryAt.Equal(want) {
				t.Errorf("second backoff = %v, want %v", j.NextRetryAt, want)
			}
		}
	}
}

func TestRetryRunner_RunStopsOnCancel(t *testing.T) {
	runner := NewRetryRunner(NewInMemoryStore(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRetryRunner_RecoverStaleJobs(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)
	s.EnqueueRetry(ctx, models.RetryJob{OperationType: models.OperationSendReminder, MaxRetries: 3, NextRetryAt: old})
	s.ClaimDueRetries(ctx, old, 10)

	runner := NewRetryRunner(s, time.Second)
	if err := runner.RecoverStaleJobs(ctx); err != nil {
		t.Fatalf("RecoverStaleJobs: %v", err)
	}
	jobs, _ := s.ListRetries(ctx)
	if jobs[0].Status != models.RetryStatusPending {
		t.Errorf("stale job status = %q, want pending", jobs[0].Status)
	}
}
