package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

func okJob(n *atomic.Int32) JobFunc {
	return func(ctx context.Context) (models.JobResponse, error) {
		n.Add(1)
		return models.JobResponse{Success: true, Total: 1, Successful: 1}, nil
	}
}

func TestSchedule(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var n atomic.Int32
	if err := s.Schedule("reminders", "* * * * *", okJob(&n)); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.Schedule("reports", "", okJob(&n)); err != nil {
		t.Errorf("empty expression should be skipped, got %v", err)
	}
	if err := s.Schedule("feedback", "not a cron", okJob(&n)); err == nil {
		t.Error("expected error for invalid expression")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestRun_ReportsJobError(t *testing.T) {
	s := NewScheduler(WithJobTimeout(time.Second))
	resp := s.Run("feedback", func(ctx context.Context) (models.JobResponse, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		return models.JobResponse{}, errors.New("store down")
	})
	if resp.Success || resp.Message != "store down" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStart_FiresEveryDescriptor(t *testing.T) {
	s := NewScheduler(WithLocation(time.UTC))
	var n atomic.Int32
	if err := s.Schedule("reminders", "@every 1s", okJob(&n)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.Start()

	deadline := time.After(3 * time.Second)
	for n.Load() == 0 {
		select {
		case <-deadline:
			s.Stop()
			t.Fatal("job never fired")
		case <-time.After(20 * time.Millisecond):
		}
	}
	s.Stop()
}
