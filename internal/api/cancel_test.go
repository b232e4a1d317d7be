package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/HabitLine/internal/flow"
	"github.com/BTreeMap/HabitLine/internal/jobs"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/scheduler"
	"github.com/BTreeMap/HabitLine/internal/store"
	"github.com/BTreeMap/HabitLine/internal/testutil"
)

// hangupSender simulates the triggering client going away mid-run: every
// send cancels the request context and then fails.
type hangupSender struct {
	*messaging.MockSender
	cancel context.CancelFunc
}

func (h *hangupSender) Reply(ctx context.Context, replyToken string, msgs ...messaging.Message) error {
	h.cancel()
	h.MockSender.Reply(ctx, replyToken, msgs...)
	return errors.New("client went away")
}

func (h *hangupSender) Push(ctx context.Context, to string, msgs ...messaging.Message) error {
	h.cancel()
	return errors.New("client went away")
}

func newSQLiteServer(t *testing.T, sender messaging.Service) (*store.SQLiteStore, *Server) {
	t.Helper()
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "api.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	clock := testutil.FixedClock(apiNow)
	proc := flow.NewProcessor(st, sender, flow.WithClock(clock))
	runner := jobs.NewRunner(st, sender, nil, jobs.WithClock(clock))
	return st, NewServer(proc, runner, st, WithLINECredentials(testSecret, testToken))
}

func TestJobs_ReminderRetryQueuedAfterClientCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &hangupSender{MockSender: messaging.NewMockSender(), cancel: cancel}
	st, srv := newSQLiteServer(t, sender)

	u, err := st.CreateUser(context.Background(), models.User{ExternalID: "U1", Plan: models.PlanFree, Persona: models.PersonaAngel})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := st.CreateHabit(context.Background(), models.Habit{UserID: u.ID, Title: "読書", ReminderTime: models.ReminderTimeAt(apiNow), IsActive: true}); err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jobs/reminders", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "reminders after cancel")
	got := testutil.DecodeJSON(t, rr)
	if got["total"] != float64(1) || got["failed"] != float64(1) {
		t.Errorf("response = %v", got)
	}
	retries, err := st.ListRetries(context.Background())
	if err != nil {
		t.Fatalf("ListRetries: %v", err)
	}
	if len(retries) != 1 || retries[0].RetryCount != 0 || retries[0].MaxRetries != store.DefaultMaxRetries {
		t.Errorf("retries = %+v, want one pending row", retries)
	}
}

func TestLineWebhook_BatchSurvivesClientCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &hangupSender{MockSender: messaging.NewMockSender(), cancel: cancel}
	st, srv := newSQLiteServer(t, sender)

	body := testutil.WebhookBody(
		testutil.WebhookEvent{ID: "e1", Type: "message", UserID: "U1", ReplyToken: "r1", Text: "help"},
		testutil.WebhookEvent{ID: "e2", Type: "message", UserID: "U2", ReplyToken: "r2", Text: "習慣 追加 散歩"},
	)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, lineRequest(body, testutil.SignBody(testSecret, body)).WithContext(ctx))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook after cancel")

	u, err := st.GetUserByExternalID(context.Background(), "U2")
	if err != nil {
		t.Fatalf("second event not processed: %v", err)
	}
	habits, err := st.ListHabits(context.Background(), u.ID)
	if err != nil || len(habits) != 1 || habits[0].Title != "散歩" {
		t.Errorf("habits = %+v, err = %v", habits, err)
	}
}

func TestWithJobTimeout(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := messaging.NewMockSender()
	proc := flow.NewProcessor(st, sender)
	runner := jobs.NewRunner(st, sender, nil)

	if got := NewServer(proc, runner, st).opts.JobTimeout; got != scheduler.DefaultJobTimeout {
		t.Errorf("default JobTimeout = %v, want %v", got, scheduler.DefaultJobTimeout)
	}
	if got := NewServer(proc, runner, st, WithJobTimeout(time.Minute)).opts.JobTimeout; got != time.Minute {
		t.Errorf("JobTimeout = %v, want 1m", got)
	}
	if got := NewServer(proc, runner, st, WithJobTimeout(0)).opts.JobTimeout; got != scheduler.DefaultJobTimeout {
		t.Errorf("zero JobTimeout = %v, want default", got)
	}
}
