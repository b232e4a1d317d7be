package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "habitline_sqlite_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("env DATABASE_URL not set")
	}
	s, err := NewPostgresStore(WithPostgresDSN(dsn))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	for _, table := range []string{"habit_webhook_events", "habit_retry_queue", "habit_ai_feedback", "habit_logs", "habit_habits", "habit_users"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns a constructor per backend so every test runs against all of them.
func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory":   func(t *testing.T) Store { return NewInMemoryStore() },
		"sqlite":   func(t *testing.T) Store { return newTestSQLiteStore(t) },
		"postgres": func(t *testing.T) Store { return newTestPostgresStore(t) },
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t))
		})
	}
}

func mustUser(t *testing.T, s Store, externalID string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{ExternalID: externalID, Name: "Taro"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustHabit(t *testing.T, s Store, userID, title string) *models.Habit {
	t.Helper()
	h, err := s.CreateHabit(context.Background(), models.Habit{UserID: userID, Title: title, IsActive: true})
	if err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}
	return h
}

func TestStore_UserUniqueExternalID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := mustUser(t, s, "U1")
		if u.Plan != models.PlanFree || u.Persona != models.PersonaAngel {
			t.Errorf("defaults = %q/%q, want free/angel", u.Plan, u.Persona)
		}

		_, err := s.CreateUser(ctx, models.User{ExternalID: "U1"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("second CreateUser err = %v, want ErrConflict", err)
		}

		got, err := s.GetUserByExternalID(ctx, "U1")
		if err != nil {
			t.Fatalf("GetUserByExternalID: %v", err)
		}
		if got.ID != u.ID || got.Name != "Taro" {
			t.Errorf("got %+v, want id %s", got, u.ID)
		}

		if _, err := s.GetUserByExternalID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing user err = %v, want ErrNotFound", err)
		}
		if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing user by id err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_HabitOrderingAndReminders(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := mustUser(t, s, "U1")
		first := mustHabit(t, s, u.ID, "読書")
		time.Sleep(2 * time.Millisecond)
		second := mustHabit(t, s, u.ID, "散歩")

		active, err := s.ListActiveHabits(ctx, u.ID)
		if err != nil {
			t.Fatalf("ListActiveHabits: %v", err)
		}
		if len(active) != 2 || active[0].ID != first.ID {
			t.Fatalf("active habits not oldest first: %+v", active)
		}
		all, err := s.ListHabits(ctx, u.ID)
		if err != nil {
			t.Fatalf("ListHabits: %v", err)
		}
		if len(all) != 2 || all[0].ID != second.ID {
			t.Fatalf("habits not newest first: %+v", all)
		}

		rt, _ := models.NewReminderTimeFromLocal(7, 30)
		n, err := s.SetReminderTime(ctx, u.ID, rt)
		if err != nil || n != 2 {
			t.Fatalf("SetReminderTime = %d, %v; want 2", n, err)
		}

		if err := s.SetHabitActive(ctx, second.ID, false); err != nil {
			t.Fatalf("SetHabitActive: %v", err)
		}
		due, err := s.ListDueReminders(ctx, "22:30:00")
		if err != nil {
			t.Fatalf("ListDueReminders: %v", err)
		}
		if len(due) != 1 || due[0].Habit.ID != first.ID || due[0].User.ExternalID != "U1" {
			t.Fatalf("due reminders = %+v, want only %s", due, first.ID)
		}
		if due, _ := s.ListDueReminders(ctx, "22:31:00"); len(due) != 0 {
			t.Errorf("reminders must match the exact minute, got %d", len(due))
		}

		if err := s.SetHabitActive(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetHabitActive(missing) err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_UpsertLogAndStreak(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := mustUser(t, s, "U1")
		h := mustHabit(t, s, u.ID, "読書")

		for _, d := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
			if _, err := s.UpsertLog(ctx, h.ID, d, true, ""); err != nil {
				t.Fatalf("UpsertLog %s: %v", d, err)
			}
		}
		got, _ := s.GetHabit(ctx, h.ID)
		if got.StreakCount != 3 || got.LastCompletedDate != "2024-03-03" {
			t.Fatalf("streak = %d last=%q, want 3 2024-03-03", got.StreakCount, got.LastCompletedDate)
		}

		// Overwriting the same day keeps a single row and drops the streak.
		l, err := s.UpsertLog(ctx, h.ID, "2024-03-03", false, "skip")
		if err != nil {
			t.Fatalf("UpsertLog overwrite: %v", err)
		}
		if l.Status || l.Note != "skip" {
			t.Errorf("overwritten log = %+v", l)
		}
		l, err = s.UpsertLog(ctx, h.ID, "2024-03-03", true, "")
		if err != nil {
			t.Fatalf("UpsertLog re-complete: %v", err)
		}
		if !l.Status || l.Note != "skip" {
			t.Errorf("empty note must keep the stored note, got %+v", l)
		}

		logs, err := s.ListLogsByDate(ctx, "2024-03-03")
		if err != nil {
			t.Fatalf("ListLogsByDate: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("expected one log per (habit, date), got %d", len(logs))
		}
		if logs[0].User.ID != u.ID || logs[0].Habit.Title != "読書" {
			t.Errorf("log entry not joined: %+v", logs[0])
		}

		inRange, err := s.ListLogsInRange(ctx, []string{h.ID}, "2024-03-02", "2024-03-03")
		if err != nil {
			t.Fatalf("ListLogsInRange: %v", err)
		}
		if len(inRange) != 2 {
			t.Errorf("ListLogsInRange len = %d, want 2", len(inRange))
		}
		if none, _ := s.ListLogsInRange(ctx, nil, "2024-03-01", "2024-03-03"); len(none) != 0 {
			t.Errorf("no habit ids must yield no logs")
		}

		if _, err := s.UpsertLog(ctx, "missing", "2024-03-03", true, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpsertLog(missing) err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Feedback(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := mustUser(t, s, "U1")
		other := mustUser(t, s, "U2")
		for _, id := range []string{u.ID, u.ID, other.ID} {
			if _, err := s.InsertFeedback(ctx, models.Feedback{UserID: id, Message: "よくできました", Sentiment: 0.8, FeedbackDate: "2024-03-03"}); err != nil {
				t.Fatalf("InsertFeedback: %v", err)
			}
		}
		mine, _ := s.ListFeedback(ctx, u.ID)
		if len(mine) != 2 {
			t.Errorf("feedback for user = %d, want 2 (append-only)", len(mine))
		}
		all, _ := s.ListFeedback(ctx, "")
		if len(all) != 3 {
			t.Errorf("all feedback = %d, want 3", len(all))
		}
	})
}

func TestStore_RecordInbound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fresh, err := s.RecordInbound(ctx, "evt-1")
		if err != nil || !fresh {
			t.Fatalf("first RecordInbound = %v, %v; want true", fresh, err)
		}
		fresh, err = s.RecordInbound(ctx, "evt-1")
		if err != nil || fresh {
			t.Fatalf("second RecordInbound = %v, %v; want false", fresh, err)
		}
	})
}

func TestStore_RetryLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		id, err := s.EnqueueRetry(ctx, models.RetryJob{
			OperationType: models.OperationSendReminder,
			Payload:       []byte(`{"habit_id":"h1"}`),
			MaxRetries:    2,
			NextRetryAt:   base.Add(-time.Minute),
			ErrorMessage:  "boom",
		})
		if err != nil {
			t.Fatalf("EnqueueRetry: %v", err)
		}
		if _, err := s.EnqueueRetry(ctx, models.RetryJob{
			OperationType: models.OperationSendReminder,
			MaxRetries:    3,
			NextRetryAt:   base.Add(time.Hour),
		}); err != nil {
			t.Fatalf("EnqueueRetry future: %v", err)
		}

		claimed, err := s.ClaimDueRetries(ctx, base, 10)
		if err != nil {
			t.Fatalf("ClaimDueRetries: %v", err)
		}
		if len(claimed) != 1 || claimed[0].ID != id {
			t.Fatalf("claimed = %+v, want only %s", claimed, id)
		}
		if string(claimed[0].Payload) != `{"habit_id":"h1"}` || claimed[0].ErrorMessage != "boom" {
			t.Errorf("claimed job lost fields: %+v", claimed[0])
		}
		if again, _ := s.ClaimDueRetries(ctx, base, 10); len(again) != 0 {
			t.Errorf("running job claimed twice")
		}

		if err := s.FailRetry(ctx, id, "still failing", base.Add(-time.Second)); err != nil {
			t.Fatalf("FailRetry: %v", err)
		}
		claimed, _ = s.ClaimDueRetries(ctx, base, 10)
		if len(claimed) != 1 || claimed[0].RetryCount != 1 {
			t.Fatalf("rescheduled job = %+v", claimed)
		}
		if err := s.FailRetry(ctx, id, "gave up", base); err != nil {
			t.Fatalf("FailRetry: %v", err)
		}

		jobs, _ := s.ListRetries(ctx)
		var got models.RetryJob
		for _, j := range jobs {
			if j.ID == id {
				got = j
			}
		}
		if got.Status != models.RetryStatusExhausted || got.RetryCount != 2 || got.ErrorMessage != "gave up" {
			t.Errorf("job after max retries = %+v, want exhausted", got)
		}
	})
}

func TestStore_RequeueStaleRetries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		past := time.Now().UTC().Add(-time.Hour)
		if _, err := s.EnqueueRetry(ctx, models.RetryJob{OperationType: models.OperationSendReminder, MaxRetries: 3, NextRetryAt: past}); err != nil {
			t.Fatalf("EnqueueRetry: %v", err)
		}
		if claimed, _ := s.ClaimDueRetries(ctx, past, 1); len(claimed) != 1 {
			t.Fatalf("expected one claimed job")
		}
		n, err := s.RequeueStaleRetries(ctx, time.Now().UTC().Add(-10*time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("RequeueStaleRetries = %d, %v; want 1", n, err)
		}
	})
}

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"postgres://user@localhost/db":   "postgres",
		"postgresql://user@localhost/db": "postgres",
		"host=localhost dbname=habits":   "postgres",
		"/var/lib/habitline/state.db":    "sqlite3",
		"file:test.db?cache=shared":      "sqlite3",
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestOpen_EmptyDSNUsesMemory(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("Open(\"\") = %T, want *InMemoryStore", s)
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar("SELECT a FROM t WHERE b = ? AND c IN (?, ?)")
	want := "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)"
	if got != want {
		t.Errorf("rebindDollar = %q, want %q", got, want)
	}
}
