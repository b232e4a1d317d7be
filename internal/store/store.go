// Package store provides storage backends for HabitLine.
//
// It includes an in-memory store for tests and local runs, and SQLite and
// PostgreSQL stores sharing one SQL implementation. All backends enforce the
// unique keys the bot relies on: one user per external id and one completion
// log per (habit, date).
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique key.
	ErrConflict = errors.New("unique constraint conflict")
)

// Store is the persistence capability used by the webhook flow and the scheduled jobs.
type Store interface {
	UserRepo
	HabitRepo
	LogRepo
	FeedbackRepo
	RetryRepo
	DedupRepo

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// UserRepo persists users keyed by their external chat-platform id.
type UserRepo interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	// CreateUser inserts a user. It returns ErrConflict if the external id is taken.
	CreateUser(ctx context.Context, u models.User) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// HabitRepo persists habits.
type HabitRepo interface {
	CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error)
	GetHabit(ctx context.Context, id string) (*models.Habit, error)
	// ListActiveHabits returns the user's active habits, oldest first.
	ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error)
	// ListHabits returns every habit of the user, newest first.
	ListHabits(ctx context.Context, userID string) ([]models.Habit, error)
	// SetReminderTime applies t to all active habits of the user and returns how many changed.
	SetReminderTime(ctx context.Context, userID string, t models.ReminderTime) (int, error)
	SetHabitActive(ctx context.Context, id string, active bool) error
	// ListDueReminders returns active habits whose reminder time equals t exactly.
	ListDueReminders(ctx context.Context, t models.ReminderTime) ([]models.HabitReminder, error)
}

// LogRepo persists completion logs.
type LogRepo interface {
	// UpsertLog writes the log for (habitID, date), overwriting status on conflict,
	// and refreshes the habit's streak counter.
	UpsertLog(ctx context.Context, habitID, date string, status bool, note string) (*models.CompletionLog, error)
	// ListLogsByDate returns every log for date joined to its habit and user.
	ListLogsByDate(ctx context.Context, date string) ([]models.LogEntry, error)
	// ListLogsInRange returns the logs of the given habits with from <= date <= to.
	ListLogsInRange(ctx context.Context, habitIDs []string, from, to string) ([]models.CompletionLog, error)
}

// FeedbackRepo persists generated feedback.
type FeedbackRepo interface {
	InsertFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error)
	ListFeedback(ctx context.Context, userID string) ([]models.Feedback, error)
}

// DedupRepo records inbound webhook event ids.
type DedupRepo interface {
	// RecordInbound stores eventID and reports whether it was new.
	RecordInbound(ctx context.Context, eventID string) (bool, error)
}

// Opts holds configuration options for SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns a store for dsn. An empty DSN yields an in-memory store.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

func now() time.Time {
	return time.Now().UTC()
}
