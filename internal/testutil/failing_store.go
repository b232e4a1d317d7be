package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// FailingStore wraps a Store, counts calls per method and returns injected
// errors for methods named in Fail.
type FailingStore struct {
	store.Store

	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

// Compile-time check that FailingStore implements store.Store.
var _ store.Store = (*FailingStore)(nil)

// NewFailingStore wraps inner.
func NewFailingStore(inner store.Store) *FailingStore {
	return &FailingStore{Store: inner, fail: map[string]error{}, calls: map[string]int{}}
}

// FailOn makes method return err from now on.
func (f *FailingStore) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

// Calls returns how many times method was invoked.
func (f *FailingStore) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *FailingStore) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FailingStore) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.fail[method]
}

func (f *FailingStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if err := f.enter("GetUser"); err != nil {
		return nil, err
	}
	return f.Store.GetUser(ctx, id)
}

func (f *FailingStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if err := f.enter("GetUserByExternalID"); err != nil {
		return nil, err
	}
	return f.Store.GetUserByExternalID(ctx, externalID)
}

func (f *FailingStore) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if err := f.enter("CreateUser"); err != nil {
		return nil, err
	}
	return f.Store.CreateUser(ctx, u)
}

func (f *FailingStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := f.enter("ListUsers"); err != nil {
		return nil, err
	}
	return f.Store.ListUsers(ctx)
}

func (f *FailingStore) CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error) {
	if err := f.enter("CreateHabit"); err != nil {
		return nil, err
	}
	return f.Store.CreateHabit(ctx, h)
}

func (f *FailingStore) GetHabit(ctx context.Context, id string) (*models.Habit, error) {
	if err := f.enter("GetHabit"); err != nil {
		return nil, err
	}
	return f.Store.GetHabit(ctx, id)
}

func (f *FailingStore) ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	if err := f.enter("ListActiveHabits"); err != nil {
		return nil, err
	}
	return f.Store.ListActiveHabits(ctx, userID)
}

func (f *FailingStore) ListHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	if err := f.enter("ListHabits"); err != nil {
		return nil, err
	}
	return f.Store.ListHabits(ctx, userID)
}

func (f *FailingStore) SetReminderTime(ctx context.Context, userID string, t models.ReminderTime) (int, error) {
	if err := f.enter("SetReminderTime"); err != nil {
		return 0, err
	}
	return f.Store.SetReminderTime(ctx, userID, t)
}

func (f *FailingStore) SetHabitActive(ctx context.Context, id string, active bool) error {
	if err := f.enter("SetHabitActive"); err != nil {
		return err
	}
	return f.Store.SetHabitActive(ctx, id, active)
}

func (f *FailingStore) ListDueReminders(ctx context.Context, t models.ReminderTime) ([]models.HabitReminder, error) {
	if err := f.enter("ListDueReminders"); err != nil {
		return nil, err
	}
	return f.Store.ListDueReminders(ctx, t)
}

func (f *FailingStore) UpsertLog(ctx context.Context, habitID, date string, status bool, note string) (*models.CompletionLog, error) {
	if err := f.enter("UpsertLog"); err != nil {
		return nil, err
	}
	return f.Store.UpsertLog(ctx, habitID, date, status, note)
}

func (f *FailingStore) ListLogsByDate(ctx context.Context, date string) ([]models.LogEntry, error) {
	if err := f.enter("ListLogsByDate"); err != nil {
		return nil, err
	}
	return f.Store.ListLogsByDate(ctx, date)
}

func (f *FailingStore) ListLogsInRange(ctx context.Context, habitIDs []string, from, to string) ([]models.CompletionLog, error) {
	if err := f.enter("ListLogsInRange"); err != nil {
		return nil, err
	}
	return f.Store.ListLogsInRange(ctx, habitIDs, from, to)
}

func (f *FailingStore) InsertFeedback(ctx context.Context, fb models.Feedback) (*models.Feedback, error) {
	if err := f.enter("InsertFeedback"); err != nil {
		return nil, err
	}
	return f.Store.InsertFeedback(ctx, fb)
}

func (f *FailingStore) ListFeedback(ctx context.Context, userID string) ([]models.Feedback, error) {
	if err := f.enter("ListFeedback"); err != nil {
		return nil, err
	}
	return f.Store.ListFeedback(ctx, userID)
}

func (f *FailingStore) EnqueueRetry(ctx context.Context, job models.RetryJob) (string, error) {
	if err := f.enter("EnqueueRetry"); err != nil {
		return "", err
	}
	return f.Store.EnqueueRetry(ctx, job)
}

func (f *FailingStore) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]models.RetryJob, error) {
	if err := f.enter("ClaimDueRetries"); err != nil {
		return nil, err
	}
	return f.Store.ClaimDueRetries(ctx, now, limit)
}

func (f *FailingStore) CompleteRetry(ctx context.Context, id string) error {
	if err := f.enter("CompleteRetry"); err != nil {
		return err
	}
	return f.Store.CompleteRetry(ctx, id)
}

func (f *FailingStore) FailRetry(ctx context.Context, id string, errMsg string, next time.Time) error {
	if err := f.enter("FailRetry"); err != nil {
		return err
	}
	return f.Store.FailRetry(ctx, id, errMsg, next)
}

func (f *FailingStore) RequeueStaleRetries(ctx context.Context, staleBefore time.Time) (int, error) {
	if err := f.enter("RequeueStaleRetries"); err != nil {
		return 0, err
	}
	return f.Store.RequeueStaleRetries(ctx, staleBefore)
}

func (f *FailingStore) ListRetries(ctx context.Context) ([]models.RetryJob, error) {
	if err := f.enter("ListRetries"); err != nil {
		return nil, err
	}
	return f.Store.ListRetries(ctx)
}

func (f *FailingStore) RecordInbound(ctx context.Context, eventID string) (bool, error) {
	if err := f.enter("RecordInbound"); err != nil {
		return false, err
	}
	return f.Store.RecordInbound(ctx, eventID)
}

func (f *FailingStore) Ping(ctx context.Context) error {
	if err := f.enter("Ping"); err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}
