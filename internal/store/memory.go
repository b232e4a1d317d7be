package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore is a mutex-guarded store for tests and local development.
// It enforces the same unique keys as the SQL backends.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    []models.User
	habits   []models.Habit
	logs     []models.CompletionLog
	feedback []models.Feedback
	retries  []models.RetryJob
	events   map[string]time.Time
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]time.Time)}
}

func (s *InMemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ExternalID == u.ExternalID {
			return nil, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Plan == "" {
		u.Plan = models.PlanFree
	}
	if u.Persona == "" {
		u.Persona = models.DefaultPersona
	}
	ts := now()
	u.CreatedAt, u.UpdatedAt = ts, ts
	s.users = append(s.users, u)
	slog.Debug("InMemoryStore.CreateUser", "id", u.ID, "external_id", u.ExternalID)
	return &u, nil
}

func (s *InMemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User(nil), s.users...), nil
}

func (s *InMemoryStore) CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	ts := now()
	h.CreatedAt, h.UpdatedAt = ts, ts
	s.habits = append(s.habits, h)
	return &h, nil
}

func (s *InMemoryStore) GetHabit(ctx context.Context, id string) (*models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.habitIndex(id); i >= 0 {
		h := s.habits[i]
		return &h, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Habit
	for _, h := range s.habits {
		if h.UserID == userID && h.IsActive {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Habit
	for i := len(s.habits) - 1; i >= 0; i-- {
		if s.habits[i].UserID == userID {
			out = append(out, s.habits[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) SetReminderTime(ctx context.Context, userID string, t models.ReminderTime) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	ts := now()
	for i := range s.habits {
		if s.habits[i].UserID == userID && s.habits[i].IsActive {
			s.habits[i].ReminderTime = t
			s.habits[i].UpdatedAt = ts
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SetHabitActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.habitIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	s.habits[i].IsActive = active
	s.habits[i].UpdatedAt = now()
	return nil
}

func (s *InMemoryStore) ListDueReminders(ctx context.Context, t models.ReminderTime) ([]models.HabitReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.HabitReminder
	for _, h := range s.habits {
		if !h.IsActive || h.ReminderTime != t {
			continue
		}
		if u, ok := s.userByID(h.UserID); ok {
			out = append(out, models.HabitReminder{Habit: h, User: u})
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpsertLog(ctx context.Context, habitID, date string, status bool, note string) (*models.CompletionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hi := s.habitIndex(habitID)
	if hi < 0 {
		return nil, ErrNotFound
	}
	ts := now()
	var result models.CompletionLog
	found := false
	for i := range s.logs {
		if s.logs[i].HabitID == habitID && s.logs[i].Date == date {
			s.logs[i].Status = status
			if note != "" {
				s.logs[i].Note = note
			}
			s.logs[i].UpdatedAt = ts
			result = s.logs[i]
			found = true
			break
		}
	}
	if !found {
		result = models.CompletionLog{
			ID: uuid.NewString(), HabitID: habitID, Date: date, Status: status, Note: note,
			CreatedAt: ts, UpdatedAt: ts,
		}
		s.logs = append(s.logs, result)
	}

	var completed []string
	for _, l := range s.logs {
		if l.HabitID == habitID && l.Status {
			completed = append(completed, l.Date)
		}
	}
	s.habits[hi].StreakCount, s.habits[hi].LastCompletedDate = ComputeStreak(completed)
	s.habits[hi].UpdatedAt = ts
	return &result, nil
}

func (s *InMemoryStore) ListLogsByDate(ctx context.Context, date string) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LogEntry
	for _, l := range s.logs {
		if l.Date != date {
			continue
		}
		hi := s.habitIndex(l.HabitID)
		if hi < 0 {
			continue
		}
		u, ok := s.userByID(s.habits[hi].UserID)
		if !ok {
			continue
		}
		out = append(out, models.LogEntry{Log: l, Habit: s.habits[hi], User: u})
	}
	return out, nil
}

func (s *InMemoryStore) ListLogsInRange(ctx context.Context, habitIDs []string, from, to string) ([]models.CompletionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(habitIDs))
	for _, id := range habitIDs {
		wanted[id] = true
	}
	var out []models.CompletionLog
	for _, l := range s.logs {
		if wanted[l.HabitID] && l.Date >= from && l.Date <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *InMemoryStore) InsertFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = now()
	s.feedback = append(s.feedback, f)
	return &f, nil
}

func (s *InMemoryStore) ListFeedback(ctx context.Context, userID string) ([]models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Feedback
	for _, f := range s.feedback {
		if userID == "" || f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *InMemoryStore) EnqueueRetry(ctx context.Context, job models.RetryJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.RetryStatusPending
	}
	ts := now()
	job.CreatedAt, job.UpdatedAt = ts, ts
	s.retries = append(s.retries, job)
	return job.ID, nil
}

func (s *InMemoryStore) ClaimDueRetries(ctx context.Context, at time.Time, limit int) ([]models.RetryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idx []int
	for i, j := range s.retries {
		if j.Status == models.RetryStatusPending && !j.NextRetryAt.After(at) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.retries[idx[a]].NextRetryAt.Before(s.retries[idx[b]].NextRetryAt)
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]models.RetryJob, 0, len(idx))
	for _, i := range idx {
		s.retries[i].Status = models.RetryStatusRunning
		s.retries[i].UpdatedAt = at
		out = append(out, s.retries[i])
	}
	return out, nil
}

func (s *InMemoryStore) CompleteRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.retryIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	s.retries[i].Status = models.RetryStatusDone
	s.retries[i].UpdatedAt = now()
	return nil
}

func (s *InMemoryStore) FailRetry(ctx context.Context, id string, errMsg string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.retryIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	j := &s.retries[i]
	j.RetryCount++
	j.ErrorMessage = errMsg
	j.UpdatedAt = now()
	if j.RetryCount >= j.MaxRetries {
		j.Status = models.RetryStatusExhausted
	} else {
		j.Status = models.RetryStatusPending
		j.NextRetryAt = next
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleRetries(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.retries {
		if s.retries[i].Status == models.RetryStatusRunning && s.retries[i].UpdatedAt.Before(staleBefore) {
			s.retries[i].Status = models.RetryStatusPending
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListRetries(ctx context.Context) ([]models.RetryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RetryJob(nil), s.retries...), nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.events[eventID]; seen {
		return false, nil
	}
	s.events[eventID] = now()
	return true, nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) habitIndex(id string) int {
	for i := range s.habits {
		if s.habits[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *InMemoryStore) retryIndex(id string) int {
	for i := range s.retries {
		if s.retries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *InMemoryStore) userByID(id string) (models.User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}
