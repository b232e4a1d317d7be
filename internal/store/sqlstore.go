package store

// SQL implementation shared by the SQLite and PostgreSQL backends. Queries are
// written with "?" placeholders and rebound per dialect.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/google/uuid"
)

// dialect captures the differences between SQL backends.
type dialect struct {
	name              string
	rebind            func(query string) string
	isUniqueViolation func(err error) bool
}

// sqlStore implements Store on top of database/sql.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

const (
	userColumns     = "id, external_id, name, plan, persona, created_at, updated_at"
	habitColumns    = "id, user_id, title, reminder_time, is_active, streak_count, last_completed_date, created_at, updated_at"
	logColumns      = "id, habit_id, date, status, note, created_at, updated_at"
	feedbackColumns = "id, user_id, message, sentiment, feedback_date, created_at"
	retryColumns    = "id, operation_type, payload, retry_count, max_retries, next_retry_at, error_message, status, created_at, updated_at"
)

// rebindQuestion keeps "?" placeholders (SQLite).
func rebindQuestion(query string) string { return query }

// rebindDollar rewrites "?" placeholders to "$1", "$2", ... (PostgreSQL).
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// prefixed qualifies every column in cols with alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *sqlStore) q(query string) string {
	return s.d.rebind(query)
}

// ---- Users ----

func (s *sqlStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var r userRow
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM habit_users WHERE id = ?`), id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	u := r.user()
	return &u, nil
}

func (s *sqlStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var r userRow
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM habit_users WHERE external_id = ?`), externalID).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id: %w", err)
	}
	u := r.user()
	return &u, nil
}

func (s *sqlStore) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
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
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO habit_users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.ExternalID, nilIfEmpty(u.Name), string(u.Plan), string(u.Persona), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			slog.Debug("sqlStore.CreateUser: external id already exists", "dialect", s.d.name, "external_id", u.ExternalID)
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	slog.Debug("sqlStore.CreateUser succeeded", "dialect", s.d.name, "id", u.ID)
	return &u, nil
}

func (s *sqlStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM habit_users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		var r userRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, r.user())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// ---- Habits ----

func (s *sqlStore) CreateHabit(ctx context.Context, h models.Habit) (*models.Habit, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	ts := now()
	h.CreatedAt, h.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO habit_habits (`+habitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		h.ID, h.UserID, h.Title, nilIfEmpty(string(h.ReminderTime)), h.IsActive, h.StreakCount,
		nilIfEmpty(h.LastCompletedDate), h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert habit for user %s: %w", h.UserID, err)
	}
	slog.Debug("sqlStore.CreateHabit succeeded", "dialect", s.d.name, "id", h.ID, "user_id", h.UserID)
	return &h, nil
}

func (s *sqlStore) GetHabit(ctx context.Context, id string) (*models.Habit, error) {
	var r habitRow
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+habitColumns+` FROM habit_habits WHERE id = ?`), id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get habit %s: %w", id, err)
	}
	h := r.habit()
	return &h, nil
}

func (s *sqlStore) ListActiveHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	return s.queryHabits(ctx, `SELECT `+habitColumns+` FROM habit_habits WHERE user_id = ? AND is_active = ? ORDER BY created_at ASC`, userID, true)
}

func (s *sqlStore) ListHabits(ctx context.Context, userID string) ([]models.Habit, error) {
	return s.queryHabits(ctx, `SELECT `+habitColumns+` FROM habit_habits WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *sqlStore) queryHabits(ctx context.Context, query string, args ...any) ([]models.Habit, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	defer rows.Close()
	var habits []models.Habit
	for rows.Next() {
		var r habitRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, r.habit())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return habits, nil
}

func (s *sqlStore) SetReminderTime(ctx context.Context, userID string, t models.ReminderTime) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE habit_habits SET reminder_time = ?, updated_at = ? WHERE user_id = ? AND is_active = ?`),
		nilIfEmpty(string(t)), now(), userID, true)
	if err != nil {
		return 0, fmt.Errorf("update reminder time for user %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqlStore) SetHabitActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE habit_habits SET is_active = ?, updated_at = ? WHERE id = ?`), active, now(), id)
	if err != nil {
		return fmt.Errorf("toggle habit %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListDueReminders(ctx context.Context, t models.ReminderTime) ([]models.HabitReminder, error) {
	query := `SELECT ` + prefixed("h", habitColumns) + `, ` + prefixed("u", userColumns) + `
		FROM habit_habits h JOIN habit_users u ON u.id = h.user_id
		WHERE h.is_active = ? AND h.reminder_time = ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), true, string(t))
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()
	var out []models.HabitReminder
	for rows.Next() {
		var hr habitRow
		var ur userRow
		if err := rows.Scan(append(hr.dest(), ur.dest()...)...); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		out = append(out, models.HabitReminder{Habit: hr.habit(), User: ur.user()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due reminders: %w", err)
	}
	return out, nil
}

// ---- Completion logs ----

func (s *sqlStore) UpsertLog(ctx context.Context, habitID, date string, status bool, note string) (*models.CompletionLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert log: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM habit_habits WHERE id = ?`), habitID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup habit %s: %w", habitID, err)
	}

	ts := now()
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO habit_logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, date) DO UPDATE SET
			status = excluded.status,
			note = COALESCE(excluded.note, habit_logs.note),
			updated_at = excluded.updated_at`),
		uuid.NewString(), habitID, date, status, nilIfEmpty(note), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("upsert log for habit %s on %s: %w", habitID, date, err)
	}

	if err := s.refreshStreak(ctx, tx, habitID, ts); err != nil {
		return nil, err
	}

	var r logRow
	err = tx.QueryRowContext(ctx, s.q(`SELECT `+logColumns+` FROM habit_logs WHERE habit_id = ? AND date = ?`), habitID, date).Scan(r.dest()...)
	if err != nil {
		return nil, fmt.Errorf("read back log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert log: %w", err)
	}
	l := r.log()
	slog.Debug("sqlStore.UpsertLog succeeded", "dialect", s.d.name, "habit_id", habitID, "date", date, "status", status)
	return &l, nil
}

// refreshStreak recomputes the habit's streak counter from its completed logs.
func (s *sqlStore) refreshStreak(ctx context.Context, tx *sql.Tx, habitID string, ts time.Time) error {
	rows, err := tx.QueryContext(ctx, s.q(`SELECT date FROM habit_logs WHERE habit_id = ? AND status = ?`), habitID, true)
	if err != nil {
		return fmt.Errorf("query completed dates: %w", err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return fmt.Errorf("scan completed date: %w", err)
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate completed dates: %w", err)
	}

	streak, last := ComputeStreak(dates)
	_, err = tx.ExecContext(ctx, s.q(`UPDATE habit_habits SET streak_count = ?, last_completed_date = ?, updated_at = ? WHERE id = ?`),
		streak, nilIfEmpty(last), ts, habitID)
	if err != nil {
		return fmt.Errorf("update streak for habit %s: %w", habitID, err)
	}
	return nil
}

func (s *sqlStore) ListLogsByDate(ctx context.Context, date string) ([]models.LogEntry, error) {
	query := `SELECT ` + prefixed("l", logColumns) + `, ` + prefixed("h", habitColumns) + `, ` + prefixed("u", userColumns) + `
		FROM habit_logs l
		JOIN habit_habits h ON h.id = l.habit_id
		JOIN habit_users u ON u.id = h.user_id
		WHERE l.date = ?
		ORDER BY l.created_at ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query), date)
	if err != nil {
		return nil, fmt.Errorf("query logs for %s: %w", date, err)
	}
	defer rows.Close()
	var out []models.LogEntry
	for rows.Next() {
		var lr logRow
		var hr habitRow
		var ur userRow
		dest := append(lr.dest(), hr.dest()...)
		dest = append(dest, ur.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		out = append(out, models.LogEntry{Log: lr.log(), Habit: hr.habit(), User: ur.user()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return out, nil
}

func (s *sqlStore) ListLogsInRange(ctx context.Context, habitIDs []string, from, to string) ([]models.CompletionLog, error) {
	if len(habitIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(habitIDs)+2)
	for _, id := range habitIDs {
		args = append(args, id)
	}
	args = append(args, from, to)
	query := `SELECT ` + logColumns + ` FROM habit_logs WHERE habit_id IN (` + placeholders(len(habitIDs)) + `) AND date >= ? AND date <= ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query logs in range: %w", err)
	}
	defer rows.Close()
	var out []models.CompletionLog
	for rows.Next() {
		var r logRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, r.log())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return out, nil
}

// ---- Feedback ----

func (s *sqlStore) InsertFeedback(ctx context.Context, f models.Feedback) (*models.Feedback, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO habit_ai_feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		f.ID, f.UserID, f.Message, f.Sentiment, f.FeedbackDate, f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert feedback for user %s: %w", f.UserID, err)
	}
	return &f, nil
}

func (s *sqlStore) ListFeedback(ctx context.Context, userID string) ([]models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM habit_ai_feedback`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()
	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.Message, &f.Sentiment, &f.FeedbackDate, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- Retry queue ----

func (s *sqlStore) EnqueueRetry(ctx context.Context, job models.RetryJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.RetryStatusPending
	}
	ts := now()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO habit_retry_queue (`+retryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, string(job.OperationType), string(job.Payload), job.RetryCount, job.MaxRetries,
		job.NextRetryAt.UTC(), nilIfEmpty(job.ErrorMessage), string(job.Status), ts, ts)
	if err != nil {
		return "", fmt.Errorf("enqueue retry: %w", err)
	}
	slog.Debug("sqlStore.EnqueueRetry", "dialect", s.d.name, "id", job.ID, "operation", job.OperationType)
	return job.ID, nil
}

func (s *sqlStore) ClaimDueRetries(ctx context.Context, at time.Time, limit int) ([]models.RetryJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim retries: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.q(`SELECT `+retryColumns+` FROM habit_retry_queue
		WHERE status = ? AND next_retry_at <= ? ORDER BY next_retry_at ASC LIMIT ?`),
		string(models.RetryStatusPending), at.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due retries query: %w", err)
	}
	var jobs []models.RetryJob
	for rows.Next() {
		j, err := scanRetry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due retries iteration: %w", err)
	}

	for i := range jobs {
		_, err := tx.ExecContext(ctx, s.q(`UPDATE habit_retry_queue SET status = ?, updated_at = ? WHERE id = ?`),
			string(models.RetryStatusRunning), at.UTC(), jobs[i].ID)
		if err != nil {
			return nil, fmt.Errorf("mark retry running: %w", err)
		}
		jobs[i].Status = models.RetryStatusRunning
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim retries: %w", err)
	}
	return jobs, nil
}

func (s *sqlStore) CompleteRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE habit_retry_queue SET status = ?, updated_at = ? WHERE id = ?`),
		string(models.RetryStatusDone), now(), id)
	if err != nil {
		return fmt.Errorf("complete retry: %w", err)
	}
	return nil
}

func (s *sqlStore) FailRetry(ctx context.Context, id string, errMsg string, next time.Time) error {
	var count, max int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT retry_count, max_retries FROM habit_retry_queue WHERE id = ?`), id).Scan(&count, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("fail retry lookup: %w", err)
	}
	count++
	if count >= max {
		_, err = s.db.ExecContext(ctx, s.q(`UPDATE habit_retry_queue SET status = ?, retry_count = ?, error_message = ?, updated_at = ? WHERE id = ?`),
			string(models.RetryStatusExhausted), count, errMsg, now(), id)
	} else {
		_, err = s.db.ExecContext(ctx, s.q(`UPDATE habit_retry_queue SET status = ?, retry_count = ?, error_message = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`),
			string(models.RetryStatusPending), count, errMsg, next.UTC(), now(), id)
	}
	if err != nil {
		return fmt.Errorf("fail retry update: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleRetries(ctx context.Context, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE habit_retry_queue SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`),
		string(models.RetryStatusPending), now(), string(models.RetryStatusRunning), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale retries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqlStore) ListRetries(ctx context.Context) ([]models.RetryJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+retryColumns+` FROM habit_retry_queue ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query retries: %w", err)
	}
	defer rows.Close()
	var out []models.RetryJob
	for rows.Next() {
		j, err := scanRetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ---- Dedup ----

func (s *sqlStore) RecordInbound(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO habit_webhook_events (event_id, received_at) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING`),
		eventID, now())
	if err != nil {
		return false, fmt.Errorf("record inbound event: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "dialect", s.d.name)
	return s.db.Close()
}

// ---- Row scanning ----

type userRow struct {
	u             models.User
	name          sql.NullString
	plan, persona string
}

func (r *userRow) dest() []any {
	return []any{&r.u.ID, &r.u.ExternalID, &r.name, &r.plan, &r.persona, &r.u.CreatedAt, &r.u.UpdatedAt}
}

func (r *userRow) user() models.User {
	u := r.u
	u.Name = r.name.String
	u.Plan = models.Plan(r.plan)
	u.Persona = models.Persona(r.persona)
	return u
}

type habitRow struct {
	h                       models.Habit
	reminder, lastCompleted sql.NullString
}

func (r *habitRow) dest() []any {
	return []any{&r.h.ID, &r.h.UserID, &r.h.Title, &r.reminder, &r.h.IsActive, &r.h.StreakCount,
		&r.lastCompleted, &r.h.CreatedAt, &r.h.UpdatedAt}
}

func (r *habitRow) habit() models.Habit {
	h := r.h
	h.ReminderTime = models.ReminderTime(r.reminder.String)
	h.LastCompletedDate = r.lastCompleted.String
	return h
}

type logRow struct {
	l    models.CompletionLog
	note sql.NullString
}

func (r *logRow) dest() []any {
	return []any{&r.l.ID, &r.l.HabitID, &r.l.Date, &r.l.Status, &r.note, &r.l.CreatedAt, &r.l.UpdatedAt}
}

func (r *logRow) log() models.CompletionLog {
	l := r.l
	l.Note = r.note.String
	return l
}

// scanRetry scans a RetryJob from sql.Rows.
func scanRetry(rows *sql.Rows) (models.RetryJob, error) {
	var j models.RetryJob
	var op, status string
	var payload, errMsg sql.NullString
	err := rows.Scan(&j.ID, &op, &payload, &j.RetryCount, &j.MaxRetries, &j.NextRetryAt,
		&errMsg, &status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return j, fmt.Errorf("scan retry job failed: %w", err)
	}
	j.OperationType = models.RetryOperation(op)
	j.Status = models.RetryStatus(status)
	j.ErrorMessage = errMsg.String
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	return j, nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
