package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

// SendReminders pushes a reminder card for every active habit whose UTC
// reminder time equals the current minute exactly. Missed minutes are not
// made up. Each failed push is logged and queued for retry.
func (r *Runner) SendReminders(ctx context.Context) (models.JobResponse, error) {
	at := models.ReminderTimeAt(r.now())
	slog.Debug("Runner.SendReminders: checking reminders", "time", at)

	due, err := r.store.ListDueReminders(ctx, at)
	if err != nil {
		return models.JobResponse{}, fmt.Errorf("list reminders due at %s: %w", at, err)
	}
	if len(due) == 0 {
		return models.JobResponse{Success: true, Message: "No reminders to send"}, nil
	}
	slog.Info("Runner.SendReminders: dispatching", "time", at, "count", len(due))

	ok, failed := fanOut(ctx, r.limit, due, r.sendReminder)

	slog.Info("Runner.SendReminders: batch complete", "successful", ok, "failed", failed)
	return models.JobResponse{
		Success:    true,
		Message:    fmt.Sprintf("Sent %d reminders, %d failed", ok, failed),
		Total:      len(due),
		Successful: ok,
		Failed:     failed,
		Count:      len(due),
	}, nil
}

func (r *Runner) sendReminder(ctx context.Context, d models.HabitReminder) error {
	err := r.sender.Push(ctx, d.User.ExternalID, messaging.Reminder(d.Habit.ID, d.Habit.Title))
	if err != nil {
		slog.Error("Runner.sendReminder: push failed", "habit_id", d.Habit.ID, "user_id", d.User.ID, "error", err)
		r.recordFailure(ctx, models.OperationSendReminder, models.ReminderPayload{
			HabitID: d.Habit.ID,
			UserID:  d.User.ID,
			Title:   d.Habit.Title,
		}, err)
		return err
	}
	slog.Debug("Runner.sendReminder: sent", "habit_id", d.Habit.ID, "user_id", d.User.ID)
	return nil
}

// RetryReminder re-sends a queued reminder. A habit that was deleted or
// paused since the failure is treated as done.
func (r *Runner) RetryReminder(ctx context.Context, job models.RetryJob) error {
	var p models.ReminderPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode reminder payload: %w", err)
	}

	habit, err := r.store.GetHabit(ctx, p.HabitID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("Runner.RetryReminder: habit gone, dropping", "habit_id", p.HabitID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get habit %s: %w", p.HabitID, err)
	}
	if !habit.IsActive {
		slog.Info("Runner.RetryReminder: habit paused, dropping", "habit_id", p.HabitID)
		return nil
	}

	user, err := r.store.GetUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("get user %s: %w", p.UserID, err)
	}
	if err := r.sender.Push(ctx, user.ExternalID, messaging.Reminder(habit.ID, habit.Title)); err != nil {
		return fmt.Errorf("push reminder: %w", err)
	}
	slog.Info("Runner.RetryReminder: reminder re-sent", "habit_id", habit.ID, "retry_count", job.RetryCount)
	return nil
}
