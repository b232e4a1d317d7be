package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/tone"
)

// FeedbackHeader prefixes every delivered feedback message.
const FeedbackHeader = "📊 今日のふりかえり\n\n"

// StreakInfo is a completed habit and its current streak.
type StreakInfo struct {
	Title  string
	Streak int
}

// PromptContext is what the completion call is told about one user's day.
type PromptContext struct {
	UserName  string
	Persona   models.Persona
	Completed int
	Total     int
	Streaks   []StreakInfo
	Notes     []string
}

// UserPrompt renders the user instruction for the completion call.
func (c PromptContext) UserPrompt() string {
	streaks := make([]string, len(c.Streaks))
	for i, s := range c.Streaks {
		streaks[i] = fmt.Sprintf("%s(%d日)", s.Title, s.Streak)
	}
	notes := ""
	if len(c.Notes) > 0 {
		notes = "- メモ: " + strings.Join(c.Notes, ", ")
	}
	return fmt.Sprintf("【今日の記録】%sさん\n- 達成: %d/%d習慣\n- 連続記録: %s\n%s\n\nフィードバックをお願いします。",
		c.UserName, c.Completed, c.Total, strings.Join(streaks, ", "), notes)
}

// Sentiment maps a day's completion rate to a fixed score.
func Sentiment(completed, total int) float64 {
	if total <= 0 {
		return 0.2
	}
	rate := float64(completed) / float64(total)
	switch {
	case rate >= 0.8:
		return 0.8
	case rate >= 0.5:
		return 0.5
	default:
		return 0.2
	}
}

type userDay struct {
	user    models.User
	entries []models.LogEntry
}

// groupByUser keeps users in the order their first log appears.
func groupByUser(entries []models.LogEntry) []*userDay {
	var out []*userDay
	idx := map[string]*userDay{}
	for _, e := range entries {
		d, ok := idx[e.User.ID]
		if !ok {
			d = &userDay{user: e.User}
			idx[e.User.ID] = d
			out = append(out, d)
		}
		d.entries = append(d.entries, e)
	}
	return out
}

func (d *userDay) context() PromptContext {
	c := PromptContext{
		UserName: d.user.DisplayName(),
		Persona:  d.user.Persona,
		Total:    len(d.entries),
	}
	for _, e := range d.entries {
		if e.Log.Status {
			c.Completed++
			c.Streaks = append(c.Streaks, StreakInfo{Title: e.Habit.Title, Streak: e.Habit.StreakCount})
		}
		if e.Log.Note != "" {
			c.Notes = append(c.Notes, e.Log.Note)
		}
	}
	return c
}

// GenerateFeedback writes and delivers AI feedback for every user with a log
// on date. An empty date means today in JST. The feedback row is stored before
// delivery and a failed push is only logged.
func (r *Runner) GenerateFeedback(ctx context.Context, date string) (models.JobResponse, error) {
	if date == "" {
		date = models.LocalDate(r.now())
	}
	if _, err := models.ParseDate(date); err != nil {
		return models.JobResponse{}, err
	}

	entries, err := r.store.ListLogsByDate(ctx, date)
	if err != nil {
		return models.JobResponse{}, fmt.Errorf("list logs for %s: %w", date, err)
	}
	if len(entries) == 0 {
		slog.Info("Runner.GenerateFeedback: no activity", "date", date)
		return models.JobResponse{Success: true, Message: "No activity to analyze"}, nil
	}

	days := groupByUser(entries)
	slog.Info("Runner.GenerateFeedback: generating", "date", date, "users", len(days))

	ok, failed := fanOut(ctx, r.limit, days, func(ctx context.Context, d *userDay) error {
		return r.feedbackFor(ctx, d, date)
	})

	slog.Info("Runner.GenerateFeedback: batch complete", "successful", ok, "failed", failed)
	return models.JobResponse{
		Success:    true,
		Message:    fmt.Sprintf("Generated feedback for %d users, %d failed", ok, failed),
		Total:      len(days),
		Successful: ok,
		Failed:     failed,
		Count:      len(days),
	}, nil
}

func (r *Runner) feedbackFor(ctx context.Context, d *userDay, date string) error {
	pc := d.context()
	msg := r.compose(ctx, d.user.ID, pc)

	fb, err := r.store.InsertFeedback(ctx, models.Feedback{
		UserID:       d.user.ID,
		Message:      msg,
		Sentiment:    Sentiment(pc.Completed, pc.Total),
		FeedbackDate: date,
	})
	if err != nil {
		slog.Error("Runner.feedbackFor: insert failed", "user_id", d.user.ID, "date", date, "error", err)
		return err
	}

	if err := r.sender.Push(ctx, d.user.ExternalID, messaging.Text(FeedbackHeader+msg)); err != nil {
		slog.Error("Runner.feedbackFor: push failed, feedback kept", "user_id", d.user.ID, "feedback_id", fb.ID, "error", err)
		r.recordFailure(ctx, models.OperationSendFeedback, nil, err)
		return nil
	}
	slog.Debug("Runner.feedbackFor: sent", "user_id", d.user.ID, "feedback_id", fb.ID)
	return nil
}

// compose asks the completer for feedback and falls back to the persona text
// on any failure. It never returns an error.
func (r *Runner) compose(ctx context.Context, userID string, pc PromptContext) string {
	voice := tone.For(pc.Persona)
	if r.completer == nil {
		return voice.Fallback(pc.Completed, pc.Total)
	}
	msg, err := r.completer.Complete(ctx, tone.FeedbackSystemPrompt(pc.Persona), pc.UserPrompt())
	if err != nil {
		slog.Warn("Runner.compose: completion failed, using fallback", "user_id", userID, "error", err)
		return voice.Fallback(pc.Completed, pc.Total)
	}
	return msg
}
