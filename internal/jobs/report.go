package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/tone"
)

// ReportDays is the length of the weekly report window.
const ReportDays = 7

// HabitStat is one habit's completion over the report window.
type HabitStat struct {
	Title     string
	Completed int
	Total     int
	Rate      float64 // percent
	Streak    int
}

// WeeklyStats aggregates a user's completions over the report window.
type WeeklyStats struct {
	TotalCompleted int
	TotalPossible  int
	Rate           float64 // percent
	Habits         []HabitStat
}

// ComputeWeeklyStats counts completed logs per habit. Habits are ordered by
// rate, highest first; ties keep the input order.
func ComputeWeeklyStats(habits []models.Habit, logs []models.CompletionLog) WeeklyStats {
	done := make(map[string]int, len(habits))
	for _, l := range logs {
		if l.Status {
			done[l.HabitID]++
		}
	}

	s := WeeklyStats{TotalPossible: len(habits) * ReportDays}
	for _, h := range habits {
		n := done[h.ID]
		s.TotalCompleted += n
		s.Habits = append(s.Habits, HabitStat{
			Title:     h.Title,
			Completed: n,
			Total:     ReportDays,
			Rate:      float64(n) / ReportDays * 100,
			Streak:    h.StreakCount,
		})
	}
	if s.TotalPossible > 0 {
		s.Rate = float64(s.TotalCompleted) / float64(s.TotalPossible) * 100
	}
	sort.SliceStable(s.Habits, func(i, j int) bool { return s.Habits[i].Rate > s.Habits[j].Rate })
	return s
}

func reportEmoji(rate float64) string {
	switch {
	case rate >= 80:
		return "🎉"
	case rate >= 60:
		return "💪"
	case rate >= 40:
		return "📈"
	default:
		return "🌱"
	}
}

// ProgressBar renders a ten-cell bar for a rate in percent.
func ProgressBar(rate float64) string {
	filled := int(math.Round(rate / 10))
	filled = max(0, min(10, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

// FormatReport renders the weekly report in the user's persona.
func FormatReport(u models.User, s WeeklyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 週間レポート %s\n\n", reportEmoji(s.Rate))
	fmt.Fprintf(&b, "こんにちは、%sさん！\n", u.DisplayName())
	b.WriteString("今週の習慣の記録をお知らせします。\n\n")

	b.WriteString("【全体の達成率】\n")
	fmt.Fprintf(&b, "%d/%d回 (%.0f%%)\n\n", s.TotalCompleted, s.TotalPossible, math.Round(s.Rate))

	b.WriteString("【習慣別の実績】\n")
	for _, h := range s.Habits {
		fmt.Fprintf(&b, "• %s\n", h.Title)
		fmt.Fprintf(&b, "  %s %d/%d回 (%.0f%%)\n", ProgressBar(h.Rate), h.Completed, h.Total, math.Round(h.Rate))
		if h.Streak > 0 {
			fmt.Fprintf(&b, "  🔥 %d日連続！\n", h.Streak)
		}
		b.WriteString("\n")
	}

	b.WriteString(tone.For(u.Persona).Encourage(s.Rate))
	return b.String()
}

// SendReports pushes a weekly report to every user with an active habit.
// Users without active habits are skipped and counted as successful.
// Delivery failures are logged only.
func (r *Runner) SendReports(ctx context.Context) (models.JobResponse, error) {
	to := models.LocalDate(r.now())
	from, err := models.AddDays(to, -(ReportDays - 1))
	if err != nil {
		return models.JobResponse{}, fmt.Errorf("compute report window: %w", err)
	}

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return models.JobResponse{}, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return models.JobResponse{Success: true, Message: "No users to send reports to"}, nil
	}
	slog.Info("Runner.SendReports: generating reports", "from", from, "to", to, "users", len(users))

	ok, failed := fanOut(ctx, r.limit, users, func(ctx context.Context, u models.User) error {
		return r.sendReport(ctx, u, from, to)
	})

	slog.Info("Runner.SendReports: batch complete", "successful", ok, "failed", failed)
	return models.JobResponse{
		Success:    true,
		Message:    fmt.Sprintf("Sent %d reports, %d failed", ok, failed),
		Total:      len(users),
		Successful: ok,
		Failed:     failed,
		Count:      len(users),
	}, nil
}

func (r *Runner) sendReport(ctx context.Context, u models.User, from, to string) error {
	habits, err := r.store.ListActiveHabits(ctx, u.ID)
	if err != nil {
		slog.Error("Runner.sendReport: list habits failed", "user_id", u.ID, "error", err)
		return err
	}
	if len(habits) == 0 {
		slog.Debug("Runner.sendReport: no active habits, skipping", "user_id", u.ID)
		return nil
	}

	ids := make([]string, len(habits))
	for i, h := range habits {
		ids[i] = h.ID
	}
	logs, err := r.store.ListLogsInRange(ctx, ids, from, to)
	if err != nil {
		slog.Error("Runner.sendReport: list logs failed", "user_id", u.ID, "error", err)
		return err
	}

	report := FormatReport(u, ComputeWeeklyStats(habits, logs))
	if err := r.sender.Push(ctx, u.ExternalID, messaging.Text(report)); err != nil {
		slog.Error("Runner.sendReport: push failed", "user_id", u.ID, "error", err)
		r.recordFailure(ctx, models.OperationSendReport, nil, err)
		return err
	}
	slog.Debug("Runner.sendReport: sent", "user_id", u.ID)
	return nil
}
