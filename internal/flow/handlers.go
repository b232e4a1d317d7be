package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
	"github.com/BTreeMap/HabitLine/internal/tone"
)

// User-facing texts.
const (
	HelpText = `📖 HabitLine ヘルプ

【コマンド】
• 開始 / help - このメッセージを表示
• 習慣 追加 <タイトル> - 新しい習慣を登録
• リマインド <HH:MM> - 通知時刻を設定
• やった - 今日の習慣を達成
• あとで - 後で実行
• 進捗 - 連続日数と達成率を表示
• 一覧 - 登録中の習慣を表示

【使い方】
1. 「習慣 追加 読書10分」で習慣を登録
2. 「リマインド 07:00」で通知時刻を設定
3. 毎日通知が届いたら「やった」ボタンをタップ
4. 連続日数を伸ばして習慣を定着させよう！

続ける力を、設計で支える。`

	FollowText       = "ようこそHabitLineへ！✨\n\n続ける力を、設計で支える。\n毎日の小さな習慣を一緒に育てていきましょう。\n\n「help」と入力すると使い方が表示されます。"
	UnrecognizedText = "コマンドが認識できませんでした。\n下のボタンからコマンドを選択してください。"
	LaterText        = "わかりました！また後でリマインドします。"
	GenericErrorText = "エラーが発生しました。しばらくしてからもう一度お試しください。"

	addUsageText        = "使い方: 習慣 追加 <タイトル>\n例: 習慣 追加 読書10分"
	addFailedText       = "習慣の登録に失敗しました。もう一度お試しください。"
	remindUsageText     = "使い方: リマインド <HH:MM>\n例: リマインド 07:00\nまたは直接時刻を入力: 07:00"
	remindRangeText     = "無効な時刻です。00:00〜23:59の範囲で指定してください。"
	remindNoHabitsText  = "まだ習慣が登録されていません。\n先に「習慣 追加 <タイトル>」で習慣を追加してください。"
	remindFailedText    = "リマインダーの設定に失敗しました。もう一度お試しください。"
	completeNoHabitText = "まだ習慣が登録されていません。\n「習慣 追加 <タイトル>」で登録してください。"
	completeFailedText  = "記録に失敗しました。もう一度お試しください。"
	noHabitsText        = "まだ習慣が登録されていません。"
	habitNotFoundText   = "この習慣は見つかりませんでした。"
)

var timeOfDayRegex = regexp.MustCompile(`(?:^|\D)(\d{1,2}):(\d{2})(?:\D|$)`)

// Handlers implements the habit commands. Each method returns the single reply
// to send; none of them sends anything itself.
type Handlers struct {
	store store.Store
	now   func() time.Time
}

// NewHandlers creates Handlers using now as the clock.
func NewHandlers(st store.Store, now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{store: st, now: now}
}

func (h *Handlers) today() string {
	return models.LocalDate(h.now())
}

// Help returns the usage guide.
func (h *Handlers) Help() messaging.Message {
	return messaging.Text(HelpText)
}

// Unrecognized returns the fallback prompt with command buttons.
func (h *Handlers) Unrecognized() messaging.Message {
	return messaging.TextWithMenu(UnrecognizedText)
}

// Follow greets a new subscriber.
func (h *Handlers) Follow() messaging.Message {
	return messaging.TextWithMenu(FollowText)
}

// Later acknowledges a snooze without touching storage.
func (h *Handlers) Later() messaging.Message {
	return messaging.TextWithMenu(LaterText)
}

// AddHabit registers a new active habit without a reminder time.
func (h *Handlers) AddHabit(ctx context.Context, u *models.User, title string) messaging.Message {
	title = strings.TrimSpace(title)
	if title == "" {
		return messaging.TextWithMenu(addUsageText)
	}
	habit, err := h.store.CreateHabit(ctx, models.Habit{UserID: u.ID, Title: title, IsActive: true})
	if err != nil {
		slog.Error("Handlers.AddHabit: create failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(addFailedText)
	}
	slog.Info("Handlers.AddHabit: habit created", "user_id", u.ID, "habit_id", habit.ID)
	return messaging.TextWithMenu(fmt.Sprintf("✅ 習慣「%s」を登録しました！\n\nリマインド時刻を設定するには:\nリマインド 07:00\nのように入力してください。", habit.Title))
}

// SetReminder parses HH:MM in JST and applies the UTC time to all active habits.
func (h *Handlers) SetReminder(ctx context.Context, u *models.User, text string) messaging.Message {
	m := timeOfDayRegex.FindStringSubmatch(text)
	if m == nil {
		slog.Debug("Handlers.SetReminder: no time in text", "user_id", u.ID)
		return messaging.TextWithMenu(remindUsageText)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	rt, err := models.NewReminderTimeFromLocal(hour, minute)
	if err != nil {
		slog.Debug("Handlers.SetReminder: out of range", "user_id", u.ID, "hour", hour, "minute", minute)
		return messaging.TextWithMenu(remindRangeText)
	}

	active, err := h.store.ListActiveHabits(ctx, u.ID)
	if err != nil {
		slog.Error("Handlers.SetReminder: list habits failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(remindFailedText)
	}
	if len(active) == 0 {
		return messaging.TextWithMenu(remindNoHabitsText)
	}

	n, err := h.store.SetReminderTime(ctx, u.ID, rt)
	if err != nil {
		slog.Error("Handlers.SetReminder: update failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(remindFailedText)
	}
	slog.Info("Handlers.SetReminder: reminder set", "user_id", u.ID, "utc", rt, "habits", n)
	return messaging.TextWithMenu(fmt.Sprintf("⏰ リマインダーを %d:%02d に設定しました！\n\n%d個の習慣に適用されました。", hour, minute, n))
}

// Complete marks the user's first active habit (oldest) done for today.
func (h *Handlers) Complete(ctx context.Context, u *models.User) messaging.Message {
	active, err := h.store.ListActiveHabits(ctx, u.ID)
	if err != nil {
		slog.Error("Handlers.Complete: list habits failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(completeFailedText)
	}
	if len(active) == 0 {
		return messaging.TextWithMenu(completeNoHabitText)
	}
	return h.markDone(ctx, u, active[0])
}

// CompleteHabit marks a specific habit done. The habit must belong to u.
func (h *Handlers) CompleteHabit(ctx context.Context, u *models.User, habitID string) messaging.Message {
	habit, err := h.store.GetHabit(ctx, habitID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && habit.UserID != u.ID) {
		slog.Warn("Handlers.CompleteHabit: habit not found for user", "user_id", u.ID, "habit_id", habitID)
		return messaging.TextWithMenu(habitNotFoundText)
	}
	if err != nil {
		slog.Error("Handlers.CompleteHabit: get habit failed", "habit_id", habitID, "error", err)
		return messaging.TextWithMenu(completeFailedText)
	}
	return h.markDone(ctx, u, *habit)
}

func (h *Handlers) markDone(ctx context.Context, u *models.User, habit models.Habit) messaging.Message {
	date := h.today()
	if _, err := h.store.UpsertLog(ctx, habit.ID, date, true, ""); err != nil {
		slog.Error("Handlers.markDone: upsert failed", "habit_id", habit.ID, "date", date, "error", err)
		return messaging.TextWithMenu(completeFailedText)
	}

	streak := 1
	if fresh, err := h.store.GetHabit(ctx, habit.ID); err != nil {
		slog.Warn("Handlers.markDone: streak re-read failed", "habit_id", habit.ID, "error", err)
	} else if fresh.StreakCount > 0 {
		streak = fresh.StreakCount
	}
	slog.Info("Handlers.markDone: habit completed", "user_id", u.ID, "habit_id", habit.ID, "date", date, "streak", streak)
	return messaging.TextWithMenu(tone.For(u.Persona).Celebrate(habit.Title, streak))
}

// Progress lists active habits with their streaks.
func (h *Handlers) Progress(ctx context.Context, u *models.User) messaging.Message {
	active, err := h.store.ListActiveHabits(ctx, u.ID)
	if err != nil {
		slog.Error("Handlers.Progress: list habits failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(GenericErrorText)
	}
	if len(active) == 0 {
		return messaging.TextWithMenu(noHabitsText)
	}
	var b strings.Builder
	b.WriteString("📊 あなたの進捗\n\n")
	for _, habit := range active {
		fmt.Fprintf(&b, "• %s: %d日連続\n", habit.Title, habit.StreakCount)
	}
	return messaging.TextWithMenu(b.String())
}

// List shows every habit, newest first, with an active/paused glyph.
func (h *Handlers) List(ctx context.Context, u *models.User) messaging.Message {
	habits, err := h.store.ListHabits(ctx, u.ID)
	if err != nil {
		slog.Error("Handlers.List: list habits failed", "user_id", u.ID, "error", err)
		return messaging.TextWithMenu(GenericErrorText)
	}
	if len(habits) == 0 {
		return messaging.TextWithMenu(noHabitsText)
	}
	var b strings.Builder
	b.WriteString("📝 登録中の習慣\n\n")
	for _, habit := range habits {
		glyph := "⏸️"
		if habit.IsActive {
			glyph = "✅"
		}
		fmt.Fprintf(&b, "%s %s\n", glyph, habit.Title)
	}
	return messaging.TextWithMenu(b.String())
}

// Postback handles reminder button actions. ok is false when the payload is
// incomplete or the action unknown, in which case nothing is replied.
func (h *Handlers) Postback(ctx context.Context, u *models.User, data string) (msg messaging.Message, ok bool) {
	action, habitID, valid := line.ParsePostback(data)
	if !valid {
		slog.Debug("Handlers.Postback: incomplete payload", "user_id", u.ID, "data", data)
		return messaging.Message{}, false
	}
	switch action {
	case line.ActionDone:
		return h.CompleteHabit(ctx, u, habitID), true
	case line.ActionLater:
		return h.Later(), true
	default:
		slog.Debug("Handlers.Postback: unknown action", "user_id", u.ID, "action", action)
		return messaging.Message{}, false
	}
}
