package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/BTreeMap/HabitLine/internal/messaging"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
	"github.com/BTreeMap/HabitLine/internal/testutil"
)

// 2024-03-03 10:00 JST.
var testNow = time.Date(2024, 3, 3, 1, 0, 0, 0, time.UTC)

type fixture struct {
	store  *testutil.FailingStore
	sender *messaging.MockSender
	proc   *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.NewFailingStore(store.NewInMemoryStore())
	sender := messaging.NewMockSender()
	return &fixture{
		store:  st,
		sender: sender,
		proc:   NewProcessor(st, sender, WithClock(testutil.FixedClock(testNow))),
	}
}

func text(id, user, token, body string) models.InboundEvent {
	return models.InboundEvent{ID: id, Kind: models.EventMessage, UserID: user, ReplyToken: token, Text: body}
}

// say processes one text event and returns the single reply text.
func (f *fixture) say(t *testing.T, user, body string) string {
	t.Helper()
	before := len(f.sender.Replies())
	token := "r-" + body
	f.proc.Process(context.Background(), []models.InboundEvent{text("", user, token, body)})
	replies := f.sender.Replies()
	if len(replies) != before+1 {
		t.Fatalf("%q: expected exactly one reply, got %d", body, len(replies)-before)
	}
	last := replies[len(replies)-1]
	if last.To != token || len(last.Messages) != 1 {
		t.Fatalf("%q: reply %+v", body, last)
	}
	return last.Messages[0].Text
}

func (f *fixture) user(t *testing.T, external string) *models.User {
	t.Helper()
	u, err := f.store.GetUserByExternalID(context.Background(), external)
	if err != nil {
		t.Fatalf("GetUserByExternalID: %v", err)
	}
	return u
}

func TestProcessor_AddHabit(t *testing.T) {
	f := newFixture(t)
	reply := f.say(t, "U1", "習慣 追加 読書10分")
	if !strings.Contains(reply, "読書10分") {
		t.Errorf("reply %q lacks title", reply)
	}
	habits, _ := f.store.ListHabits(context.Background(), f.user(t, "U1").ID)
	if len(habits) != 1 {
		t.Fatalf("habits = %d, want 1", len(habits))
	}
	h := habits[0]
	if h.Title != "読書10分" || !h.IsActive || h.ReminderTime.IsSet() {
		t.Errorf("habit = %+v", h)
	}
}

func TestProcessor_AddHabitUsage(t *testing.T) {
	f := newFixture(t)
	reply := f.say(t, "U1", "習慣 追加   ")
	if !strings.HasPrefix(reply, "使い方") {
		t.Errorf("reply = %q, want usage", reply)
	}
	if f.store.Calls("CreateHabit") != 0 {
		t.Error("usage path must not create habits")
	}
}

func TestProcessor_SetReminderAppliesToAllActive(t *testing.T) {
	f := newFixture(t)
	f.say(t, "U1", "習慣 追加 読書")
	f.say(t, "U1", "習慣 追加 散歩")
	reply := f.say(t, "U1", "リマインド 07:05")
	if !strings.Contains(reply, "7:05") || !strings.Contains(reply, "2個") {
		t.Errorf("reply = %q", reply)
	}
	habits, _ := f.store.ListHabits(context.Background(), f.user(t, "U1").ID)
	for _, h := range habits {
		if h.ReminderTime != "22:05:00" {
			t.Errorf("habit %s reminder = %q, want 22:05:00", h.Title, h.ReminderTime)
		}
		if h.ReminderTime.LocalString() != "7:05" {
			t.Errorf("round trip = %q", h.ReminderTime.LocalString())
		}
	}
}

func TestProcessor_SetReminderRejectsMalformed(t *testing.T) {
	for _, input := range []string{"25:99", "リマインド 24:00", "リマインド 07:60", "リマインド いつか"} {
		t.Run(input, func(t *testing.T) {
			f := newFixture(t)
			f.say(t, "U1", "習慣 追加 読書")
			reply := f.say(t, "U1", input)
			if !strings.Contains(reply, "使い方") && !strings.Contains(reply, "無効な時刻") {
				t.Errorf("reply = %q, want usage-style", reply)
			}
			if f.store.Calls("SetReminderTime") != 0 {
				t.Error("malformed time must not mutate storage")
			}
		})
	}
}

func TestProcessor_SetReminderWithoutHabits(t *testing.T) {
	f := newFixture(t)
	reply := f.say(t, "U1", "07:00")
	if !strings.Contains(reply, "まだ習慣が登録されていません") {
		t.Errorf("reply = %q", reply)
	}
	if f.store.Calls("SetReminderTime") != 0 {
		t.Error("no habits must mean no update")
	}
}

func TestProcessor_CompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.say(t, "U1", "習慣 追加 読書")
	f.say(t, "U1", "習慣 追加 散歩")

	for i := 0; i < 3; i++ {
		reply := f.say(t, "U1", "やった")
		// Default persona is angel; first active habit is the oldest.
		if !strings.Contains(reply, "読書") || !strings.Contains(reply, "連続1日") {
			t.Errorf("celebration = %q", reply)
		}
	}
	logs, _ := f.store.ListLogsByDate(context.Background(), "2024-03-03")
	if len(logs) != 1 || !logs[0].Log.Status {
		t.Fatalf("logs = %+v, want exactly one completed log", logs)
	}
}

func TestProcessor_CompleteWithoutHabits(t *testing.T) {
	f := newFixture(t)
	reply := f.say(t, "U1", "done")
	if !strings.Contains(reply, "習慣 追加") {
		t.Errorf("reply = %q, want add-habit guidance", reply)
	}
}

func TestProcessor_ProgressAndList(t *testing.T) {
	f := newFixture(t)
	f.say(t, "U1", "習慣 追加 読書")
	f.say(t, "U1", "習慣 追加 散歩")
	f.say(t, "U1", "やった")

	u := f.user(t, "U1")
	habits, _ := f.store.ListHabits(context.Background(), u.ID)
	// newest first: 散歩 then 読書
	f.store.SetHabitActive(context.Background(), habits[0].ID, false)

	progress := f.say(t, "U1", "進捗")
	if !strings.Contains(progress, "• 読書: 1日連続") || strings.Contains(progress, "散歩") {
		t.Errorf("progress = %q", progress)
	}
	list := f.say(t, "U1", "一覧")
	if !strings.Contains(list, "⏸️ 散歩\n✅ 読書") {
		t.Errorf("list = %q", list)
	}
}

func TestProcessor_StorageFailureRepliesApology(t *testing.T) {
	f := newFixture(t)
	f.say(t, "U1", "help")
	f.store.FailOn("CreateHabit", errors.New("db down"))
	reply := f.say(t, "U1", "習慣 追加 読書")
	if !strings.Contains(reply, "失敗しました") {
		t.Errorf("reply = %q, want failure apology", reply)
	}
}

func TestProcessor_ResolverFailureRepliesAndContinues(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("GetUserByExternalID", errors.New("db down"))
	f.proc.Process(context.Background(), []models.InboundEvent{
		text("", "U1", "r1", "help"),
		text("", "U2", "r2", "help"),
	})
	replies := f.sender.Replies()
	if len(replies) != 2 {
		t.Fatalf("replies = %d, want one per event", len(replies))
	}
	for _, r := range replies {
		if r.Messages[0].Text != GenericErrorText {
			t.Errorf("reply = %q", r.Messages[0].Text)
		}
	}
}

func TestProcessor_ReplyFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.sender.FailFor("r1")
	f.proc.Process(context.Background(), []models.InboundEvent{
		text("e1", "U1", "r1", "help"),
		text("e2", "U1", "r2", "一覧"),
	})
	replies := f.sender.Replies()
	if len(replies) != 1 || replies[0].To != "r2" {
		t.Errorf("replies = %+v, want only r2", replies)
	}
}

func TestProcessor_SameNewUserTwiceInOneBatch(t *testing.T) {
	f := newFixture(t)
	f.proc.Process(context.Background(), []models.InboundEvent{
		text("e1", "Unew", "r1", "help"),
		text("e2", "Unew", "r2", "help"),
	})
	users, _ := f.store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}
}

func TestProcessor_DedupSkipsRedelivery(t *testing.T) {
	f := newFixture(t)
	ev := text("e1", "U1", "r1", "習慣 追加 読書")
	f.proc.Process(context.Background(), []models.InboundEvent{ev})
	f.proc.Process(context.Background(), []models.InboundEvent{ev})
	habits, _ := f.store.ListHabits(context.Background(), f.user(t, "U1").ID)
	if len(habits) != 1 {
		t.Errorf("habits = %d, redelivery must be skipped", len(habits))
	}
	if len(f.sender.Replies()) != 1 {
		t.Errorf("replies = %d, want 1", len(f.sender.Replies()))
	}
}

func TestProcessor_PostbackDoneAndLater(t *testing.T) {
	f := newFixture(t)
	f.say(t, "U1", "習慣 追加 読書")
	u := f.user(t, "U1")
	habits, _ := f.store.ListHabits(context.Background(), u.ID)
	habitID := habits[0].ID

	f.proc.Process(context.Background(), []models.InboundEvent{
		{ID: "p1", Kind: models.EventPostback, UserID: "U1", ReplyToken: "pb1", PostbackData: line.PostbackData(line.ActionDone, habitID)},
		{ID: "p2", Kind: models.EventPostback, UserID: "U1", ReplyToken: "pb2", PostbackData: line.PostbackData(line.ActionLater, habitID)},
		{ID: "p3", Kind: models.EventPostback, UserID: "U1", ReplyToken: "pb3", PostbackData: "action=done"},
	})
	replies := f.sender.Replies()[1:]
	if len(replies) != 2 {
		t.Fatalf("replies = %+v, want done and later only", replies)
	}
	if !strings.Contains(replies[0].Messages[0].Text, "読書") {
		t.Errorf("done reply = %q", replies[0].Messages[0].Text)
	}
	if replies[1].Messages[0].Text != LaterText {
		t.Errorf("later reply = %q", replies[1].Messages[0].Text)
	}
	got, _ := f.store.GetHabit(context.Background(), habitID)
	if got.StreakCount != 1 || got.LastCompletedDate != "2024-03-03" {
		t.Errorf("habit after postback = %+v", got)
	}
}

func TestProcessor_PostbackForeignHabit(t *testing.T) {
	f := newFixture(t)
	f.say(t, "Uowner", "習慣 追加 読書")
	owner := f.user(t, "Uowner")
	habits, _ := f.store.ListHabits(context.Background(), owner.ID)

	f.proc.Process(context.Background(), []models.InboundEvent{
		{ID: "p1", Kind: models.EventPostback, UserID: "Uother", ReplyToken: "pb", PostbackData: line.PostbackData(line.ActionDone, habits[0].ID)},
	})
	if f.store.Calls("UpsertLog") != 0 {
		t.Error("foreign habit must not be completed")
	}
	replies := f.sender.Replies()
	if last := replies[len(replies)-1]; last.Messages[0].Text != habitNotFoundText {
		t.Errorf("reply = %q", last.Messages[0].Text)
	}
}

func TestProcessor_FollowAndUnrecognized(t *testing.T) {
	f := newFixture(t)
	f.proc.Process(context.Background(), []models.InboundEvent{
		{ID: "f1", Kind: models.EventFollow, UserID: "U1", ReplyToken: "rf"},
	})
	if got := f.sender.Replies()[0].Messages[0].Text; got != FollowText {
		t.Errorf("follow reply = %q", got)
	}
	if reply := f.say(t, "U1", "こんにちは"); reply != UnrecognizedText {
		t.Errorf("unrecognized reply = %q", reply)
	}
	last := f.sender.Replies()[len(f.sender.Replies())-1]
	if len(last.Messages[0].QuickReplies) != len(messaging.DefaultQuickReplies) {
		t.Error("unrecognized reply must carry quick replies")
	}
}

func TestProcessor_IgnoresNonUserEvents(t *testing.T) {
	f := newFixture(t)
	f.proc.Process(context.Background(), []models.InboundEvent{
		{ID: "g1", Kind: models.EventMessage, ReplyToken: "rg", Text: "help"},
		{ID: "o1", Kind: models.EventOther, UserID: "U1"},
	})
	if f.store.TotalCalls() != 0 || len(f.sender.Replies()) != 0 {
		t.Error("non-user and unsupported events must be ignored")
	}
}

func TestProcessor_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.proc.handlers = nil // forces a nil dereference inside dispatch
	f.proc.Process(context.Background(), []models.InboundEvent{
		text("e1", "U1", "r1", "一覧"),
	})
	replies := f.sender.Replies()
	if len(replies) != 1 || replies[0].Messages[0].Text != GenericErrorText {
		t.Errorf("replies after panic = %+v", replies)
	}
}
