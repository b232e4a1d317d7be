package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/BTreeMap/HabitLine/internal/store"
)

func TestFailingStore_InjectsAndCounts(t *testing.T) {
	fs := NewFailingStore(store.NewInMemoryStore())
	ctx := context.Background()
	boom := errors.New("boom")

	if _, err := fs.CreateUser(ctx, models.User{ExternalID: "U1"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	fs.FailOn("ListUsers", boom)
	if _, err := fs.ListUsers(ctx); !errors.Is(err, boom) {
		t.Errorf("ListUsers err = %v, want boom", err)
	}
	if fs.Calls("CreateUser") != 1 || fs.TotalCalls() != 2 {
		t.Errorf("calls = %d/%d", fs.Calls("CreateUser"), fs.TotalCalls())
	}
}

func TestWebhookBody_IsSignedAndParsable(t *testing.T) {
	body := WebhookBody(
		WebhookEvent{ID: "e1", Type: "message", UserID: "U1", ReplyToken: "r1", Text: "help"},
		WebhookEvent{ID: "e2", Type: "follow", UserID: "U1", ReplyToken: "r2"},
	)
	if err := line.NewVerifier("s", false).Verify(body, SignBody("s", body)); err != nil {
		t.Fatalf("signature rejected: %v", err)
	}
	events, err := line.ParseEvents(body)
	if err != nil {
		t.Fatalf("ParseEvents: %v", err)
	}
	if len(events) != 2 || events[0].Text != "help" || events[1].Kind != models.EventFollow {
		t.Errorf("unexpected events: %+v", events)
	}
}
