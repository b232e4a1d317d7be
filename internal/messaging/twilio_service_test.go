package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingTwilio struct {
	sent []struct{ to, body string }
	err  error
}

func (r *recordingTwilio) SendMessage(ctx context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, struct{ to, body string }{to, body})
	return nil
}

func TestTwilioService_ReplyCanonicalizesAndRenders(t *testing.T) {
	client := &recordingTwilio{}
	svc := NewTwilioService(client)
	err := svc.Reply(context.Background(), "whatsapp:+81 90-1234-5678", TextWithMenu("登録しました"), Reminder("h1", "読書"))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(client.sent))
	}
	if client.sent[0].to != "819012345678" {
		t.Errorf("to = %q", client.sent[0].to)
	}
	if !strings.Contains(client.sent[0].body, "help / やった / 進捗 / 一覧") {
		t.Errorf("quick replies not rendered: %q", client.sent[0].body)
	}
	if !strings.Contains(client.sent[1].body, "読書") {
		t.Errorf("reminder not rendered: %q", client.sent[1].body)
	}
}

func TestTwilioService_PropagatesFailure(t *testing.T) {
	svc := NewTwilioService(&recordingTwilio{err: errors.New("twilio down")})
	if err := svc.Push(context.Background(), "+819012345678", Text("x")); err == nil {
		t.Error("expected error")
	}
}

func TestCanonicalizeNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"whatsapp:+819012345678", "819012345678", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizeNumber(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("CanonicalizeNumber(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNewTwilioClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewTwilioClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("whatsapp:+14155238886")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMockSender_FailFor(t *testing.T) {
	m := NewMockSender()
	m.FailFor("U2")
	ctx := context.Background()
	if err := m.Push(ctx, "U1", Text("a")); err != nil {
		t.Fatalf("Push U1: %v", err)
	}
	if err := m.Push(ctx, "U2", Text("b")); !errors.Is(err, ErrMockDelivery) {
		t.Fatalf("Push U2 err = %v", err)
	}
	if got := len(m.Pushes()); got != 1 {
		t.Errorf("recorded pushes = %d, want 1", got)
	}
}
