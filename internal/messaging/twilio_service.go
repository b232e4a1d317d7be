package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// phoneNumberRegex matches every non-digit character.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// TwilioService implements Service over a TwilioSender. Twilio has no reply
// tokens, so replies are addressed to the sender's canonical number.
type TwilioService struct {
	client TwilioSender
}

// Compile-time check that TwilioService implements Service.
var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService with a real or mock client.
func NewTwilioService(client TwilioSender) *TwilioService {
	return &TwilioService{client: client}
}

// CanonicalizeNumber strips everything but digits and requires at least 6 of them.
func CanonicalizeNumber(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Reply sends to the number carried in replyToken.
func (s *TwilioService) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	return s.Push(ctx, replyToken, msgs...)
}

// Push renders each message as text and sends it.
func (s *TwilioService) Push(ctx context.Context, to string, msgs ...Message) error {
	canonical, err := CanonicalizeNumber(to)
	if err != nil {
		slog.Error("TwilioService.Push validation error", "error", err, "to", to)
		return err
	}
	for _, m := range msgs {
		if err := s.client.SendMessage(ctx, canonical, RenderPlain(m)); err != nil {
			return err
		}
	}
	return nil
}

// Profile returns the number as id and no display name; Twilio exposes no profile.
func (s *TwilioService) Profile(ctx context.Context, userID string) (Profile, error) {
	return Profile{UserID: userID}, nil
}

// RenderPlain flattens a message for text-only channels.
func RenderPlain(m Message) string {
	if m.Reminder != nil {
		return "⏰ いまの習慣タイム!\n" + m.Reminder.Title + "\n\n「やった」または「あとで」と返信してください。"
	}
	if len(m.QuickReplies) == 0 {
		return m.Text
	}
	labels := make([]string, 0, len(m.QuickReplies))
	for _, q := range m.QuickReplies {
		labels = append(labels, q.Text)
	}
	return m.Text + "\n\n▶ " + strings.Join(labels, " / ")
}
