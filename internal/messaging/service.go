// Package messaging provides the outbound chat capability: replies addressed by
// reply token, pushes addressed by user id, and profile lookup. LINE and Twilio
// backends share one platform-neutral message model.
package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers messages. A returned error means the platform did not accept them.
type Sender interface {
	// Reply answers an inbound event using its reply token.
	Reply(ctx context.Context, replyToken string, msgs ...Message) error
	// Push sends to an external user id without a reply token.
	Push(ctx context.Context, to string, msgs ...Message) error
}

// Profile is the subset of a chat-platform profile the bot uses.
type Profile struct {
	UserID      string
	DisplayName string
}

// ProfileFetcher looks up a user's public profile.
type ProfileFetcher interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// Service is a full messaging backend.
type Service interface {
	Sender
	ProfileFetcher
}

// QuickReply is a suggested reply button that sends Text when tapped.
type QuickReply struct {
	Label string
	Text  string
}

// ReminderCard is a rich reminder carrying done/later buttons for one habit.
type ReminderCard struct {
	HabitID string
	Title   string
}

// Message is a platform-neutral outbound message. When Reminder is set the
// message renders as a reminder card and Text is ignored.
type Message struct {
	Text         string
	QuickReplies []QuickReply
	Reminder     *ReminderCard
}

// DefaultQuickReplies are attached to most command replies.
var DefaultQuickReplies = []QuickReply{
	{Label: "ヘルプ", Text: "help"},
	{Label: "やった", Text: "やった"},
	{Label: "進捗", Text: "進捗"},
	{Label: "一覧", Text: "一覧"},
}

// Text builds a text message with optional quick replies.
func Text(text string, quick ...QuickReply) Message {
	return Message{Text: text, QuickReplies: quick}
}

// TextWithMenu builds a text message carrying DefaultQuickReplies.
func TextWithMenu(text string) Message {
	return Text(text, DefaultQuickReplies...)
}

// Reminder builds a reminder card for a habit.
func Reminder(habitID, title string) Message {
	return Message{Reminder: &ReminderCard{HabitID: habitID, Title: title}}
}

// ReminderAltText is the notification preview for a reminder card.
func ReminderAltText(title string) string {
	return "⏰ 習慣リマインド: " + title
}

// ErrNotConfigured is returned by a backend created without credentials.
var ErrNotConfigured = errors.New("messaging backend not configured")

// unconfigured fails every send; it lets the process start without
// credentials so the webhook can report the setup error itself.
type unconfigured struct{ reason string }

// NewUnconfiguredService returns a Service whose sends fail with ErrNotConfigured.
func NewUnconfiguredService(reason string) Service {
	return unconfigured{reason: reason}
}

func (u unconfigured) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, u.reason)
}

func (u unconfigured) Push(ctx context.Context, to string, msgs ...Message) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, u.reason)
}

func (u unconfigured) Profile(ctx context.Context, userID string) (Profile, error) {
	return Profile{}, fmt.Errorf("%w: %s", ErrNotConfigured, u.reason)
}
