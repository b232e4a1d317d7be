package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/HabitLine/internal/line"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINEOpts holds configuration for the LINE backend.
type LINEOpts struct {
	ChannelToken string
	Endpoint     string
	HTTPClient   *http.Client
}

// LINEOption configures the LINE backend.
type LINEOption func(*LINEOpts)

// WithChannelToken sets the channel access token.
func WithChannelToken(token string) LINEOption {
	return func(o *LINEOpts) { o.ChannelToken = token }
}

// WithEndpoint overrides the Messaging API base URL.
func WithEndpoint(endpoint string) LINEOption {
	return func(o *LINEOpts) { o.Endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) LINEOption {
	return func(o *LINEOpts) { o.HTTPClient = c }
}

// LINEService implements Service on the LINE Messaging API.
type LINEService struct {
	api *messaging_api.MessagingApiAPI
}

// Compile-time check that LINEService implements Service.
var _ Service = (*LINEService)(nil)

// NewLINEService creates a LINE backend.
func NewLINEService(opts ...LINEOption) (*LINEService, error) {
	var cfg LINEOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ChannelToken == "" {
		return nil, fmt.Errorf("LINE channel access token must be provided")
	}
	var apiOpts []messaging_api.MessagingApiAPIOption
	if cfg.Endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.Endpoint))
	}
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, messaging_api.WithHTTPClient(cfg.HTTPClient))
	}
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("create LINE client: %w", err)
	}
	slog.Debug("NewLINEService: client created", "custom_endpoint", cfg.Endpoint != "")
	return &LINEService{api: api}, nil
}

// Reply sends messages using a reply token.
func (s *LINEService) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	_, err := s.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   toLINEMessages(msgs),
	})
	if err != nil {
		slog.Error("LINEService.Reply failed", "error", err)
		return fmt.Errorf("LINE reply: %w", err)
	}
	return nil
}

// Push sends messages to a user id.
func (s *LINEService) Push(ctx context.Context, to string, msgs ...Message) error {
	_, err := s.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: toLINEMessages(msgs),
	}, "")
	if err != nil {
		slog.Error("LINEService.Push failed", "to", to, "error", err)
		return fmt.Errorf("LINE push to %s: %w", to, err)
	}
	slog.Debug("LINEService.Push succeeded", "to", to, "count", len(msgs))
	return nil
}

// Profile fetches a user's display name.
func (s *LINEService) Profile(ctx context.Context, userID string) (Profile, error) {
	p, err := s.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return Profile{}, fmt.Errorf("LINE profile %s: %w", userID, err)
	}
	return Profile{UserID: p.UserId, DisplayName: p.DisplayName}, nil
}

func toLINEMessages(msgs []Message) []messaging_api.MessageInterface {
	out := make([]messaging_api.MessageInterface, 0, len(msgs))
	for _, m := range msgs {
		if m.Reminder != nil {
			out = append(out, reminderFlex(*m.Reminder))
			continue
		}
		tm := &messaging_api.TextMessage{Text: m.Text}
		if len(m.QuickReplies) > 0 {
			items := make([]messaging_api.QuickReplyItem, 0, len(m.QuickReplies))
			for _, q := range m.QuickReplies {
				items = append(items, messaging_api.QuickReplyItem{
					Action: &messaging_api.MessageAction{Label: q.Label, Text: q.Text},
				})
			}
			tm.QuickReply = &messaging_api.QuickReply{Items: items}
		}
		out = append(out, tm)
	}
	return out
}

// reminderFlex renders the reminder bubble with done/later postback buttons.
func reminderFlex(c ReminderCard) *messaging_api.FlexMessage {
	return &messaging_api.FlexMessage{
		AltText: ReminderAltText(c.Title),
		Contents: &messaging_api.FlexBubble{
			Body: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexText{
						Text:   "⏰ いまの習慣タイム!",
						Weight: messaging_api.FlexTextWEIGHT_BOLD,
						Size:   "lg",
						Color:  "#1DB446",
					},
					&messaging_api.FlexText{
						Text:   c.Title,
						Margin: "md",
						Size:   "xl",
						Weight: messaging_api.FlexTextWEIGHT_BOLD,
						Wrap:   true,
					},
				},
			},
			Footer: &messaging_api.FlexBox{
				Layout:  messaging_api.FlexBoxLAYOUT_HORIZONTAL,
				Spacing: "sm",
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexButton{
						Style: messaging_api.FlexButtonSTYLE_PRIMARY,
						Action: &messaging_api.PostbackAction{
							Label:       "やった",
							Data:        line.PostbackData(line.ActionDone, c.HabitID),
							DisplayText: "やった",
						},
					},
					&messaging_api.FlexButton{
						Style: messaging_api.FlexButtonSTYLE_SECONDARY,
						Action: &messaging_api.PostbackAction{
							Label:       "あとで",
							Data:        line.PostbackData(line.ActionLater, c.HabitID),
							DisplayText: "あとで",
						},
					},
				},
			},
		},
	}
}
