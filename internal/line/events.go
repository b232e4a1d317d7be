package line

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HabitLine/internal/models"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// ParseEvents decodes a webhook envelope and normalizes its events in the
// order received. Events from non-user sources keep an empty UserID.
func ParseEvents(body []byte) ([]models.InboundEvent, error) {
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	events := make([]models.InboundEvent, 0, len(cb.Events))
	for _, raw := range cb.Events {
		events = append(events, normalize(raw))
	}
	return events, nil
}

func normalize(raw webhook.EventInterface) models.InboundEvent {
	switch e := raw.(type) {
	case webhook.MessageEvent:
		ev := models.InboundEvent{
			ID:         e.WebhookEventId,
			Kind:       models.EventMessage,
			UserID:     userID(e.Source),
			ReplyToken: e.ReplyToken,
		}
		if text, ok := e.Message.(webhook.TextMessageContent); ok {
			ev.Text = text.Text
		} else {
			ev.Kind = models.EventOther
		}
		return ev
	case webhook.PostbackEvent:
		ev := models.InboundEvent{
			ID:         e.WebhookEventId,
			Kind:       models.EventPostback,
			UserID:     userID(e.Source),
			ReplyToken: e.ReplyToken,
		}
		if e.Postback != nil {
			ev.PostbackData = e.Postback.Data
		}
		return ev
	case webhook.FollowEvent:
		return models.InboundEvent{
			ID:         e.WebhookEventId,
			Kind:       models.EventFollow,
			UserID:     userID(e.Source),
			ReplyToken: e.ReplyToken,
		}
	default:
		slog.Debug("line.normalize: ignoring event", "type", fmt.Sprintf("%T", raw))
		return models.InboundEvent{Kind: models.EventOther}
	}
}

func userID(src webhook.SourceInterface) string {
	if u, ok := src.(webhook.UserSource); ok {
		return u.UserId
	}
	return ""
}
