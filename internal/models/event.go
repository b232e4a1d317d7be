package models

// EventKind classifies an inbound chat event.
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventPostback EventKind = "postback"
	EventFollow   EventKind = "follow"
	EventOther    EventKind = "other"
)

// InboundEvent is a platform-neutral chat event extracted from a webhook.
type InboundEvent struct {
	// ID is the platform's event id used for redelivery dedup. May be empty.
	ID   string
	Kind EventKind
	// UserID is the external chat-platform user id. Empty for non-user sources.
	UserID string
	// ReplyToken addresses the reply. For platforms without reply tokens it is the sender address.
	ReplyToken string
	// Text is set for text messages only.
	Text string
	// PostbackData is the raw query-string payload of a postback.
	PostbackData string
}
