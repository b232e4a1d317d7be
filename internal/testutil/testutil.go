// Package testutil provides common test utilities and helpers for HabitLine tests.
package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SignBody returns the base64 HMAC-SHA256 signature LINE sends for body.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// WebhookEvent describes one event for WebhookBody.
type WebhookEvent struct {
	ID         string
	Type       string // message, postback, follow
	UserID     string
	ReplyToken string
	Text       string
	Postback   string
}

// WebhookBody renders a LINE webhook envelope containing events.
func WebhookBody(events ...WebhookEvent) []byte {
	parts := make([]string, 0, len(events))
	for i, e := range events {
		fields := map[string]any{
			"type":            e.Type,
			"mode":            "active",
			"timestamp":       1700000000000 + int64(i),
			"webhookEventId":  e.ID,
			"deliveryContext": map[string]any{"isRedelivery": false},
			"source":          map[string]any{"type": "user", "userId": e.UserID},
			"replyToken":      e.ReplyToken,
		}
		switch e.Type {
		case "message":
			fields["message"] = map[string]any{"type": "text", "id": fmt.Sprintf("m%d", i), "quoteToken": "q", "text": e.Text}
		case "postback":
			fields["postback"] = map[string]any{"data": e.Postback}
		case "follow":
			fields["follow"] = map[string]any{"isUnblocked": false}
		}
		raw, _ := json.Marshal(fields)
		parts = append(parts, string(raw))
	}
	return []byte(`{"destination":"Udest","events":[` + strings.Join(parts, ",") + `]}`)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeJSON decodes the recorder body into a generic map.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	return out
}
