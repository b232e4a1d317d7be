package line

import (
	"net/url"
)

// Postback actions carried by reminder buttons.
const (
	ActionDone  = "done"
	ActionLater = "later"
)

// PostbackData encodes a postback payload for a habit button.
func PostbackData(action, habitID string) string {
	v := url.Values{}
	v.Set("action", action)
	v.Set("habit_id", habitID)
	return v.Encode()
}

// ParsePostback extracts action and habit_id. ok is false when either is missing.
func ParsePostback(data string) (action, habitID string, ok bool) {
	v, err := url.ParseQuery(data)
	if err != nil {
		return "", "", false
	}
	action, habitID = v.Get("action"), v.Get("habit_id")
	return action, habitID, action != "" && habitID != ""
}
