package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// LocalOffsetHours is the fixed display offset (JST) for reminder times and calendar dates.
const LocalOffsetHours = 9

// DateLayout is the calendar date format used for logs and feedback.
const DateLayout = "2006-01-02"

// LocalZone is the fixed JST zone used for user-facing dates and times.
var LocalZone = time.FixedZone("JST", LocalOffsetHours*60*60)

var (
	ErrInvalidTime = errors.New("invalid time of day")
	ErrInvalidDate = errors.New("invalid calendar date")
)

var reminderTimeRegex = regexp.MustCompile(`^(\d{2}):(\d{2}):00$`)

// ReminderTime is a UTC time of day formatted "HH:MM:SS". The zero value means unset.
type ReminderTime string

// NewReminderTimeFromLocal converts a JST hour/minute into the stored UTC time of day.
func NewReminderTimeFromLocal(hour, minute int) (ReminderTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%w: %d:%02d", ErrInvalidTime, hour, minute)
	}
	utcHour := (hour - LocalOffsetHours + 24) % 24
	return ReminderTime(fmt.Sprintf("%02d:%02d:00", utcHour, minute)), nil
}

// ReminderTimeAt truncates t to the minute in UTC.
func ReminderTimeAt(t time.Time) ReminderTime {
	u := t.UTC()
	return ReminderTime(fmt.Sprintf("%02d:%02d:00", u.Hour(), u.Minute()))
}

// IsSet reports whether a reminder time has been configured.
func (r ReminderTime) IsSet() bool {
	return r != ""
}

// Local returns the JST hour and minute for a stored UTC reminder time.
func (r ReminderTime) Local() (hour, minute int, err error) {
	m := reminderTimeRegex.FindStringSubmatch(string(r))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, string(r))
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if h > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, string(r))
	}
	return (h + LocalOffsetHours) % 24, minute, nil
}

// LocalString renders the reminder time as JST "H:MM".
func (r ReminderTime) LocalString() string {
	h, m, err := r.Local()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%02d", h, m)
}

// LocalDate returns the JST calendar date of t.
func LocalDate(t time.Time) string {
	return t.In(LocalZone).Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, LocalZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}
