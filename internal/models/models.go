// Package models defines the core data structures for HabitLine.
//
// It includes users, habits, completion logs, AI feedback rows and retry jobs,
// which are shared across the store, flow, jobs and api modules.
package models

import (
	"encoding/json"
	"time"
)

// Plan is a user's subscription tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
	PlanTeam     Plan = "team"
)

// Persona selects the tone of every bot message sent to a user.
type Persona string

const (
	PersonaAngel   Persona = "angel"
	PersonaCoach   Persona = "coach"
	PersonaFriend  Persona = "friend"
	PersonaAnalyst Persona = "analyst"
)

// DefaultPersona is assigned to users created on first contact.
const DefaultPersona = PersonaAngel

// AllPersonas lists every persona in a stable order.
var AllPersonas = []Persona{PersonaAngel, PersonaCoach, PersonaFriend, PersonaAnalyst}

// IsValid reports whether p is one of the four fixed personas.
func (p Persona) IsValid() bool {
	switch p {
	case PersonaAngel, PersonaCoach, PersonaFriend, PersonaAnalyst:
		return true
	default:
		return false
	}
}

// IsValid reports whether p is a known subscription tier.
func (p Plan) IsValid() bool {
	switch p {
	case PlanFree, PlanStandard, PlanPremium, PlanTeam:
		return true
	default:
		return false
	}
}

// User is bound to exactly one external chat-platform identity.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name,omitempty"`
	Plan       Plan      `json:"plan"`
	Persona    Persona   `json:"persona"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName returns the user's name or a neutral fallback.
func (u User) DisplayName() string {
	if u.Name == "" {
		return "あなた"
	}
	return u.Name
}

// Habit is a recurring action tracked daily for one user.
type Habit struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	Title             string       `json:"title"`
	ReminderTime      ReminderTime `json:"reminder_time,omitempty"` // UTC "HH:MM:SS", empty when unset
	IsActive          bool         `json:"is_active"`
	StreakCount       int          `json:"streak_count"`
	LastCompletedDate string       `json:"last_completed_date,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// CompletionLog is one day's done/not-done record for one habit.
// At most one log exists per (HabitID, Date).
type CompletionLog struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Status    bool      `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogEntry is a completion log joined to its habit and owning user.
type LogEntry struct {
	Log   CompletionLog
	Habit Habit
	User  User
}

// HabitReminder is an active habit due for a reminder together with its owner.
type HabitReminder struct {
	Habit Habit
	User  User
}

// Feedback is an append-only AI feedback row for a user and date.
type Feedback struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Message      string    `json:"message"`
	Sentiment    float64   `json:"sentiment"`
	FeedbackDate string    `json:"feedback_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// RetryOperation names the kind of work a RetryJob re-attempts.
type RetryOperation string

const (
	OperationSendReminder RetryOperation = "send_reminder"
	OperationSendReport   RetryOperation = "send_report"
	OperationSendFeedback RetryOperation = "send_feedback"
)

// RetryStatus is the lifecycle state of a RetryJob.
type RetryStatus string

const (
	RetryStatusPending   RetryStatus = "pending"
	RetryStatusRunning   RetryStatus = "running"
	RetryStatusDone      RetryStatus = "done"
	RetryStatusExhausted RetryStatus = "exhausted"
)

// RetryJob is a persisted record of a failed outbound operation.
type RetryJob struct {
	ID            string          `json:"id"`
	OperationType RetryOperation  `json:"operation_type"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	NextRetryAt   time.Time       `json:"next_retry_at"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Status        RetryStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReminderPayload is the RetryJob payload for OperationSendReminder.
type ReminderPayload struct {
	HabitID string `json:"habit_id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
}
