// Package events provides the typed event vocabulary delivered over the bus.
package events

import "time"

// Type enumerates the events the reward engine emits.
type Type string

const (
	XPUpdated        Type = "xp-updated"
	StreakUpdated    Type = "streak-updated"
	ProgressUpdated  Type = "progress-updated"
	DailyGoalUpdated Type = "daily-goal-updated"
	SessionChanged   Type = "session-changed"
)

// Event is ephemeral: delivered synchronously to current subscribers only,
// never persisted.
type Event struct {
	Type      Type      `json:"type"`
	UserID    string    `json:"userId"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stamped returns a copy of the event with Timestamp set to now.
func (e Event) Stamped() Event {
	e.Timestamp = time.Now().UTC()
	return e
}

// New builds an event of the given type, stamped with the current time.
func New(eventType Type, userID string, payload any) Event {
	return Event{
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// XPPayload accompanies XPUpdated.
type XPPayload struct {
	ActivityKey string `json:"activityKey"`
	Amount      int    `json:"amount"`
	NewTotal    int    `json:"newTotal"`
}

// StreakPayload accompanies StreakUpdated.
type StreakPayload struct {
	Count int `json:"count"`
}

// DailyGoalPayload accompanies DailyGoalUpdated.
type DailyGoalPayload struct {
	TargetXP int `json:"targetXp"`
	EarnedXP int `json:"earnedXp"`
}

// SessionPayload accompanies SessionChanged. State is nil on sign-out.
type SessionPayload struct {
	State any `json:"state"`
}
