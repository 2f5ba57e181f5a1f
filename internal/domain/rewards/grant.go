// Package rewards defines the reward-grant ledger entities and the interfaces
// for persisting them. These repositories abstract the durable store so the
// application core stays decoupled from the database driver in use.
package rewards

import (
	"fmt"
	"strings"
	"time"
)

// SyncState tracks where a grant sits in its confirmation lifecycle.
type SyncState string

const (
	SyncPending   SyncState = "pending"
	SyncConfirmed SyncState = "confirmed"
	SyncFailed    SyncState = "failed"
)

// Grant records one XP award. At most one grant per activity key is ever
// counted toward a user's total, for the lifetime of the account.
type Grant struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	ActivityKey string            `json:"activityKey"`
	Amount      int               `json:"amount"`
	Source      string            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SyncState   SyncState         `json:"syncState"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ActivityKey builds the deterministic idempotency key for one earnable
// occurrence. Callers must derive it from stable identifiers, never randomly.
func ActivityKey(moduleSlug, lessonSlug, stepID, activityType string) string {
	return fmt.Sprintf("%s:%s:%s:%s", moduleSlug, lessonSlug, stepID, activityType)
}

// ValidateActivityKey rejects keys that are empty or carry empty segments.
func ValidateActivityKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty activity key", ErrValidation)
	}
	for _, part := range strings.Split(key, ":") {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("%w: activity key %q has an empty segment", ErrValidation, key)
		}
	}
	return nil
}

// AwardResult is the outcome of one AwardOnce call. A duplicate key resolves
// to Granted=false with the unchanged total; it is not an error.
type AwardResult struct {
	Granted  bool `json:"granted"`
	NewTotal int  `json:"newTotal"`
}
