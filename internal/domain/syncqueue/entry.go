// Package syncqueue defines the durable outbound write queue entities and the
// interface for persisting them. Entries for one user are processed in
// non-decreasing sequence order; users are independent of each other.
package syncqueue

import (
	"context"
	"time"
)

// OperationType identifies the logical write an entry carries.
type OperationType string

const (
	OpRewardGrant    OperationType = "reward-grant"
	OpProgressUpsert OperationType = "progress-upsert"
	OpStreakUpsert   OperationType = "streak-upsert"
	OpDailyGoal      OperationType = "daily-goal-upsert"
	OpTimezoneUpdate OperationType = "timezone-update"
)

// Status tracks an entry through its flush lifecycle.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusInFlight Status = "in-flight"
	StatusFailed   Status = "failed"
)

// Entry is one queued outbound write. Entries survive process restarts;
// a confirmed flush removes the entry, exhausted retries mark it failed.
type Entry struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Sequence      int64         `json:"sequence"`
	OperationType OperationType `json:"operationType"`
	ResourceKey   string        `json:"resourceKey"` // logical resource, used for coalescing
	Payload       []byte        `json:"payload"`
	Attempts      int           `json:"attempts"`
	NextRetryAt   time.Time     `json:"nextRetryAt"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Repository is the durable storage surface for queue entries.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	// FindQueued returns the queued (not in-flight, not failed) entry for a
	// logical resource, or nil. Used to coalesce redundant updates.
	FindQueued(ctx context.Context, userID string, op OperationType, resourceKey string) (*Entry, error)
	ReplacePayload(ctx context.Context, id string, payload []byte) error
	// NextForUser returns the lowest-sequence queued entry for the user, or
	// nil when nothing is ready.
	NextForUser(ctx context.Context, userID string) (*Entry, error)
	PendingUsers(ctx context.Context) ([]string, error)
	MarkInFlight(ctx context.Context, id string) error
	MarkQueuedForRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	FailedEntries(ctx context.Context, userID string) ([]*Entry, error)
	// RequeueFailed resets failed entries to queued with a clean attempt
	// count. This backs the manual retry trigger.
	RequeueFailed(ctx context.Context, userID string) (int, error)
	// RequeueInFlight resets in-flight entries to queued. A crash between
	// MarkInFlight and Delete strands the entry; recovery runs at startup,
	// before any flush.
	RequeueInFlight(ctx context.Context) (int, error)
	MaxSequence(ctx context.Context, userID string) (int64, error)
	PendingByUser(ctx context.Context, userID string) ([]*Entry, error)
}
