package rewards

import (
	"context"
	"time"
)

// GrantRepository is the narrow write/read surface of the durable store for
// reward grants. The store enforces uniqueness on (user_id, activity_key);
// that constraint, not the client cache, is the authoritative idempotency
// check. Insert must return ErrDuplicateGrant on a uniqueness conflict.
type GrantRepository interface {
	Insert(ctx context.Context, grant *Grant) error
	ConfirmedTotal(ctx context.Context, userID string) (int, error)
	ConfirmedKeys(ctx context.Context, userID string) (map[string]bool, error)
	GrantsSince(ctx context.Context, userID string, since time.Time) ([]*Grant, error)
}

// ProgressRepository reads and writes progress rows, streak fields, and the
// daily-goal configuration.
type ProgressRepository interface {
	UpsertProgress(ctx context.Context, row *ProgressRow) error
	ProgressRows(ctx context.Context, userID string) ([]*ProgressRow, error)
	UpsertStreak(ctx context.Context, userID string, streak *StreakState) error
	Streak(ctx context.Context, userID string) (*StreakState, error)
	UpsertDailyGoal(ctx context.Context, goal *DailyGoal) error
	DailyGoal(ctx context.Context, userID string) (*DailyGoal, error)
	TotalsByUser(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// LeaderboardRow is one sanitized leaderboard entry.
type LeaderboardRow struct {
	DisplayName string `json:"displayName"`
	TotalXP     int    `json:"totalXp"`
	Streak      int    `json:"streak"`
}

// EntitlementReader is the billing collaborator boundary. Only a boolean
// premium read is consumed here; payment events are processed elsewhere.
type EntitlementReader interface {
	HasPremium(ctx context.Context, userID string) (bool, error)
}
