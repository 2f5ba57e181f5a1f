// Package rewards provides the concrete SQL-based implementations of the
// reward ledger repositories (grants, progress, streaks, daily goals).
//
// PURPOSE: the durable store is the ultimate source of truth. The unique
// index on (user_id, activity_key) is the authoritative idempotency check;
// the in-memory guard in the cache layer is a fast path only.
package rewards

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/database"
)

// SQLGrantRepository is the SQL-based implementation of the GrantRepository.
type SQLGrantRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLGrantRepository creates a new instance of the repository.
func NewSQLGrantRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLGrantRepository {
	return &SQLGrantRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a confirmed grant row and bumps the user's durable total in
// one transaction. A uniqueness conflict on (user_id, activity_key) returns
// ErrDuplicateGrant and leaves the total untouched.
func (r *SQLGrantRepository) Insert(ctx context.Context, grant *rewards.Grant) error {
	const query = `
		INSERT INTO reward_grants (id, user_id, activity_key, amount, source, metadata, sync_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'confirmed', ?)`

	start := time.Now()
	r.logger.Database().Debug("Inserting reward grant",
		"grantId", grant.ID,
		"userId", grant.UserID,
		"activityKey", grant.ActivityKey,
		"amount", grant.Amount)

	metadata, err := json.Marshal(grant.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal grant metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin grant transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, query,
		grant.ID,
		grant.UserID,
		grant.ActivityKey,
		grant.Amount,
		grant.Source,
		string(metadata),
		grant.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Database().Debug("Grant already exists at durable store",
				"userId", grant.UserID, "activityKey", grant.ActivityKey)
			return rewards.ErrDuplicateGrant
		}
		r.logger.Database().Error("Grant insert failed",
			"error", err.Error(), "userId", grant.UserID, "activityKey", grant.ActivityKey)
		return err
	}

	const totalQuery = `
		INSERT INTO xp_totals (user_id, total_xp, changed) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET total_xp = total_xp + excluded.total_xp, changed = CURRENT_TIMESTAMP`

	if _, err = tx.ExecContext(ctx, totalQuery, grant.UserID, grant.Amount); err != nil {
		r.logger.Database().Error("Total upsert failed", "error", err.Error(), "userId", grant.UserID)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant transaction: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), grant.UserID)
	return nil
}

// ConfirmedTotal returns the sum of all confirmed grants for a user.
func (r *SQLGrantRepository) ConfirmedTotal(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM reward_grants WHERE user_id = ?`

	start := time.Now()
	var total int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		r.logger.Database().Error("Failed to load confirmed total", "error", err.Error(), "userId", userID)
		return 0, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return total, nil
}

// ConfirmedKeys returns the set of activity keys already credited for a user.
// Used to warm the idempotency guard on session start.
func (r *SQLGrantRepository) ConfirmedKeys(ctx context.Context, userID string) (map[string]bool, error) {
	const query = `SELECT activity_key FROM reward_grants WHERE user_id = ?`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Database().Error("Failed to load confirmed keys", "error", err.Error(), "userId", userID)
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return keys, nil
}

// GrantsSince returns confirmed grants created at or after the given instant.
// The daily aggregator uses this to rebuild local-day views from absolute time.
func (r *SQLGrantRepository) GrantsSince(ctx context.Context, userID string, since time.Time) ([]*rewards.Grant, error) {
	const query = `
		SELECT id, user_id, activity_key, amount, source, metadata, sync_state, created_at
		FROM reward_grants
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		r.logger.Database().Error("Failed to load grants since", "error", err.Error(), "userId", userID)
		return nil, err
	}
	defer rows.Close()

	var grants []*rewards.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return grants, nil
}

func scanGrant(rows *sql.Rows) (*rewards.Grant, error) {
	var (
		grant     rewards.Grant
		metadata  sql.NullString
		createdAt string
		syncState string
	)
	if err := rows.Scan(&grant.ID, &grant.UserID, &grant.ActivityKey, &grant.Amount,
		&grant.Source, &metadata, &syncState, &createdAt); err != nil {
		return nil, err
	}

	grant.SyncState = rewards.SyncState(syncState)
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &grant.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal grant metadata: %w", err)
		}
	}

	parsed, err := parseStoredTime(createdAt)
	if err != nil {
		return nil, err
	}
	grant.CreatedAt = parsed

	return &grant, nil
}

// parseStoredTime handles both the explicit format this package writes and
// the CURRENT_TIMESTAMP default format sqlite emits.
func parseStoredTime(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized stored timestamp %q", value)
}

// isUniqueViolation detects a uniqueness conflict across the sqlite and
// libsql drivers, which surface it with different error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT") ||
		strings.Contains(msg, "unique constraint")
}
