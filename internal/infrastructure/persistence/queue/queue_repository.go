// Package queue provides the SQL-based implementation of the durable sync
// queue. Entries persist across process restarts; ordering is carried by a
// monotonic per-user sequence column with a uniqueness constraint.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/syncqueue"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/database"
)

const timeLayout = "2006-01-02 15:04:05"

// SQLQueueRepository is the SQL-based implementation of syncqueue.Repository.
type SQLQueueRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLQueueRepository creates a new instance of the repository.
func NewSQLQueueRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLQueueRepository {
	return &SQLQueueRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores a new queue entry.
func (r *SQLQueueRepository) Append(ctx context.Context, entry *syncqueue.Entry) error {
	const query = `
		INSERT INTO sync_queue (id, user_id, sequence, operation_type, resource_key, payload, attempts, next_retry_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Appending sync queue entry",
		"entryId", entry.ID, "userId", entry.UserID, "sequence", entry.Sequence, "op", string(entry.OperationType))

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Sequence,
		string(entry.OperationType),
		entry.ResourceKey,
		string(entry.Payload),
		entry.Attempts,
		entry.NextRetryAt.UTC().Format(timeLayout),
		string(entry.Status),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		r.logger.Database().Error("Queue append failed", "error", err.Error(), "userId", entry.UserID)
		return err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), entry.UserID)
	return nil
}

// FindQueued returns the queued entry for a logical resource, or nil.
func (r *SQLQueueRepository) FindQueued(ctx context.Context, userID string, op syncqueue.OperationType, resourceKey string) (*syncqueue.Entry, error) {
	const query = `
		SELECT id, user_id, sequence, operation_type, resource_key, payload, attempts, next_retry_at, status, created_at
		FROM sync_queue
		WHERE user_id = ? AND operation_type = ? AND resource_key = ? AND status = 'queued'
		ORDER BY sequence ASC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, userID, string(op), resourceKey)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Queue lookup failed", "error", err.Error(), "userId", userID)
		return nil, err
	}
	return entry, nil
}

// ReplacePayload swaps the payload of a queued entry in place, preserving its
// sequence position. This is how redundant updates coalesce.
func (r *SQLQueueRepository) ReplacePayload(ctx context.Context, id string, payload []byte) error {
	const query = `UPDATE sync_queue SET payload = ? WHERE id = ? AND status = 'queued'`

	result, err := r.db.ExecContext(ctx, query, string(payload), id)
	if err != nil {
		r.logger.Database().Error("Queue payload replace failed", "error", err.Error(), "entryId", id)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %s no longer queued", id)
	}
	return nil
}

// NextForUser returns the user's lowest-sequence entry when it is queued
// and ready, or nil. An entry waiting out its backoff window, or one still
// marked in-flight, blocks everything behind it so sequence order holds.
func (r *SQLQueueRepository) NextForUser(ctx context.Context, userID string) (*syncqueue.Entry, error) {
	const query = `
		SELECT id, user_id, sequence, operation_type, resource_key, payload, attempts, next_retry_at, status, created_at
		FROM sync_queue
		WHERE user_id = ? AND status != 'failed'
		ORDER BY sequence ASC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, userID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Queue next lookup failed", "error", err.Error(), "userId", userID)
		return nil, err
	}
	if entry.Status != syncqueue.StatusQueued || entry.NextRetryAt.After(time.Now().UTC()) {
		return nil, nil
	}
	return entry, nil
}

// RequeueInFlight returns stranded in-flight entries to the queue.
func (r *SQLQueueRepository) RequeueInFlight(ctx context.Context) (int, error) {
	const query = `UPDATE sync_queue SET status = 'queued' WHERE status = 'in-flight'`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		r.logger.Database().Error("In-flight requeue failed", "error", err.Error())
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PendingUsers lists users that still have queued entries.
func (r *SQLQueueRepository) PendingUsers(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM sync_queue WHERE status = 'queued'`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Database().Error("Pending users lookup failed", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// MarkInFlight transitions an entry to in-flight.
func (r *SQLQueueRepository) MarkInFlight(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, syncqueue.StatusInFlight)
}

// MarkQueuedForRetry requeues an entry after a transient failure with its new
// attempt count and backoff deadline.
func (r *SQLQueueRepository) MarkQueuedForRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time) error {
	const query = `UPDATE sync_queue SET status = 'queued', attempts = ?, next_retry_at = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, attempts, nextRetryAt.UTC().Format(timeLayout), id)
	if err != nil {
		r.logger.Database().Error("Queue retry update failed", "error", err.Error(), "entryId", id)
	}
	return err
}

// MarkFailed transitions an entry to failed after retries are exhausted.
// Failed entries are never deleted automatically.
func (r *SQLQueueRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, syncqueue.StatusFailed)
}

// Delete removes an entry after a confirmed flush.
func (r *SQLQueueRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sync_queue WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Database().Error("Queue delete failed", "error", err.Error(), "entryId", id)
	}
	return err
}

// FailedEntries lists entries that exhausted their retries for a user.
func (r *SQLQueueRepository) FailedEntries(ctx context.Context, userID string) ([]*syncqueue.Entry, error) {
	const query = `
		SELECT id, user_id, sequence, operation_type, resource_key, payload, attempts, next_retry_at, status, created_at
		FROM sync_queue
		WHERE user_id = ? AND status = 'failed'
		ORDER BY sequence ASC`

	return r.queryEntries(ctx, query, userID)
}

// RequeueFailed resets failed entries to queued with a clean attempt count.
func (r *SQLQueueRepository) RequeueFailed(ctx context.Context, userID string) (int, error) {
	const query = `
		UPDATE sync_queue SET status = 'queued', attempts = 0, next_retry_at = ?
		WHERE user_id = ? AND status = 'failed'`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(timeLayout), userID)
	if err != nil {
		r.logger.Database().Error("Queue requeue failed", "error", err.Error(), "userId", userID)
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// MaxSequence returns the highest sequence ever assigned for a user, zero for none.
func (r *SQLQueueRepository) MaxSequence(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COALESCE(MAX(sequence), 0) FROM sync_queue WHERE user_id = ?`

	var max int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&max); err != nil {
		r.logger.Database().Error("Max sequence lookup failed", "error", err.Error(), "userId", userID)
		return 0, err
	}
	return max, nil
}

// PendingByUser lists all not-yet-confirmed entries for a user in order.
func (r *SQLQueueRepository) PendingByUser(ctx context.Context, userID string) ([]*syncqueue.Entry, error) {
	const query = `
		SELECT id, user_id, sequence, operation_type, resource_key, payload, attempts, next_retry_at, status, created_at
		FROM sync_queue
		WHERE user_id = ? AND status != 'failed'
		ORDER BY sequence ASC`

	return r.queryEntries(ctx, query, userID)
}

func (r *SQLQueueRepository) setStatus(ctx context.Context, id string, status syncqueue.Status) error {
	const query = `UPDATE sync_queue SET status = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		r.logger.Database().Error("Queue status update failed", "error", err.Error(), "entryId", id, "status", string(status))
	}
	return err
}

func (r *SQLQueueRepository) queryEntries(ctx context.Context, query, userID string) ([]*syncqueue.Entry, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Database().Error("Queue query failed", "error", err.Error(), "userId", userID)
		return nil, err
	}
	defer rows.Close()

	var entries []*syncqueue.Entry
	for rows.Next() {
		entry, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return entries, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*syncqueue.Entry, error) {
	var (
		entry       syncqueue.Entry
		op          string
		payload     string
		status      string
		nextRetryAt string
		createdAt   string
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Sequence, &op, &entry.ResourceKey,
		&payload, &entry.Attempts, &nextRetryAt, &status, &createdAt); err != nil {
		return nil, err
	}

	entry.OperationType = syncqueue.OperationType(op)
	entry.Payload = []byte(payload)
	entry.Status = syncqueue.Status(status)

	parsed, err := time.Parse(timeLayout, nextRetryAt)
	if err != nil {
		return nil, fmt.Errorf("unrecognized queue timestamp %q", nextRetryAt)
	}
	entry.NextRetryAt = parsed.UTC()

	parsed, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("unrecognized queue timestamp %q", createdAt)
	}
	entry.CreatedAt = parsed.UTC()

	return &entry, nil
}

func scanEntryRows(rows *sql.Rows) (*syncqueue.Entry, error) {
	return scanEntry(rows)
}
