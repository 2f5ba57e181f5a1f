// Package user provides the concrete SQL-based implementation of
// the learner domain repository.
package user

import (
	"context"
	"database/sql"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/database"
	"golang.org/x/crypto/bcrypt"
)

// SQLLearnerRepository is the SQL-based implementation of the LearnerRepository.
type SQLLearnerRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLLearnerRepository creates a new instance of the repository.
func NewSQLLearnerRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLLearnerRepository {
	return &SQLLearnerRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a Learner by their unique identifier.
func (r *SQLLearnerRepository) FindByID(ctx context.Context, id string) (*user.Learner, error) {
	const query = `
		SELECT id, display_name, email, password_hash, timezone, has_premium, created_at, changed
		FROM learners
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading learner by ID", "id", id)

	learner, err := r.scanLearner(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Learner not found by ID", "id", id)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load learner by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), id)
	return learner, nil
}

// FindByEmail retrieves a Learner by their email address.
func (r *SQLLearnerRepository) FindByEmail(ctx context.Context, email string) (*user.Learner, error) {
	const query = `
		SELECT id, display_name, email, password_hash, timezone, has_premium, created_at, changed
		FROM learners
		WHERE email = ?`

	start := time.Now()
	learner, err := r.scanLearner(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Database().Error("Failed to load learner by email", "error", err.Error())
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), learner.ID)
	return learner, nil
}

// Store persists a new Learner.
func (r *SQLLearnerRepository) Store(ctx context.Context, learner *user.Learner) error {
	const query = `
		INSERT INTO learners (id, display_name, email, password_hash, timezone, has_premium, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Storing new learner", "id", learner.ID)

	_, err := r.db.ExecContext(ctx, query,
		learner.ID,
		learner.DisplayName,
		learner.Email,
		learner.PasswordHash,
		learner.Timezone,
		learner.HasPremium,
		learner.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		r.logger.Database().Error("Learner insert failed", "error", err.Error(), "id", learner.ID)
		return err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), learner.ID)
	return nil
}

// Update persists changes to an existing Learner.
func (r *SQLLearnerRepository) Update(ctx context.Context, learner *user.Learner) error {
	const query = `
		UPDATE learners
		SET display_name = ?, email = ?, timezone = ?, has_premium = ?, changed = CURRENT_TIMESTAMP
		WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		learner.DisplayName, learner.Email, learner.Timezone, learner.HasPremium, learner.ID)
	if err != nil {
		r.logger.Database().Error("Learner update failed", "error", err.Error(), "id", learner.ID)
	}
	return err
}

// UpdateTimezone records a timezone change, e.g. after travel.
func (r *SQLLearnerRepository) UpdateTimezone(ctx context.Context, id, timezone string) error {
	const query = `UPDATE learners SET timezone = ?, changed = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, timezone, id)
	if err != nil {
		r.logger.Database().Error("Timezone update failed", "error", err.Error(), "id", id)
	}
	return err
}

// ValidateCredentials checks an email/password pair against the stored hash.
func (r *SQLLearnerRepository) ValidateCredentials(ctx context.Context, email, password string) (*user.Learner, error) {
	learner, err := r.FindByEmail(ctx, email)
	if err != nil || learner == nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(learner.PasswordHash), []byte(password)); err != nil {
		r.logger.Auth().Warn("Credential validation failed", "userId", learner.ID)
		return nil, nil
	}
	return learner, nil
}

func (r *SQLLearnerRepository) scanLearner(row *sql.Row) (*user.Learner, error) {
	var (
		learner   user.Learner
		createdAt string
		changed   sql.NullString
	)
	if err := row.Scan(&learner.ID, &learner.DisplayName, &learner.Email, &learner.PasswordHash,
		&learner.Timezone, &learner.HasPremium, &createdAt, &changed); err != nil {
		return nil, err
	}

	if parsed, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		learner.CreatedAt = parsed.UTC()
	}
	if changed.Valid {
		if parsed, err := time.Parse("2006-01-02 15:04:05", changed.String); err == nil {
			learner.Changed = parsed.UTC()
		}
	}

	return &learner, nil
}
