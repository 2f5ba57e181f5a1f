package rewards

import (
	"context"
	"database/sql"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/persistence/database"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/security"
)

// SQLProgressRepository is the SQL-based implementation of the ProgressRepository.
type SQLProgressRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLProgressRepository creates a new instance of the repository.
func NewSQLProgressRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLProgressRepository {
	return &SQLProgressRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertProgress writes one progress row, replacing any prior state for the step.
func (r *SQLProgressRepository) UpsertProgress(ctx context.Context, row *rewards.ProgressRow) error {
	const query = `
		INSERT INTO progress (id, user_id, module_slug, lesson_slug, step_id, completed, score, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, module_slug, lesson_slug, step_id)
		DO UPDATE SET completed = excluded.completed, score = excluded.score, completed_at = excluded.completed_at`

	start := time.Now()
	r.logger.Database().Debug("Upserting progress row",
		"userId", row.UserID, "module", row.ModuleSlug, "lesson", row.LessonSlug, "step", row.StepID)

	var completedAt any
	if !row.CompletedAt.IsZero() {
		completedAt = row.CompletedAt.UTC().Format("2006-01-02 15:04:05")
	}

	_, err := r.db.ExecContext(ctx, query,
		security.GenerateULID(),
		row.UserID,
		row.ModuleSlug,
		row.LessonSlug,
		row.StepID,
		row.Completed,
		row.Score,
		completedAt,
	)
	if err != nil {
		r.logger.Database().Error("Progress upsert failed", "error", err.Error(), "userId", row.UserID)
		return err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), row.UserID)
	return nil
}

// ProgressRows loads all progress rows for a user.
func (r *SQLProgressRepository) ProgressRows(ctx context.Context, userID string) ([]*rewards.ProgressRow, error) {
	const query = `
		SELECT user_id, module_slug, lesson_slug, step_id, completed, score, completed_at
		FROM progress
		WHERE user_id = ?
		ORDER BY module_slug, lesson_slug, step_id`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Database().Error("Failed to load progress rows", "error", err.Error(), "userId", userID)
		return nil, err
	}
	defer rows.Close()

	var out []*rewards.ProgressRow
	for rows.Next() {
		var (
			row         rewards.ProgressRow
			completedAt sql.NullString
		)
		if err := rows.Scan(&row.UserID, &row.ModuleSlug, &row.LessonSlug, &row.StepID,
			&row.Completed, &row.Score, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			parsed, err := parseStoredTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			row.CompletedAt = parsed
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return out, nil
}

// UpsertStreak persists a user's streak fields.
func (r *SQLProgressRepository) UpsertStreak(ctx context.Context, userID string, streak *rewards.StreakState) error {
	const query = `
		INSERT INTO streaks (user_id, count, last_active_day, timezone) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET count = excluded.count,
			last_active_day = excluded.last_active_day, timezone = excluded.timezone`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, userID, streak.Count, streak.LastActiveDay, streak.Timezone)
	if err != nil {
		r.logger.Database().Error("Streak upsert failed", "error", err.Error(), "userId", userID)
		return err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), userID)
	return nil
}

// Streak loads a user's streak fields; a user with no row gets a zero streak.
func (r *SQLProgressRepository) Streak(ctx context.Context, userID string) (*rewards.StreakState, error) {
	const query = `SELECT count, last_active_day, timezone FROM streaks WHERE user_id = ?`

	var (
		streak        rewards.StreakState
		lastActiveDay sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&streak.Count, &lastActiveDay, &streak.Timezone)
	if err == sql.ErrNoRows {
		return &rewards.StreakState{Timezone: "UTC"}, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to load streak", "error", err.Error(), "userId", userID)
		return nil, err
	}
	if lastActiveDay.Valid {
		streak.LastActiveDay = lastActiveDay.String
	}
	return &streak, nil
}

// UpsertDailyGoal persists the per-user daily XP target.
func (r *SQLProgressRepository) UpsertDailyGoal(ctx context.Context, goal *rewards.DailyGoal) error {
	const query = `
		INSERT INTO daily_goals (user_id, target_xp) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET target_xp = excluded.target_xp`

	_, err := r.db.ExecContext(ctx, query, goal.UserID, goal.TargetXP)
	if err != nil {
		r.logger.Database().Error("Daily goal upsert failed", "error", err.Error(), "userId", goal.UserID)
		return err
	}
	return nil
}

// DailyGoal loads the per-user daily XP target; nil means no goal configured.
func (r *SQLProgressRepository) DailyGoal(ctx context.Context, userID string) (*rewards.DailyGoal, error) {
	const query = `SELECT user_id, target_xp FROM daily_goals WHERE user_id = ?`

	var goal rewards.DailyGoal
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&goal.UserID, &goal.TargetXP)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Failed to load daily goal", "error", err.Error(), "userId", userID)
		return nil, err
	}
	return &goal, nil
}

// TotalsByUser returns the top users by confirmed XP for the leaderboard.
// Only display names and totals leave this boundary.
func (r *SQLProgressRepository) TotalsByUser(ctx context.Context, limit int) ([]rewards.LeaderboardRow, error) {
	const query = `
		SELECT l.display_name, t.total_xp, COALESCE(s.count, 0)
		FROM xp_totals t
		JOIN learners l ON l.id = t.user_id
		LEFT JOIN streaks s ON s.user_id = t.user_id
		ORDER BY t.total_xp DESC
		LIMIT ?`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Database().Error("Failed to load leaderboard totals", "error", err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []rewards.LeaderboardRow
	for rows.Next() {
		var row rewards.LeaderboardRow
		if err := rows.Scan(&row.DisplayName, &row.TotalXP, &row.Streak); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), "system")
	return out, nil
}
