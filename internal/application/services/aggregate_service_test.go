package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedGrant(t *testing.T, r *rig, userID, key string, amount int, createdAt time.Time) {
	t.Helper()
	require.NoError(t, r.grantRepo.Insert(context.Background(), &rewards.Grant{
		ID: key, UserID: userID, ActivityKey: key, Amount: amount, CreatedAt: createdAt,
	}))
}

// Halifax sits at UTC-4 in early March, so its local day ends at 04:00 UTC.
var halifaxAlmostMidnight = time.Date(2026, 3, 2, 3, 58, 0, 0, time.UTC)

func TestDailySummaryCountsLocalDayOnly(t *testing.T) {
	r := newRig()
	seedGrant(t, r, "user-1", "a:b:step-1:quiz", 10, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC))
	seedGrant(t, r, "user-1", "a:b:step-2:quiz", 15, time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC))
	seedGrant(t, r, "user-1", "a:c:step-1:quiz", 99, time.Date(2026, 2, 27, 16, 0, 0, 0, time.UTC))
	r.signIn("user-1", "America/Halifax")
	r.aggregates.SetClock(fixedClock(halifaxAlmostMidnight))

	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", summary.Day)
	assert.Equal(t, 25, summary.XPToday, "only grants inside the Halifax calendar day count")
	assert.Equal(t, time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), summary.NextBoundary)
}

func TestDailySummaryResetsAtLocalMidnight(t *testing.T) {
	r := newRig()
	seedGrant(t, r, "user-1", "a:b:step-1:quiz", 25, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC))
	r.signIn("user-1", "America/Halifax")

	// 23:58 local: the aggregate is computed and cached.
	r.aggregates.SetClock(fixedClock(halifaxAlmostMidnight))
	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25, summary.XPToday)

	// 00:00 local: yesterday's cached value must not be served.
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)))
	summary, err = r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", summary.Day)
	assert.Equal(t, 0, summary.XPToday)
}

func TestDailySummaryIncludesPendingGrants(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	award(t, r, "user-1", "a:b:step-1:quiz", 10)

	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.XPToday, "unsynced grants still count toward today")
}

func TestDailySummaryCountsCompletedLessons(t *testing.T) {
	r := newRig()
	now := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)
	for _, row := range []*rewards.ProgressRow{
		{UserID: "user-1", ModuleSlug: "basics", LessonSlug: "greetings", StepID: "quiz", Completed: true, CompletedAt: now},
		{UserID: "user-1", ModuleSlug: "basics", LessonSlug: "greetings", StepID: "recap", Completed: true, CompletedAt: now},
		{UserID: "user-1", ModuleSlug: "basics", LessonSlug: "numbers", StepID: "quiz", Completed: true, CompletedAt: now.AddDate(0, 0, -1)},
		{UserID: "user-1", ModuleSlug: "basics", LessonSlug: "colors", StepID: "quiz", Completed: false},
	} {
		require.NoError(t, r.progressRepo.UpsertProgress(context.Background(), row))
	}
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(now.Add(time.Hour)))

	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LessonsToday, "steps collapse to lessons; other days and incomplete rows do not count")
}

func TestTimezoneChangeDropsCachedAggregate(t *testing.T) {
	r := newRig()
	seedGrant(t, r, "user-1", "a:b:step-1:quiz", 25, time.Date(2026, 3, 2, 3, 30, 0, 0, time.UTC))
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 2, 3, 58, 0, 0, time.UTC)))

	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", summary.Day)
	assert.Equal(t, 25, summary.XPToday)

	// The same instant is still March 1st in Halifax.
	require.NoError(t, r.aggregates.ChangeTimezone("user-1", "America/Halifax"))
	summary, err = r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", summary.Day)
	assert.Equal(t, 25, summary.XPToday)
}

func TestChangeTimezoneRejectsUnknownZone(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	err := r.aggregates.ChangeTimezone("user-1", "Mars/Olympus_Mons")
	assert.ErrorIs(t, err, rewards.ErrValidation)
}

func TestTouchStreakSameDayIsNoOp(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, r.progressRepo.UpsertStreak(context.Background(), "user-1",
		&rewards.StreakState{Count: 4, LastActiveDay: "2026-03-01", Timezone: "UTC"}))

	streak, err := r.aggregates.TouchStreak(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, streak.Count)
}

func TestTouchStreakConsecutiveDayExtends(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)))
	require.NoError(t, r.progressRepo.UpsertStreak(context.Background(), "user-1",
		&rewards.StreakState{Count: 4, LastActiveDay: "2026-03-01", Timezone: "UTC"}))

	streak, err := r.aggregates.TouchStreak(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, streak.Count)
	assert.Equal(t, "2026-03-02", streak.LastActiveDay)
}

func TestTouchStreakGapRestartsAtOne(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, r.progressRepo.UpsertStreak(context.Background(), "user-1",
		&rewards.StreakState{Count: 9, LastActiveDay: "2026-03-01", Timezone: "UTC"}))

	streak, err := r.aggregates.TouchStreak(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.Count)
}

func TestDailySummaryZeroesExpiredStreak(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, r.progressRepo.UpsertStreak(context.Background(), "user-1",
		&rewards.StreakState{Count: 9, LastActiveDay: "2026-03-01", Timezone: "UTC"}))

	summary, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.StreakCount, "a lapsed streak reads as zero")
}
