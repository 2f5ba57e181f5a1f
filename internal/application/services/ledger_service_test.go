package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/syncqueue"
)

func TestAwardOnceValidation(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	tests := []struct {
		name string
		req  AwardRequest
	}{
		{"empty activity key", AwardRequest{Amount: 5, Source: "lesson"}},
		{"empty key segment", AwardRequest{ActivityKey: "spanish::step-1:quiz", Amount: 5, Source: "lesson"}},
		{"zero amount", AwardRequest{ActivityKey: "a:b:c:d", Amount: 0, Source: "lesson"}},
		{"negative amount", AwardRequest{ActivityKey: "a:b:c:d", Amount: -5, Source: "lesson"}},
		{"amount over maximum", AwardRequest{ActivityKey: "a:b:c:d", Amount: 100000, Source: "lesson"}},
		{"missing source", AwardRequest{ActivityKey: "a:b:c:d", Amount: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ledger.AwardOnce("user-1", &tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, rewards.ErrValidation)
		})
	}
}

func TestAwardOnceRequiresSession(t *testing.T) {
	r := newRig()
	_, err := r.ledger.AwardOnce("nobody", &AwardRequest{ActivityKey: "a:b:c:d", Amount: 5, Source: "lesson"})
	assert.ErrorIs(t, err, rewards.ErrNoSession)
}

func TestAwardOnceGrantsAndEnqueues(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	var published []events.Event
	r.bus.Subscribe(func(e events.Event) { published = append(published, e) }, events.XPUpdated)

	result, err := r.ledger.AwardOnce("user-1", &AwardRequest{
		ActivityKey: rewards.ActivityKey("spanish", "greetings", "step-3", "flashcard"),
		Amount:      2,
		Source:      "flashcard",
	})
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, 2, result.NewTotal)

	// The durable write is queued, not yet flushed. A streak touch rides
	// along behind it.
	pending, err := r.queueRepo.PendingByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, syncqueue.OpRewardGrant, pending[0].OperationType)
	assert.Equal(t, int64(1), pending[0].Sequence)
	assert.Equal(t, syncqueue.OpStreakUpsert, pending[1].OperationType)

	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.XPPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Amount)
	assert.Equal(t, 2, payload.NewTotal)
}

func TestAwardOnceDuplicateIsBenign(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	key := rewards.ActivityKey("spanish", "greetings", "step-3", "flashcard")
	first, err := r.ledger.AwardOnce("user-1", &AwardRequest{ActivityKey: key, Amount: 2, Source: "flashcard"})
	require.NoError(t, err)
	require.True(t, first.Granted)

	second, err := r.ledger.AwardOnce("user-1", &AwardRequest{ActivityKey: key, Amount: 2, Source: "flashcard"})
	require.NoError(t, err, "a duplicate grant is expected, not an error")
	assert.False(t, second.Granted)
	assert.Equal(t, 2, second.NewTotal)

	// No second grant entry, no second event.
	pending, _ := r.queueRepo.PendingByUser(context.Background(), "user-1")
	assert.Len(t, grantEntries(pending), 1)
}

func TestAwardOnceSeparateStepsBothCount(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	first, err := r.ledger.AwardOnce("user-1", &AwardRequest{
		ActivityKey: rewards.ActivityKey("spanish", "greetings", "step-1", "quiz"), Amount: 10, Source: "quiz",
	})
	require.NoError(t, err)
	second, err := r.ledger.AwardOnce("user-1", &AwardRequest{
		ActivityKey: rewards.ActivityKey("spanish", "greetings", "step-2", "quiz"), Amount: 10, Source: "quiz",
	})
	require.NoError(t, err)

	assert.True(t, first.Granted)
	assert.True(t, second.Granted)
	assert.Equal(t, 20, second.NewTotal)

	// Sequences stay monotonic per user.
	pending, _ := r.queueRepo.PendingByUser(context.Background(), "user-1")
	grants := grantEntries(pending)
	require.Len(t, grants, 2)
	assert.Less(t, grants[0].Sequence, grants[1].Sequence)
}

func grantEntries(entries []*syncqueue.Entry) []*syncqueue.Entry {
	var grants []*syncqueue.Entry
	for _, e := range entries {
		if e.OperationType == syncqueue.OpRewardGrant {
			grants = append(grants, e)
		}
	}
	return grants
}

func TestAwardOnceAdvancesStreak(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "America/Halifax")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	var counts []int
	r.bus.Subscribe(func(e events.Event) {
		if p, ok := e.Payload.(events.StreakPayload); ok {
			counts = append(counts, p.Count)
		}
	}, events.StreakUpdated)

	award(t, r, "user-1", "spanish:greetings:step-1:quiz", 10)
	snapshot, _ := r.cache.GetSnapshot("user-1")
	assert.Equal(t, 1, snapshot.StreakCount)
	require.Equal(t, []int{1}, counts)

	// Flush so the durable streak row records today, then award again the
	// same local day. The streak must not re-publish.
	r.syncService.drainUser(context.Background(), "user-1")
	award(t, r, "user-1", "spanish:greetings:step-2:quiz", 10)
	assert.Equal(t, []int{1}, counts)

	// The next local day extends the run.
	r.syncService.drainUser(context.Background(), "user-1")
	r.aggregates.SetClock(fixedClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
	award(t, r, "user-1", "spanish:greetings:step-3:quiz", 10)

	snapshot, _ = r.cache.GetSnapshot("user-1")
	assert.Equal(t, 2, snapshot.StreakCount)
	assert.Equal(t, []int{1, 2}, counts)
}

func TestAwardOnceRefreshesDailySummary(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	before, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, before.XPToday)

	// The cached summary from before the award must not be served stale.
	award(t, r, "user-1", "spanish:greetings:step-1:quiz", 10)
	after, err := r.aggregates.DailySummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, after.XPToday)
}

func TestRecordProgressCoalesces(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	for score := 40; score <= 80; score += 20 {
		_, err := r.ledger.RecordProgress("user-1", &ProgressRequest{
			ModuleSlug: "spanish", LessonSlug: "greetings", StepID: "step-1", Score: score,
		})
		require.NoError(t, err)
	}

	// Three rapid edits to one step collapse into a single queued write
	// carrying the latest payload.
	pending, _ := r.queueRepo.PendingByUser(context.Background(), "user-1")
	require.Len(t, pending, 1)
	assert.Equal(t, syncqueue.OpProgressUpsert, pending[0].OperationType)

	snapshot, _ := r.cache.GetSnapshot("user-1")
	require.Len(t, snapshot.ProgressRows, 1)
	assert.Equal(t, 80, snapshot.ProgressRows[0].Score)
}

func TestSetDailyGoal(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")

	var payloads []events.DailyGoalPayload
	r.bus.Subscribe(func(e events.Event) {
		if p, ok := e.Payload.(events.DailyGoalPayload); ok {
			payloads = append(payloads, p)
		}
	}, events.DailyGoalUpdated)

	require.Error(t, r.ledger.SetDailyGoal("user-1", 0))
	require.NoError(t, r.ledger.SetDailyGoal("user-1", 30))

	snapshot, _ := r.cache.GetSnapshot("user-1")
	assert.Equal(t, 30, snapshot.DailyGoalXP)
	require.Len(t, payloads, 1)
	assert.Equal(t, 30, payloads[0].TargetXP)
}
