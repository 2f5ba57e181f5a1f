package stores

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
)

func halifaxAggregate(t *testing.T) *types.DailyAggregate {
	t.Helper()
	loc, err := time.LoadLocation("America/Halifax")
	require.NoError(t, err)

	// Local day 2026-03-01; the boundary is local midnight ending it.
	boundary := time.Date(2026, 3, 2, 0, 0, 0, 0, loc).UTC()
	return &types.DailyAggregate{
		UserID:       "user-1",
		Day:          "2026-03-01",
		Timezone:     "America/Halifax",
		XPToday:      40,
		LessonsToday: 3,
		StreakCount:  7,
		NextBoundary: boundary,
	}
}

func TestAggregateServedBeforeBoundary(t *testing.T) {
	store := NewAggregatesStore(nil)
	aggregate := halifaxAggregate(t)
	store.Set(aggregate)

	// 23:59 local on the aggregate's day: still valid.
	cached, ok := store.Get("user-1", "America/Halifax", aggregate.NextBoundary.Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, 40, cached.XPToday)
	assert.Equal(t, "2026-03-01", cached.Day)
}

func TestAggregateDroppedAtBoundary(t *testing.T) {
	store := NewAggregatesStore(nil)
	aggregate := halifaxAggregate(t)
	store.Set(aggregate)

	tests := []struct {
		name string
		at   time.Time
	}{
		{"exactly local midnight", aggregate.NextBoundary},
		{"just after local midnight", aggregate.NextBoundary.Add(time.Second)},
		{"next morning", aggregate.NextBoundary.Add(8 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.Set(aggregate)
			_, ok := store.Get("user-1", "America/Halifax", tt.at)
			assert.False(t, ok, "a cached today value must never survive local midnight")
		})
	}
}

func TestAggregateDroppedOnTimezoneChange(t *testing.T) {
	store := NewAggregatesStore(nil)
	aggregate := halifaxAggregate(t)
	store.Set(aggregate)

	_, ok := store.Get("user-1", "Asia/Tokyo", aggregate.NextBoundary.Add(-6*time.Hour))
	assert.False(t, ok)

	// The stale entry is gone entirely, not only hidden.
	assert.Equal(t, 0, store.Count())
}

func TestEvictExpiredAggregates(t *testing.T) {
	store := NewAggregatesStore(nil)
	a := halifaxAggregate(t)
	store.Set(a)

	b := halifaxAggregate(t)
	b.UserID = "user-2"
	b.NextBoundary = a.NextBoundary.Add(24 * time.Hour)
	store.Set(b)

	evicted := store.EvictExpired(a.NextBoundary.Add(time.Minute))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Count())
}
