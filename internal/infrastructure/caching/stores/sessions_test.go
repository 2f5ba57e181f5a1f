package stores

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
)

func newTestStore(userID string, total int, confirmedKeys ...string) *SessionsStore {
	store := NewSessionsStore(nil)
	keys := make(map[string]bool, len(confirmedKeys))
	for _, k := range confirmedKeys {
		keys[k] = true
	}
	store.InitializeUser(&types.Snapshot{UserID: userID, TotalXP: total, Timezone: "UTC"}, keys)
	return store
}

func grantFor(userID, key string, amount int) *rewards.Grant {
	return &rewards.Grant{
		ID:          key + "-id",
		UserID:      userID,
		ActivityKey: key,
		Amount:      amount,
		Source:      "lesson",
		SyncState:   rewards.SyncPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestApplyGrantIfNew(t *testing.T) {
	tests := []struct {
		name        string
		confirmed   []string
		startTotal  int
		key         string
		amount      int
		wantGranted bool
		wantTotal   int
	}{
		{
			name:        "new key increments total",
			startTotal:  100,
			key:         "spanish:greetings:step-3:flashcard",
			amount:      2,
			wantGranted: true,
			wantTotal:   102,
		},
		{
			name:        "remotely confirmed key is rejected",
			confirmed:   []string{"spanish:greetings:step-3:flashcard"},
			startTotal:  100,
			key:         "spanish:greetings:step-3:flashcard",
			amount:      2,
			wantGranted: false,
			wantTotal:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore("user-1", tt.startTotal, tt.confirmed...)
			granted, total := store.ApplyGrantIfNew(grantFor("user-1", tt.key, tt.amount))
			assert.Equal(t, tt.wantGranted, granted)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestApplyGrantTwiceCountsOnce(t *testing.T) {
	// Replaying the same flashcard must never double-count its 2 XP.
	store := newTestStore("user-1", 0)
	grant := grantFor("user-1", "spanish:greetings:step-3:flashcard", 2)

	granted, total := store.ApplyGrantIfNew(grant)
	require.True(t, granted)
	require.Equal(t, 2, total)

	granted, total = store.ApplyGrantIfNew(grantFor("user-1", "spanish:greetings:step-3:flashcard", 2))
	assert.False(t, granted)
	assert.Equal(t, 2, total)

	assert.Len(t, store.PendingGrants("user-1"), 1)
	assert.Equal(t, 2, store.PendingTotal("user-1"))
}

func TestApplyGrantWithoutSession(t *testing.T) {
	store := NewSessionsStore(nil)
	granted, total := store.ApplyGrantIfNew(grantFor("ghost", "a:b:c:d", 5))
	assert.False(t, granted)
	assert.Equal(t, 0, total)
}

func TestConfirmGrantClearsPending(t *testing.T) {
	store := newTestStore("user-1", 0)
	store.ApplyGrantIfNew(grantFor("user-1", "a:b:c:d", 5))
	store.ApplyGrantIfNew(grantFor("user-1", "a:b:c:quiz", 10))
	require.Equal(t, 15, store.PendingTotal("user-1"))

	store.ConfirmGrant("user-1", "a:b:c:d")
	assert.Equal(t, 10, store.PendingTotal("user-1"))
	assert.Len(t, store.PendingGrants("user-1"), 1)

	// The confirmed key stays known to the guard.
	granted, total := store.ApplyGrantIfNew(grantFor("user-1", "a:b:c:d", 5))
	assert.False(t, granted)
	assert.Equal(t, 15, total)
}

func TestGetSnapshotReturnsCopy(t *testing.T) {
	store := newTestStore("user-1", 50)
	store.UpsertProgressRow(&rewards.ProgressRow{UserID: "user-1", ModuleSlug: "spanish", LessonSlug: "greetings", StepID: "s1", Score: 80})

	snapshot, ok := store.GetSnapshot("user-1")
	require.True(t, ok)
	snapshot.TotalXP = 9999
	snapshot.ProgressRows[0].Score = 0

	fresh, _ := store.GetSnapshot("user-1")
	assert.Equal(t, 50, fresh.TotalXP)
	assert.Equal(t, 80, fresh.ProgressRows[0].Score)
}

func TestClearUser(t *testing.T) {
	store := newTestStore("user-1", 50)
	store.ApplyGrantIfNew(grantFor("user-1", "a:b:c:d", 5))

	store.ClearUser("user-1")
	assert.False(t, store.HasSession("user-1"))
	assert.Empty(t, store.PendingGrants("user-1"))

	// A fresh session starts from durable state only; the old local guard
	// entries are gone.
	store.InitializeUser(&types.Snapshot{UserID: "user-1", TotalXP: 55, Timezone: "UTC"}, map[string]bool{"a:b:c:d": true})
	granted, _ := store.ApplyGrantIfNew(grantFor("user-1", "a:b:c:d", 5))
	assert.False(t, granted)
}

func TestEvictStaleSkipsPendingGrants(t *testing.T) {
	store := newTestStore("idle-user", 10)
	store.ApplyGrantIfNew(grantFor("idle-user", "a:b:c:d", 5))
	store.ConfirmGrant("idle-user", "a:b:c:d")

	store.newTestBackdate("idle-user", -2*time.Hour)
	evicted := store.EvictStale(time.Hour)
	assert.Equal(t, 1, evicted)
	assert.False(t, store.HasSession("idle-user"))
}

func TestEvictStaleKeepsUnconfirmedGrants(t *testing.T) {
	store := newTestStore("idle-user", 10)
	store.ApplyGrantIfNew(grantFor("idle-user", "a:b:c:d", 5))

	store.newTestBackdate("idle-user", -2*time.Hour)
	evicted := store.EvictStale(time.Hour)
	assert.Equal(t, 0, evicted)
	assert.True(t, store.HasSession("idle-user"))
}

// newTestBackdate rewinds a snapshot's activity clock for eviction tests.
func (ss *SessionsStore) newTestBackdate(userID string, d time.Duration) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.cache.Snapshots[userID]; ok {
		s.LastActivity = s.LastActivity.Add(d)
	}
}
