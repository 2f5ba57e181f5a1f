package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRequiresSession(t *testing.T) {
	r := newRig()
	_, err := r.reconciler.Reconcile(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestReconcileCleanAuditWithPendingGrants(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	award(t, r, "user-1", "a:b:step-1:quiz", 10)
	award(t, r, "user-1", "a:b:step-2:quiz", 15)

	// Nothing flushed yet: expected = 0 confirmed + 25 pending.
	result, err := r.reconciler.Reconcile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, 25, result.CachedTotal)
	assert.Equal(t, 25, result.RemoteTotal)
	assert.Equal(t, 0, result.Difference)
}

func TestReconcileCleanAuditAfterFlush(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	award(t, r, "user-1", "a:b:step-1:quiz", 10)
	r.syncService.drainUser(context.Background(), "user-1")

	result, err := r.reconciler.Reconcile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, 10, result.CachedTotal)
}

func TestReconcileCorrectsDrift(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	award(t, r, "user-1", "a:b:step-1:quiz", 10)
	r.syncService.drainUser(context.Background(), "user-1")

	// Force the cache out of agreement with the durable store.
	r.cache.SetTotal("user-1", 999, time.Now().UTC())

	result, err := r.reconciler.Reconcile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, 999, result.CachedTotal)
	assert.Equal(t, 10, result.RemoteTotal)
	assert.Equal(t, 989, result.Difference)

	snapshot, _ := r.cache.GetSnapshot("user-1")
	assert.Equal(t, 10, snapshot.TotalXP)

	// The follow-up audit finds nothing to fix.
	result, err = r.reconciler.Reconcile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestReconcileActiveSkipsNobody(t *testing.T) {
	r := newRig()
	r.signIn("user-1", "UTC")
	r.signIn("user-2", "UTC")
	award(t, r, "user-1", "a:b:step-1:quiz", 10)
	award(t, r, "user-2", "a:b:step-1:quiz", 20)
	r.syncService.drainUser(context.Background(), "user-1")
	r.syncService.drainUser(context.Background(), "user-2")

	r.cache.SetTotal("user-1", 1, time.Now().UTC())
	r.cache.SetTotal("user-2", 2, time.Now().UTC())

	r.reconciler.ReconcileActive(context.Background())

	s1, _ := r.cache.GetSnapshot("user-1")
	s2, _ := r.cache.GetSnapshot("user-2")
	assert.Equal(t, 10, s1.TotalXP)
	assert.Equal(t, 20, s2.TotalXP)
}
