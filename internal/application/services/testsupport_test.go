package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/syncqueue"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/manager"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/messaging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
)

func quietLogger() *logging.ChanneledLogger {
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: true,
		DefaultLevel:    slog.LevelError + 4,
		ChannelLevels:   make(map[logging.Channel]slog.Level),
	})
	if err != nil {
		panic(err)
	}
	return logger
}

// memGrantRepo is an in-memory durable store for grants. It enforces the
// activity-key uniqueness constraint the way the real store does and can
// simulate outages via failWith.
type memGrantRepo struct {
	mu       sync.Mutex
	grants   map[string]map[string]*rewards.Grant // userID -> activityKey -> grant
	failWith error
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: make(map[string]map[string]*rewards.Grant)}
}

func (r *memGrantRepo) setFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *memGrantRepo) Insert(_ context.Context, grant *rewards.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	byKey := r.grants[grant.UserID]
	if byKey == nil {
		byKey = make(map[string]*rewards.Grant)
		r.grants[grant.UserID] = byKey
	}
	if _, exists := byKey[grant.ActivityKey]; exists {
		return fmt.Errorf("%w: %s", rewards.ErrDuplicateGrant, grant.ActivityKey)
	}
	stored := *grant
	stored.SyncState = rewards.SyncConfirmed
	byKey[grant.ActivityKey] = &stored
	return nil
}

func (r *memGrantRepo) ConfirmedTotal(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, g := range r.grants[userID] {
		total += g.Amount
	}
	return total, nil
}

func (r *memGrantRepo) ConfirmedKeys(_ context.Context, userID string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make(map[string]bool)
	for key := range r.grants[userID] {
		keys[key] = true
	}
	return keys, nil
}

func (r *memGrantRepo) GrantsSince(_ context.Context, userID string, since time.Time) ([]*rewards.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*rewards.Grant
	for _, g := range r.grants[userID] {
		if !g.CreatedAt.Before(since) {
			copied := *g
			out = append(out, &copied)
		}
	}
	return out, nil
}

// memProgressRepo holds progress rows, streaks, and daily goals.
type memProgressRepo struct {
	mu      sync.Mutex
	rows    map[string]map[string]*rewards.ProgressRow // userID -> resource key -> row
	streaks map[string]*rewards.StreakState
	goals   map[string]*rewards.DailyGoal
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{
		rows:    make(map[string]map[string]*rewards.ProgressRow),
		streaks: make(map[string]*rewards.StreakState),
		goals:   make(map[string]*rewards.DailyGoal),
	}
}

func (r *memProgressRepo) UpsertProgress(_ context.Context, row *rewards.ProgressRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey := r.rows[row.UserID]
	if byKey == nil {
		byKey = make(map[string]*rewards.ProgressRow)
		r.rows[row.UserID] = byKey
	}
	copied := *row
	byKey[row.Key()] = &copied
	return nil
}

func (r *memProgressRepo) ProgressRows(_ context.Context, userID string) ([]*rewards.ProgressRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*rewards.ProgressRow
	for _, row := range r.rows[userID] {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memProgressRepo) UpsertStreak(_ context.Context, userID string, streak *rewards.StreakState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *streak
	r.streaks[userID] = &copied
	return nil
}

func (r *memProgressRepo) Streak(_ context.Context, userID string) (*rewards.StreakState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if streak, ok := r.streaks[userID]; ok {
		copied := *streak
		return &copied, nil
	}
	return &rewards.StreakState{Timezone: "UTC"}, nil
}

func (r *memProgressRepo) UpsertDailyGoal(_ context.Context, goal *rewards.DailyGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *goal
	r.goals[goal.UserID] = &copied
	return nil
}

func (r *memProgressRepo) DailyGoal(_ context.Context, userID string) (*rewards.DailyGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if goal, ok := r.goals[userID]; ok {
		copied := *goal
		return &copied, nil
	}
	return nil, nil
}

func (r *memProgressRepo) TotalsByUser(_ context.Context, limit int) ([]rewards.LeaderboardRow, error) {
	return nil, nil
}

// memLearnerRepo holds learner accounts keyed by id.
type memLearnerRepo struct {
	mu       sync.Mutex
	learners map[string]*user.Learner
}

func newMemLearnerRepo() *memLearnerRepo {
	return &memLearnerRepo{learners: make(map[string]*user.Learner)}
}

func (r *memLearnerRepo) add(l *user.Learner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *l
	r.learners[l.ID] = &copied
}

func (r *memLearnerRepo) FindByID(_ context.Context, id string) (*user.Learner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.learners[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, fmt.Errorf("learner %s not found", id)
}

func (r *memLearnerRepo) FindByEmail(_ context.Context, email string) (*user.Learner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.learners {
		if l.Email == email {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memLearnerRepo) Store(_ context.Context, l *user.Learner) error {
	r.add(l)
	return nil
}

func (r *memLearnerRepo) Update(_ context.Context, l *user.Learner) error {
	r.add(l)
	return nil
}

func (r *memLearnerRepo) UpdateTimezone(_ context.Context, id, timezone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.learners[id]; ok {
		l.Timezone = timezone
	}
	return nil
}

// memQueueRepo is an in-memory syncqueue.Repository mirroring the sqlite
// implementation's ordering and status semantics.
type memQueueRepo struct {
	mu      sync.Mutex
	entries []*syncqueue.Entry
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{}
}

func (r *memQueueRepo) find(id string) *syncqueue.Entry {
	for _, e := range r.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *memQueueRepo) Append(_ context.Context, entry *syncqueue.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memQueueRepo) FindQueued(_ context.Context, userID string, op syncqueue.OperationType, resourceKey string) (*syncqueue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID && e.OperationType == op && e.ResourceKey == resourceKey && e.Status == syncqueue.StatusQueued {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memQueueRepo) ReplacePayload(_ context.Context, id string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.find(id)
	if e == nil || e.Status != syncqueue.StatusQueued {
		return fmt.Errorf("entry %s is not queued", id)
	}
	e.Payload = payload
	return nil
}

func (r *memQueueRepo) NextForUser(_ context.Context, userID string) (*syncqueue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *syncqueue.Entry
	for _, e := range r.entries {
		if e.UserID != userID || e.Status == syncqueue.StatusFailed {
			continue
		}
		if next == nil || e.Sequence < next.Sequence {
			next = e
		}
	}
	// The lowest live entry gates the queue: while it is in flight or
	// waiting out backoff, nothing behind it may jump ahead.
	if next == nil || next.Status != syncqueue.StatusQueued || next.NextRetryAt.After(time.Now().UTC()) {
		return nil, nil
	}
	copied := *next
	return &copied, nil
}

func (r *memQueueRepo) RequeueInFlight(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.Status == syncqueue.StatusInFlight {
			e.Status = syncqueue.StatusQueued
			count++
		}
	}
	return count, nil
}

func (r *memQueueRepo) PendingUsers(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	for _, e := range r.entries {
		if e.Status == syncqueue.StatusQueued {
			seen[e.UserID] = true
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (r *memQueueRepo) MarkInFlight(_ context.Context, id string) error {
	return r.setStatus(id, syncqueue.StatusInFlight)
}

func (r *memQueueRepo) MarkQueuedForRetry(_ context.Context, id string, attempts int, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.find(id)
	if e == nil {
		return fmt.Errorf("entry %s not found", id)
	}
	e.Status = syncqueue.StatusQueued
	e.Attempts = attempts
	e.NextRetryAt = nextRetryAt
	return nil
}

func (r *memQueueRepo) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, syncqueue.StatusFailed)
}

func (r *memQueueRepo) setStatus(id string, status syncqueue.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.find(id)
	if e == nil {
		return fmt.Errorf("entry %s not found", id)
	}
	e.Status = status
	return nil
}

func (r *memQueueRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("entry %s not found", id)
}

func (r *memQueueRepo) FailedEntries(_ context.Context, userID string) ([]*syncqueue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncqueue.Entry
	for _, e := range r.entries {
		if e.UserID == userID && e.Status == syncqueue.StatusFailed {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memQueueRepo) RequeueFailed(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.UserID == userID && e.Status == syncqueue.StatusFailed {
			e.Status = syncqueue.StatusQueued
			e.Attempts = 0
			e.NextRetryAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (r *memQueueRepo) MaxSequence(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, e := range r.entries {
		if e.UserID == userID && e.Sequence > max {
			max = e.Sequence
		}
	}
	return max, nil
}

func (r *memQueueRepo) PendingByUser(_ context.Context, userID string) ([]*syncqueue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncqueue.Entry
	for _, e := range r.entries {
		if e.UserID == userID && e.Status != syncqueue.StatusFailed {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// rig bundles a full in-memory service stack for tests.
type rig struct {
	grantRepo    *memGrantRepo
	progressRepo *memProgressRepo
	learnerRepo  *memLearnerRepo
	queueRepo    *memQueueRepo
	cache        *manager.Manager
	bus          *messaging.EventBus
	syncService  *SyncService
	ledger       *LedgerService
	reconciler   *ReconciliationService
	aggregates   *AggregateService
	sessions     *SessionService
}

func newRig() *rig {
	logger := quietLogger()
	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())

	grantRepo := newMemGrantRepo()
	progressRepo := newMemProgressRepo()
	learnerRepo := newMemLearnerRepo()
	queueRepo := newMemQueueRepo()
	cache := manager.NewManager(logger)
	bus := messaging.NewIsolatedBus(logger)

	syncService := NewSyncService(queueRepo, grantRepo, progressRepo, learnerRepo, cache, logger, perfTracker)
	aggregateService := NewAggregateService(grantRepo, progressRepo, cache, bus, syncService, logger, perfTracker)
	return &rig{
		grantRepo:    grantRepo,
		progressRepo: progressRepo,
		learnerRepo:  learnerRepo,
		queueRepo:    queueRepo,
		cache:        cache,
		bus:          bus,
		syncService:  syncService,
		ledger:       NewLedgerService(cache, bus, syncService, aggregateService, logger, perfTracker),
		reconciler:   NewReconciliationService(grantRepo, cache, logger, perfTracker),
		aggregates:   aggregateService,
		sessions:     NewSessionService(learnerRepo, grantRepo, progressRepo, cache, bus, syncService, logger, perfTracker),
	}
}

// signIn seeds a learner and hydrates a session for them.
func (r *rig) signIn(userID, timezone string) {
	r.learnerRepo.add(&user.Learner{
		ID:          userID,
		DisplayName: "Learner " + userID,
		Email:       userID + "@example.com",
		Timezone:    timezone,
	})
	if _, err := r.sessions.Initialize(context.Background(), userID); err != nil {
		panic(err)
	}
	// Initialize kicks an async flush for leftover entries; wait it out so
	// tests can reason about queue contents deterministically.
	r.syncService.Wait()
}
