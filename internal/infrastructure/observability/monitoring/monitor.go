// Package monitoring tracks cache, queue, and request-path health and
// periodically reports a consolidated snapshot.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/syncqueue"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/manager"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/ratelimit"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// HealthSnapshot is a point-in-time view of system health.
type HealthSnapshot struct {
	GeneratedAt time.Time `json:"generatedAt"`

	ActiveSessions     int      `json:"activeSessions"`
	UsersWithBacklog   int      `json:"usersWithBacklog"`
	DegradedUsers      []string `json:"degradedUsers,omitempty"`
	TrackedIdentifiers int      `json:"trackedIdentifiers"`

	Cache       map[string]any `json:"cache"`
	Performance map[string]any `json:"performance"`
	AlertCount  int            `json:"alertCount"`
}

// SystemMonitor samples the cache, the sync queue, and the performance
// tracker on an interval and logs a consolidated health line.
type SystemMonitor struct {
	cache     *manager.Manager
	queueRepo syncqueue.Repository
	limiter   *ratelimit.Limiter
	tracker   *performance.Tracker
	logger    *logging.ChanneledLogger

	mu   sync.RWMutex
	last *HealthSnapshot
}

// NewSystemMonitor creates a monitor over the live components.
func NewSystemMonitor(cache *manager.Manager, queueRepo syncqueue.Repository, limiter *ratelimit.Limiter, tracker *performance.Tracker, logger *logging.ChanneledLogger) *SystemMonitor {
	return &SystemMonitor{
		cache:     cache,
		queueRepo: queueRepo,
		limiter:   limiter,
		tracker:   tracker,
		logger:    logger,
	}
}

// Snapshot samples every component and caches the result for readers.
func (m *SystemMonitor) Snapshot(ctx context.Context) (*HealthSnapshot, error) {
	backlog, err := m.queueRepo.PendingUsers(ctx)
	if err != nil {
		return nil, err
	}

	var degraded []string
	for _, userID := range m.cache.ActiveUsers() {
		failed, err := m.queueRepo.FailedEntries(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(failed) > 0 {
			degraded = append(degraded, userID)
		}
	}

	snapshot := &HealthSnapshot{
		GeneratedAt:        time.Now().UTC(),
		ActiveSessions:     len(m.cache.ActiveUsers()),
		UsersWithBacklog:   len(backlog),
		DegradedUsers:      degraded,
		TrackedIdentifiers: m.limiter.Count(),
		Cache:              m.cache.Stats(),
		Performance:        m.tracker.GetOverallStats(),
		AlertCount:         len(m.tracker.GetAlerts()),
	}

	m.mu.Lock()
	m.last = snapshot
	m.mu.Unlock()
	return snapshot, nil
}

// LastSnapshot returns the most recent sample without resampling, or nil
// when no sample has been taken yet.
func (m *SystemMonitor) LastSnapshot() *HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Start runs the sampling loop until the context is cancelled.
func (m *SystemMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(config.MonitorInterval)
	defer ticker.Stop()

	m.logger.Perf().Info("System monitor started", "interval", config.MonitorInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Perf().Info("System monitor stopping")
			return
		case <-ticker.C:
			snapshot, err := m.Snapshot(ctx)
			if err != nil {
				m.logger.LogError(logging.ChannelPerf, "health_sample", err, "", nil)
				continue
			}
			m.logger.Perf().Info("Health sample",
				"activeSessions", snapshot.ActiveSessions,
				"usersWithBacklog", snapshot.UsersWithBacklog,
				"degradedUsers", len(snapshot.DegradedUsers),
				"trackedIdentifiers", snapshot.TrackedIdentifiers,
				"alerts", snapshot.AlertCount)
		}
	}
}
