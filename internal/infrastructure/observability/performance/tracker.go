package performance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers map[string]*Marker // Active and completed markers by unique ID
	alerts  []*Alert           // Active performance alerts
	config  *TrackerConfig
	mu      sync.RWMutex
	started time.Time
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers      int           `json:"maxMarkers"`      // Maximum number of markers to retain
	MaxAlerts       int           `json:"maxAlerts"`       // Maximum number of alerts to retain
	CleanupInterval time.Duration `json:"cleanupInterval"` // How often to clean up old data
	EnableAlerts    bool          `json:"enableAlerts"`    // Whether to generate performance alerts

	// Operation thresholds
	SlowResponseThreshold time.Duration `json:"slowResponseThreshold"` // 500ms
	LedgerThreshold       time.Duration `json:"ledgerThreshold"`       // 10ms: award path is synchronous
	SyncFlushThreshold    time.Duration `json:"syncFlushThreshold"`    // 2s
	DatabaseThreshold     time.Duration `json:"databaseThreshold"`     // 50ms
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:            10000,
		MaxAlerts:             500,
		CleanupInterval:       10 * time.Minute,
		EnableAlerts:          true,
		SlowResponseThreshold: 500 * time.Millisecond,
		LedgerThreshold:       10 * time.Millisecond,
		SyncFlushThreshold:    2 * time.Second,
		DatabaseThreshold:     50 * time.Millisecond,
	}
}

// AlertSeverity indicates how bad a threshold breach is
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert records one threshold breach for inspection
type Alert struct {
	Operation string        `json:"operation"`
	UserID    string        `json:"userId"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewTracker creates a new performance tracker
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}

	return &Tracker{
		markers: make(map[string]*Marker),
		alerts:  make([]*Alert, 0),
		config:  config,
		started: time.Now(),
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, userID string) *Marker {
	marker := &Marker{
		Operation: operation,
		UserID:    userID,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
	}

	markerID := fmt.Sprintf("%s_%s_%d", userID, operation, time.Now().UnixNano())

	t.mu.Lock()
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// StartOperationWithContext creates a performance marker with context cancellation support
func (t *Tracker) StartOperationWithContext(ctx context.Context, operation, userID string) *Marker {
	marker := t.StartOperation(operation, userID)

	go func() {
		<-ctx.Done()
		if !marker.Completed {
			marker.SetError(ctx.Err())
			marker.Complete()
		}
	}()

	return marker
}

// CompleteOperation manually completes an operation and checks for alerts
func (t *Tracker) CompleteOperation(marker *Marker) {
	if marker == nil || marker.Completed {
		return
	}

	marker.Complete()

	if t.config.EnableAlerts {
		t.checkForAlerts(marker)
	}
}

func (t *Tracker) checkForAlerts(marker *Marker) {
	threshold := t.config.SlowResponseThreshold
	switch {
	case strings.HasPrefix(marker.Operation, "ledger:"):
		threshold = t.config.LedgerThreshold
	case strings.HasPrefix(marker.Operation, "sync:"):
		threshold = t.config.SyncFlushThreshold
	case strings.HasPrefix(marker.Operation, "db:"):
		threshold = t.config.DatabaseThreshold
	}

	if marker.Duration <= threshold {
		return
	}

	severity := SeverityWarning
	if marker.Duration > 4*threshold {
		severity = SeverityCritical
	}

	alert := &Alert{
		Operation: marker.Operation,
		UserID:    marker.UserID,
		Severity:  severity,
		Message:   fmt.Sprintf("%s took %v (threshold %v)", marker.Operation, marker.Duration, threshold),
		Duration:  marker.Duration,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	t.alerts = append(t.alerts, alert)
	if len(t.alerts) > t.config.MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
	}
	t.mu.Unlock()
}

// GetMetrics returns completed markers for a user
func (t *Tracker) GetMetrics(userID string) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var metrics []Marker
	for _, marker := range t.markers {
		if marker.UserID == userID && marker.Completed {
			metrics = append(metrics, *marker)
		}
	}
	return metrics
}

// GetAlerts returns current alerts, most recent last
func (t *Tracker) GetAlerts() []*Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Alert, len(t.alerts))
	copy(out, t.alerts)
	return out
}

// Cleanup discards completed markers beyond the retention limit
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.markers) <= t.config.MaxMarkers {
		return
	}

	for id, marker := range t.markers {
		if marker.Completed && len(t.markers) > t.config.MaxMarkers {
			delete(t.markers, id)
		}
	}
}

// GetOverallStats returns coarse tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completed := 0
	for _, marker := range t.markers {
		if marker.Completed {
			completed++
		}
	}

	return map[string]any{
		"uptime":           time.Since(t.started).String(),
		"trackedMarkers":   len(t.markers),
		"completedMarkers": completed,
		"activeAlerts":     len(t.alerts),
	}
}
