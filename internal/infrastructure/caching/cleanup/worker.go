// Package cleanup provides background worker
package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
)

// BucketSweeper evicts expired fixed-window buckets. Satisfied by the
// rate limiter so the worker can sweep it on the same cadence as the cache.
type BucketSweeper interface {
	SweepExpired(now time.Time) int
}

// Worker handles background cache cleanup operations
type Worker struct {
	cache    interfaces.Cache
	sweepers []BucketSweeper
	config   *Config
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(cache interfaces.Cache, config *Config, sweepers ...BucketSweeper) *Worker {
	return &Worker{
		cache:    cache,
		sweepers: sweepers,
		config:   config,
	}
}

// Start begins the cleanup worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	log.Printf("Cache cleanup worker started (interval: %v, verbose: %v)",
		w.config.CleanupInterval, w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			log.Println("Cache cleanup worker stopping...")
			return
		case <-ticker.C:
			w.performCleanup()
		}
	}
}

// performCleanup evicts stale user snapshots, expired daily aggregates,
// and expired rate-limit buckets.
func (w *Worker) performCleanup() {
	start := time.Now()
	reporter := NewReporter(w.cache)

	if w.config.VerboseReporting {
		reporter.LogStage("PERIODIC CACHE CLEANUP")
		for _, userID := range w.cache.ActiveUsers() {
			fmt.Print(reporter.GenerateUserReport(userID))
		}
	}

	evicted := w.cache.EvictExpired()

	var buckets int
	now := time.Now()
	for _, s := range w.sweepers {
		buckets += s.SweepExpired(now)
	}

	duration := time.Since(start)
	if evicted > 0 || buckets > 0 {
		log.Printf("Cache cleanup completed: %d snapshots evicted, %d buckets swept in %v",
			evicted, buckets, duration)
	} else if w.config.VerboseReporting {
		reporter.LogInfo("Cache cleanup completed: nothing to evict (%v)", duration)
	}
}

// RunOnce performs a single cleanup cycle, used at shutdown.
func (w *Worker) RunOnce() {
	w.performCleanup()
}
