package cleanup

import (
	"time"

	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval  time.Duration
	VerboseReporting bool
	SnapshotTTL      time.Duration
	AggregateTTL     time.Duration
}

// NewConfig creates a new cleanup configuration by reading values
// from the already-initialized variables in the centralized /pkg/config package.
func NewConfig() *Config {
	return &Config{
		CleanupInterval:  config.CacheCleanupInterval,
		VerboseReporting: config.CacheCleanupVerbose,
		SnapshotTTL:      config.UserSnapshotTTL,
		AggregateTTL:     config.DailyAggregateTTL,
	}
}
