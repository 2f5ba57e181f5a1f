// Package config provides centralized default values for LinguaQuest
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

// loadEnvFile must run before any getEnv* call reads the environment, so
// it lives in this package's init rather than main.
func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err != nil {
			return
		}
		log.Println("Loading configuration overrides from .env file...")
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database Configuration
	DatabaseDriver           string
	DatabasePath             string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Auth Configuration
	JWTSecret       string
	AESKey          string
	SessionTokenTTL time.Duration

	// SessionRefreshGrace bounds how long after expiry a token is still
	// accepted on the refresh endpoint.
	SessionRefreshGrace time.Duration

	// Sync Queue Configuration
	SyncMaxAttempts     int
	SyncInitialInterval time.Duration
	SyncMaxInterval     time.Duration
	SyncFlushInterval   time.Duration
	SyncRequestTimeout  time.Duration

	// Ledger Configuration
	MaxGrantAmount     int
	ReconcileInterval  time.Duration
	DefaultDailyGoalXP int

	// Rate Limiter Configuration
	PublicReadLimit      int
	PublicReadWindow     time.Duration
	BucketSweepInterval  time.Duration
	MaxTrackedIdentities int

	// Cache Configuration
	UserSnapshotTTL         time.Duration
	DailyAggregateTTL       time.Duration
	CacheCleanupInterval    time.Duration
	CacheCleanupVerbose     bool
	MaxSnapshotsPerInstance int
	LeaderboardCacheTTL     time.Duration
	LeaderboardDefaultLimit int

	// Monitoring Configuration
	MonitorInterval time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database Configuration
	DatabaseDriver = getEnvString("DATABASE_DRIVER", "sqlite3")
	DatabasePath = getEnvString("DATABASE_PATH", "linguaquest.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 50*time.Millisecond)

	// Auth Configuration
	JWTSecret = getEnvString("JWT_SECRET", "")
	AESKey = getEnvString("AES_KEY", "")
	SessionTokenTTL = time.Duration(getEnvInt("SESSION_TOKEN_TTL_HOURS", 720)) * time.Hour
	SessionRefreshGrace = time.Duration(getEnvInt("SESSION_REFRESH_GRACE_HOURS", 168)) * time.Hour

	// Sync Queue Configuration
	SyncMaxAttempts = getEnvInt("SYNC_MAX_ATTEMPTS", 8)
	SyncInitialInterval = getEnvDuration("SYNC_INITIAL_INTERVAL", 500*time.Millisecond)
	SyncMaxInterval = getEnvDuration("SYNC_MAX_INTERVAL", 2*time.Minute)
	SyncFlushInterval = getEnvDuration("SYNC_FLUSH_INTERVAL", 2*time.Second)
	SyncRequestTimeout = getEnvDuration("SYNC_REQUEST_TIMEOUT", 10*time.Second)

	// Ledger Configuration
	MaxGrantAmount = getEnvInt("MAX_GRANT_AMOUNT", 500)
	ReconcileInterval = time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", 15)) * time.Minute
	DefaultDailyGoalXP = getEnvInt("DEFAULT_DAILY_GOAL_XP", 50)

	// Rate Limiter Configuration
	PublicReadLimit = getEnvInt("PUBLIC_READ_LIMIT", 60)
	PublicReadWindow = getEnvDuration("PUBLIC_READ_WINDOW", time.Minute)
	BucketSweepInterval = time.Duration(getEnvInt("BUCKET_SWEEP_INTERVAL_MINUTES", 5)) * time.Minute
	MaxTrackedIdentities = getEnvInt("MAX_TRACKED_IDENTITIES", 10000)

	// Cache Configuration
	UserSnapshotTTL = time.Duration(getEnvInt("USER_SNAPSHOT_TTL_HOURS", 24)) * time.Hour
	DailyAggregateTTL = time.Duration(getEnvInt("DAILY_AGGREGATE_TTL_MINUTES", 10)) * time.Minute
	MonitorInterval = getEnvDuration("MONITOR_INTERVAL", time.Minute)
	CacheCleanupInterval = time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute
	CacheCleanupVerbose = getEnvBool("CACHE_CLEANUP_VERBOSE", true)
	MaxSnapshotsPerInstance = getEnvInt("MAX_SNAPSHOTS_PER_INSTANCE", 5000)
	LeaderboardCacheTTL = getEnvDuration("LEADERBOARD_CACHE_TTL", 30*time.Second)
	LeaderboardDefaultLimit = getEnvInt("LEADERBOARD_DEFAULT_LIMIT", 20)
}

// DatabaseDSN resolves the driver name and connection string for the
// durable store. A configured Turso database wins over the local file.
func DatabaseDSN() (string, string) {
	if TursoDatabaseURL != "" {
		return "libsql", TursoDatabaseURL + "?authToken=" + TursoAuthToken
	}
	return DatabaseDriver, DatabasePath
}
