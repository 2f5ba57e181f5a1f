package rewards

import "errors"

// Sentinel errors for the reward engine. Handlers and services classify
// outcomes against these with errors.Is.
var (
	// ErrValidation marks a malformed reward request, rejected before any
	// state change.
	ErrValidation = errors.New("invalid reward request")

	// ErrDuplicateGrant is benign: the activity key is already credited,
	// locally or at the durable store.
	ErrDuplicateGrant = errors.New("activity key already granted")

	// ErrSyncFailure is transient; the sync queue retries per its backoff
	// policy before surfacing anything.
	ErrSyncFailure = errors.New("sync to durable store failed")

	// ErrQuotaExceeded is the rate limiter rejection; responses carry a
	// retry-after hint.
	ErrQuotaExceeded = errors.New("request quota exceeded")

	// ErrDriftDetected marks a reconciliation mismatch. The cache is
	// corrected automatically; the error exists for logging.
	ErrDriftDetected = errors.New("cache drift detected")

	// ErrSessionExpired triggers exactly one refresh-and-retry before
	// propagating to the caller.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoSession means the user has no active snapshot in the cache.
	ErrNoSession = errors.New("no active session")
)
