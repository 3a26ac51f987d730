package constants

const (
	// Traffic constants
	BytesInGB = 1_000_000_000 // decimal GB, matches reported data_usage_gb

	// Network constants
	DefaultTimeout     = 30 // seconds, per remote call
	DefaultMaxAttempts = 3
	DefaultRetryWait   = 2 // seconds between attempts

	// Session constants
	SessionLifetime      = 30 // minutes
	CacheCleanupInterval = 10 // minutes

	// Sync constants
	DefaultSyncInterval = 5   // minutes between reconciliation ticks
	DefaultSyncTimeout  = 120 // seconds per server pass
	DefaultWorkerCount  = 4
	StaleRunThreshold   = 10 // minutes before a running sync log is considered stale

	// Label constants
	MinLabelLength = 3
	MaxLabelLength = 64

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
)
