package constants

import (
	"time"
)

// Scheduler polling
const (
	// DefaultPollInterval - interval between squeue polls while waiting on a job (10 seconds)
	DefaultPollInterval = 10 * time.Second

	// MinPollInterval - lower bound accepted from configuration (1 second)
	// Anything faster hammers slurmctld for no benefit.
	MinPollInterval = 1 * time.Second
)

// Query retry configuration
const (
	// QueryRetries - additional attempts after a failed squeue invocation
	QueryRetries = 3

	// QueryRetryDelay - fixed delay between squeue attempts (10 seconds)
	QueryRetryDelay = 10 * time.Second
)

// Array jobs
const (
	// DefaultMaxArrayLength - default upper bound on array slots per submission
	// Matches the MaxArraySize commonly configured in slurm.conf.
	DefaultMaxArrayLength = 1000

	// DefaultPoolSize - default concurrent slot cap (the P in "1-K%P")
	DefaultPoolSize = 30
)

// slurmrestd
const (
	// DefaultRESTVersion - slurmrestd API version used in request paths
	DefaultRESTVersion = "v0.0.40"

	// DefaultRESTRatePerSec - request rate towards slurmrestd
	DefaultRESTRatePerSec = 5.0

	// DefaultRESTBurst - burst capacity for the slurmrestd limiter
	DefaultRESTBurst = 10
)

// On-disk layout
const (
	// LogDirName - per-job log subdirectory
	LogDirName = "logs"

	// CompletionMarker - file written under the job output path after a successful run
	CompletionMarker = "job_completed"

	// ScriptExt - extension of generated submission scripts
	ScriptExt = ".sh"

	// ArrayDetailsExt - extension of the per-slot command list
	ArrayDetailsExt = ".array-details"

	// SlotMarkerExt - extension of per-slot sentinel files written by the dispatch stanza
	SlotMarkerExt = ".completed"
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Logging
const (
	// LogFileMaxSizeMB - rotate the log file after this many megabytes
	LogFileMaxSizeMB = 10

	// LogFileMaxBackups - number of rotated log files kept
	LogFileMaxBackups = 5

	// LogFileMaxAgeDays - rotated files older than this are removed
	LogFileMaxAgeDays = 30
)
