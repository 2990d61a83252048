package runner

import "time"

// Pool timing and health defaults. All of them are externally configurable;
// these are the values used when the config leaves them zero.
const (
	// DefaultScenarioTimeout bounds how long a worker may hold one item
	// before it is considered stuck and recycled.
	DefaultScenarioTimeout = 2 * time.Minute

	// DefaultGlobalTimeout bounds the entire run.
	DefaultGlobalTimeout = 10 * time.Minute

	// DefaultStartupTimeout bounds the wait for a worker's ready signal.
	DefaultStartupTimeout = 15 * time.Second

	// DefaultShutdownTimeout bounds the wait for graceful worker exit.
	// Generous because browser/context teardown can take several seconds.
	DefaultShutdownTimeout = 20 * time.Second

	// DefaultHealthInterval is the period of the worker health check.
	DefaultHealthInterval = 100 * time.Millisecond

	// DefaultErrorThreshold is the number of execution errors a worker may
	// accumulate before it is proactively recycled.
	DefaultErrorThreshold = 5

	// DefaultProgressInterval is the period between console progress updates.
	DefaultProgressInterval = 30 * time.Second

	// MaxReasonableWorkers caps auto-determined pool sizes to avoid
	// resource exhaustion.
	MaxReasonableWorkers = 32
)

// Worker recycle reasons, used in logs and metrics labels.
const (
	RecycleReasonStuck      = "stuck"
	RecycleReasonErrors     = "error_threshold"
	RecycleReasonCrash      = "crash"
	RecycleReasonSendFailed = "send_failed"
)
