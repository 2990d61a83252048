// Package runner contains the parallel execution core: it flattens parsed
// features into a queue of independent work items, supervises a pool of
// worker OS processes, dispatches items over the workers' message channels,
// recycles stuck or unhealthy workers, and reassembles per-iteration results
// of data-driven scenarios into single logical outcomes.
//
// The main components are:
//   - BuildWorkItems: expands features/scenarios into the flat work queue
//   - Pool: the process-pool supervisor and its single-threaded event loop
//   - WorkerProcess / ProcessFactory: the seam between the supervisor and
//     real OS processes, replaceable in tests
//   - Aggregator: merges iteration results and emits each logical scenario
//     outcome exactly once
//   - ProgressIndicator: run-level [n/total] progress reporting
package runner
