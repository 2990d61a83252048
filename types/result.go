package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ScenarioStatus represents the possible outcomes of a scenario execution.
type ScenarioStatus string

const (
	ScenarioStatusPassed  ScenarioStatus = "passed"
	ScenarioStatusFailed  ScenarioStatus = "failed"
	ScenarioStatusSkipped ScenarioStatus = "skipped"
)

// StepResult captures the outcome of one executed step.
type StepResult struct {
	Keyword  string         `json:"keyword"`
	Text     string         `json:"text"`
	Status   ScenarioStatus `json:"status"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
}

// Artifacts references files produced during scenario execution. All paths
// are relative to the shared results root; filenames are scenario- and
// worker-qualified, so no copying is needed supervisor-side.
type Artifacts struct {
	Screenshots []string `json:"screenshots,omitempty"`
	Videos      []string `json:"videos,omitempty"`
	Traces      []string `json:"traces,omitempty"`
	Logs        []string `json:"logs,omitempty"`
}

// Empty reports whether no artifacts were collected.
func (a *Artifacts) Empty() bool {
	return len(a.Screenshots) == 0 && len(a.Videos) == 0 && len(a.Traces) == 0 && len(a.Logs) == 0
}

// IterationResult is the per-row outcome of one iteration of a data-driven
// scenario, kept inside the aggregated result for downstream reporting.
type IterationResult struct {
	Iteration  int               `json:"iteration"`
	Status     ScenarioStatus    `json:"status"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
	StackTrace string            `json:"stackTrace,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// ScenarioResult captures the outcome of a single work item, or, when
// Aggregated is set, the synthesized outcome of all iterations of a
// data-driven scenario.
type ScenarioResult struct {
	WorkItemID   string         `json:"workItemId"`
	FeatureName  string         `json:"featureName"`
	ScenarioName string         `json:"scenarioName"`
	Status       ScenarioStatus `json:"status"`
	Duration     time.Duration  `json:"duration"`
	Error        string         `json:"error,omitempty"`
	StackTrace   string         `json:"stackTrace,omitempty"`
	Steps        []StepResult   `json:"steps,omitempty"`
	Artifacts    Artifacts      `json:"artifacts,omitempty"`
	Console      string         `json:"console,omitempty"`

	// Iteration metadata echoed from the originating work item.
	Iteration       int               `json:"iteration,omitempty"`
	TotalIterations int               `json:"totalIterations,omitempty"`
	IterationData   map[string]string `json:"iterationData,omitempty"`

	// Aggregation output, present only on synthesized outcomes.
	Aggregated bool              `json:"aggregated,omitempty"`
	Iterations []IterationResult `json:"iterations,omitempty"`
}

// Key returns the feature::scenario key of this result.
func (r *ScenarioResult) Key() string {
	return ScenarioKey(r.FeatureName, r.ScenarioName)
}

// Failed reports whether the scenario did not pass.
func (r *ScenarioResult) Failed() bool {
	return r.Status == ScenarioStatusFailed
}

// SortIterations orders the per-iteration results by iteration number.
// Arrival order depends on worker speed and carries no meaning.
func (r *ScenarioResult) SortIterations() {
	sort.Slice(r.Iterations, func(i, j int) bool {
		return r.Iterations[i].Iteration < r.Iterations[j].Iteration
	})
}

// FailedIterations returns the iteration ordinals that failed, in order.
func (r *ScenarioResult) FailedIterations() []int {
	var failed []int
	for _, it := range r.Iterations {
		if it.Status == ScenarioStatusFailed {
			failed = append(failed, it.Iteration)
		}
	}
	sort.Ints(failed)
	return failed
}

// SummarizeFailures builds a short human-readable account of which iterations
// failed, e.g. "2 of 3 iterations failed (2, 3)".
func (r *ScenarioResult) SummarizeFailures() string {
	failed := r.FailedIterations()
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, len(failed))
	for i, n := range failed {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d of %d iterations failed (%s)",
		len(failed), len(r.Iterations), strings.Join(parts, ", "))
}
