package types

import (
	"fmt"
)

// WorkItem is one schedulable unit of scenario execution: either a plain
// scenario, or a single iteration of a data-driven scenario.
type WorkItem struct {
	ID string

	// Payload handed to the worker unmodified. Background steps are already
	// folded into Scenario.Steps by the builder.
	Feature  Feature
	Scenario Scenario

	// ScenarioIndex is the scenario's position within its feature.
	ScenarioIndex int

	// Iteration metadata, set iff this item is one row of a scenario outline.
	// IterationNumber is 1-based; items of the same scenario cover
	// 1..TotalIterations exactly once.
	ExampleHeaders  []string
	ExampleRow      []string
	IterationNumber int
	TotalIterations int
}

// DataDriven reports whether this item is one iteration of a scenario
// outline.
func (w *WorkItem) DataDriven() bool {
	return w.IterationNumber > 0
}

// AggregateKey identifies the logical scenario this item belongs to,
// independent of iteration. All iterations of one outline share a key.
func (w *WorkItem) AggregateKey() string {
	return ScenarioKey(w.Feature.Name, w.Scenario.Name)
}

// Validate checks the internal consistency of the item. The supervisor fails
// fast on an invalid item since it indicates a builder bug, not a flaky run.
func (w *WorkItem) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("work item has no id")
	}
	if w.Feature.Name == "" {
		return fmt.Errorf("work item %s has no feature name", w.ID)
	}
	if w.Scenario.Name == "" {
		return fmt.Errorf("work item %s has no scenario name", w.ID)
	}
	if w.IterationNumber < 0 || w.TotalIterations < 0 {
		return fmt.Errorf("work item %s has negative iteration fields", w.ID)
	}
	if w.IterationNumber > 0 {
		if w.TotalIterations < w.IterationNumber {
			return fmt.Errorf("work item %s iteration %d exceeds total %d",
				w.ID, w.IterationNumber, w.TotalIterations)
		}
		if len(w.ExampleHeaders) != len(w.ExampleRow) {
			return fmt.Errorf("work item %s has %d example headers but %d values",
				w.ID, len(w.ExampleHeaders), len(w.ExampleRow))
		}
	} else if w.TotalIterations > 0 {
		return fmt.Errorf("work item %s has total iterations but no iteration number", w.ID)
	}
	return nil
}

// ScenarioKey builds the canonical feature::scenario key used for result maps
// and aggregation.
func ScenarioKey(featureName, scenarioName string) string {
	return featureName + "::" + scenarioName
}
