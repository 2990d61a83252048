package runner

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gherkit/gherkit/types"
)

// BuildWorkItems flattens a set of features into an ordered work queue.
// Background steps are folded into each scenario's step list, data-driven
// scenarios expand to one item per example row, and disabled scenarios
// produce nothing at all (they do not count toward the run total).
//
// The output order is stable across runs with the same input so progress
// counters are reproducible. It says nothing about execution order.
func BuildWorkItems(features []types.Feature) []types.WorkItem {
	var items []types.WorkItem

	for fi := range features {
		feature := &features[fi]
		for si := range feature.Scenarios {
			scenario := &feature.Scenarios[si]
			if scenarioDisabled(feature, scenario) {
				continue
			}

			merged := mergeBackground(feature, scenario)

			rows := exampleRows(&merged)
			if len(rows) == 0 {
				items = append(items, types.WorkItem{
					ID:            uuid.New().String(),
					Feature:       *feature,
					Scenario:      merged,
					ScenarioIndex: si,
				})
				continue
			}

			total := len(rows)
			for ri, row := range rows {
				items = append(items, types.WorkItem{
					ID:              uuid.New().String(),
					Feature:         *feature,
					Scenario:        merged,
					ScenarioIndex:   si,
					ExampleHeaders:  merged.Examples.Headers,
					ExampleRow:      row,
					IterationNumber: ri + 1,
					TotalIterations: total,
				})
			}
		}
	}

	return items
}

// scenarioDisabled reports whether a scenario should be excluded from the
// run. A scenario tag wins over a feature tag, so a disabled feature can
// still run individual scenarios tagged enabled.
func scenarioDisabled(feature *types.Feature, scenario *types.Scenario) bool {
	if scenario.HasTag(types.TagDisabled) {
		return true
	}
	if feature.HasTag(types.TagDisabled) && !scenario.HasTag(types.TagEnabled) {
		return true
	}
	return false
}

// mergeBackground returns a copy of the scenario with the feature's
// background steps prepended, so workers never need background handling.
func mergeBackground(feature *types.Feature, scenario *types.Scenario) types.Scenario {
	merged := *scenario
	if len(feature.Background) > 0 {
		steps := make([]types.Step, 0, len(feature.Background)+len(scenario.Steps))
		steps = append(steps, feature.Background...)
		steps = append(steps, scenario.Steps...)
		merged.Steps = steps
	}
	return merged
}

// exampleRows returns the resolved data rows for a scenario, or nil when the
// scenario is not data-driven. An examples block with zero resolved rows is
// treated as not data-driven so an enabled scenario always yields at least
// one work item.
func exampleRows(scenario *types.Scenario) [][]string {
	if scenario.Examples == nil || len(scenario.Examples.Rows) == 0 {
		return nil
	}
	return scenario.Examples.Rows
}

// ValidateWorkItems checks builder output before it is handed to the pool.
// Invalid items indicate a builder bug and fail the run up front rather
// than mid-dispatch.
func ValidateWorkItems(items []types.WorkItem) error {
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return fmt.Errorf("work item %d invalid: %w", i, err)
		}
	}
	return nil
}
