package worker

import (
	"strings"

	"github.com/gherkit/gherkit/types"
)

// Interpolate replaces <placeholder> tokens in text with values from the
// example row. Tokens without a matching header are left untouched so the
// failure surfaces in the step text instead of silently vanishing.
func Interpolate(text string, headers, row []string) string {
	if len(headers) == 0 || !strings.Contains(text, "<") {
		return text
	}
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		text = strings.ReplaceAll(text, "<"+h+">", row[i])
	}
	return text
}

// InterpolateScenario returns a copy of the scenario with every step's text
// and argument interpolated from the example row.
func InterpolateScenario(scenario *types.Scenario, headers, row []string) *types.Scenario {
	if len(headers) == 0 {
		return scenario
	}
	out := *scenario
	out.Steps = make([]types.Step, len(scenario.Steps))
	for i, step := range scenario.Steps {
		step.Text = Interpolate(step.Text, headers, row)
		step.Arg = Interpolate(step.Arg, headers, row)
		out.Steps[i] = step
	}
	return &out
}

// IterationData zips example headers and row values into the map echoed back
// on result messages.
func IterationData(headers, row []string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	data := make(map[string]string, len(headers))
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		data[h] = row[i]
	}
	return data
}
