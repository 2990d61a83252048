package gherkit

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/gherkit/gherkit/runner"
	"github.com/gherkit/gherkit/types"
)

// featureGroup collects the logical scenario outcomes of one feature, in
// completion order.
type featureGroup struct {
	name      string
	scenarios []*types.ScenarioResult
	duration  time.Duration
	passed    int
	failed    int
	skipped   int
}

func (fg *featureGroup) status() types.ScenarioStatus {
	switch {
	case fg.failed > 0:
		return types.ScenarioStatusFailed
	case fg.passed == 0 && fg.skipped > 0:
		return types.ScenarioStatusSkipped
	default:
		return types.ScenarioStatusPassed
	}
}

// groupByFeature buckets scenario outcomes per feature, preserving the order
// in which features first completed a scenario.
func groupByFeature(scenarios []*types.ScenarioResult) []*featureGroup {
	var groups []*featureGroup
	index := make(map[string]*featureGroup)
	for _, s := range scenarios {
		fg, ok := index[s.FeatureName]
		if !ok {
			fg = &featureGroup{name: s.FeatureName}
			index[s.FeatureName] = fg
			groups = append(groups, fg)
		}
		fg.scenarios = append(fg.scenarios, s)
		fg.duration += s.Duration
		switch s.Status {
		case types.ScenarioStatusPassed:
			fg.passed++
		case types.ScenarioStatusSkipped:
			fg.skipped++
		default:
			fg.failed++
		}
	}
	return groups
}

// printResultsTable prints the results of the run to the console.
func (g *gherkit) printResultsTable(result *runner.RunResult) {
	g.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Scenario Run Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Scenarios", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Scenarios", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, fg := range groupByFeature(result.Scenarios) {
		// Feature row - show scenario counts but no "1" in Scenarios column
		t.AppendRow(table.Row{
			"Feature",
			fg.name,
			formatDuration(fg.duration),
			"-", // Don't count the feature as a scenario
			fg.passed,
			fg.failed,
			fg.skipped,
			getResultString(fg.status()),
			"",
		})

		for i, scenario := range fg.scenarios {
			prefix := "├──"
			if i == len(fg.scenarios)-1 {
				prefix = "└──"
			}

			t.AppendRow(table.Row{
				"Scenario",
				fmt.Sprintf("%s %s", prefix, scenario.ScenarioName),
				formatDuration(scenario.Duration),
				"1", // Count actual scenario
				boolToInt(scenario.Status == types.ScenarioStatusPassed),
				boolToInt(scenario.Status == types.ScenarioStatusFailed),
				boolToInt(scenario.Status == types.ScenarioStatusSkipped),
				getResultString(scenario.Status),
				extractKeyErrorMessage(scenario.Error),
			})

			// Display individual iterations for data-driven scenarios
			for j, iter := range scenario.Iterations {
				subPrefix := "│   ├──"
				if j == len(scenario.Iterations)-1 {
					subPrefix = "│   └──"
				}
				if i == len(fg.scenarios)-1 {
					subPrefix = strings.Replace(subPrefix, "│", " ", 1)
				}

				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s [%d/%d] %s", subPrefix, iter.Iteration, scenario.TotalIterations, formatIterationData(iter.Data)),
					formatDuration(iter.Duration),
					"",
					"",
					"",
					"",
					getResultString(iter.Status),
					extractKeyErrorMessage(iter.Error),
				})
			}
		}

		t.AppendSeparator()
	}

	// Update the table style setting based on result status
	if result.Failed() {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else if result.Stats.ScenariosPassed == 0 && result.Stats.ScenariosSkipped > 0 {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Scenarios,
		result.Stats.ScenariosPassed,
		result.Stats.ScenariosFailed,
		result.Stats.ScenariosSkipped,
		getResultString(runStatus(result)),
		"",
	})

	t.Render()
}

// formatIterationData renders the example row bound to one iteration, e.g.
// "{user=alice, role=admin}". Empty data renders as an empty string.
func formatIterationData(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	// Stable output regardless of map order
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%s", k, data[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// extractKeyErrorMessage extracts the most pertinent part of the error
// message for display
func extractKeyErrorMessage(errStr string) string {
	if errStr == "" {
		return ""
	}

	// Look for panics and assertion failures, which are typically important
	for _, marker := range []string{"panic:", "assertion failed:", "step failed:"} {
		if idx := strings.Index(errStr, marker); idx != -1 {
			start := idx
			end := len(errStr)
			if newLine := strings.Index(errStr[start:], "\n"); newLine != -1 {
				end = start + newLine
			}
			return errStr[start:end]
		}
	}

	// If we can't find a specific pattern, limit to the first line or 80 chars
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		errStr = errStr[:idx]
	}
	if len(errStr) > 80 {
		return errStr[:70] + "..."
	}
	return errStr
}

// summarizeRun builds the one-line run summary printed to the console and
// written to the summary log.
func summarizeRun(result *runner.RunResult) string {
	s := fmt.Sprintf("%d scenarios: %d passed, %d failed, %d skipped (%s)",
		result.Stats.Scenarios,
		result.Stats.ScenariosPassed,
		result.Stats.ScenariosFailed,
		result.Stats.ScenariosSkipped,
		formatDuration(result.Duration))
	if result.Stats.LostItems > 0 {
		s += fmt.Sprintf(", %d lost to worker crashes", result.Stats.LostItems)
	}
	if result.Stats.AbandonedItems > 0 {
		s += fmt.Sprintf(", %d never dispatched", result.Stats.AbandonedItems)
	}
	if result.Stats.WorkerRecycles > 0 {
		s += fmt.Sprintf(", %d worker recycles", result.Stats.WorkerRecycles)
	}
	return s
}

// runStatus collapses a run result into a single status.
func runStatus(result *runner.RunResult) types.ScenarioStatus {
	switch {
	case result.Failed():
		return types.ScenarioStatusFailed
	case result.Stats.ScenariosPassed == 0 && result.Stats.ScenariosSkipped > 0:
		return types.ScenarioStatusSkipped
	default:
		return types.ScenarioStatusPassed
	}
}

// runStatusLabel is the metrics label for a run outcome.
func runStatusLabel(result *runner.RunResult) string {
	return string(runStatus(result))
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing the scenario result
func getResultString(status types.ScenarioStatus) string {
	switch status {
	case types.ScenarioStatusPassed:
		return "✓ pass"
	case types.ScenarioStatusSkipped:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
