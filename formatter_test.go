package gherkit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/runner"
	"github.com/gherkit/gherkit/types"
)

func TestGroupByFeature(t *testing.T) {
	scenarios := []*types.ScenarioResult{
		{FeatureName: "Login", ScenarioName: "Valid", Status: types.ScenarioStatusPassed, Duration: time.Second},
		{FeatureName: "Search", ScenarioName: "Basic", Status: types.ScenarioStatusFailed, Duration: 2 * time.Second},
		{FeatureName: "Login", ScenarioName: "Invalid", Status: types.ScenarioStatusSkipped, Duration: time.Second},
	}

	groups := groupByFeature(scenarios)
	require.Len(t, groups, 2)

	// First-seen order is preserved
	assert.Equal(t, "Login", groups[0].name)
	assert.Equal(t, "Search", groups[1].name)

	login := groups[0]
	assert.Len(t, login.scenarios, 2)
	assert.Equal(t, 1, login.passed)
	assert.Equal(t, 1, login.skipped)
	assert.Equal(t, 0, login.failed)
	assert.Equal(t, 2*time.Second, login.duration)
	assert.Equal(t, types.ScenarioStatusPassed, login.status())

	search := groups[1]
	assert.Equal(t, 1, search.failed)
	assert.Equal(t, types.ScenarioStatusFailed, search.status())
}

func TestFeatureGroupStatusAllSkipped(t *testing.T) {
	fg := &featureGroup{skipped: 2}
	assert.Equal(t, types.ScenarioStatusSkipped, fg.status())
}

func TestFormatIterationData(t *testing.T) {
	assert.Equal(t, "", formatIterationData(nil))
	assert.Equal(t, "{role=admin, user=alice}",
		formatIterationData(map[string]string{"user": "alice", "role": "admin"}))
}

func TestExtractKeyErrorMessage(t *testing.T) {
	assert.Equal(t, "", extractKeyErrorMessage(""))

	// Panic marker wins over surrounding noise
	msg := extractKeyErrorMessage("worker output\npanic: nil dereference\ngoroutine 1 [running]:")
	assert.Equal(t, "panic: nil dereference", msg)

	msg = extractKeyErrorMessage("step failed: expected title to contain 'Results'\nat step 3")
	assert.Equal(t, "step failed: expected title to contain 'Results'", msg)

	// Multi-line errors collapse to the first line
	assert.Equal(t, "first line", extractKeyErrorMessage("first line\nsecond line"))

	// Long single-line errors are truncated
	long := strings.Repeat("x", 120)
	got := extractKeyErrorMessage(long)
	assert.Len(t, got, 73)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSummarizeRun(t *testing.T) {
	result := &runner.RunResult{
		Stats: runner.RunStats{
			Scenarios:        5,
			ScenariosPassed:  3,
			ScenariosFailed:  1,
			ScenariosSkipped: 1,
		},
		Duration: 1500 * time.Millisecond,
	}
	assert.Equal(t, "5 scenarios: 3 passed, 1 failed, 1 skipped (1.5s)", summarizeRun(result))

	result.Stats.LostItems = 2
	result.Stats.WorkerRecycles = 3
	s := summarizeRun(result)
	assert.Contains(t, s, "2 lost to worker crashes")
	assert.Contains(t, s, "3 worker recycles")
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, types.ScenarioStatusFailed, runStatus(&runner.RunResult{
		Stats: runner.RunStats{ScenariosFailed: 1},
	}))
	assert.Equal(t, types.ScenarioStatusSkipped, runStatus(&runner.RunResult{
		Stats: runner.RunStats{ScenariosSkipped: 2},
	}))
	assert.Equal(t, types.ScenarioStatusPassed, runStatus(&runner.RunResult{
		Stats: runner.RunStats{ScenariosPassed: 2},
	}))
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✓ pass", getResultString(types.ScenarioStatusPassed))
	assert.Equal(t, "- skip", getResultString(types.ScenarioStatusSkipped))
	assert.Equal(t, "✗ fail", getResultString(types.ScenarioStatusFailed))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
	assert.Equal(t, "0.0s", formatDuration(0))
}
