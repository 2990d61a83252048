package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/types"
)

func passedResult(feature, scenario string) *types.ScenarioResult {
	return &types.ScenarioResult{
		WorkItemID:   "item-1",
		FeatureName:  feature,
		ScenarioName: scenario,
		Status:       types.ScenarioStatusPassed,
		Duration:     50 * time.Millisecond,
		Console:      "Given a signed-in user ... passed\n",
	}
}

func TestNewFileLoggerCreatesRunDirectories(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-1")
	require.NoError(t, err)

	runDir := filepath.Join(baseDir, "testrun-run-1")
	assert.Equal(t, runDir, logger.GetBaseDir())
	assert.DirExists(t, runDir)
	assert.DirExists(t, filepath.Join(runDir, "failed"))
	assert.DirExists(t, filepath.Join(runDir, "passed"))
}

func TestNewFileLoggerRequiresRunID(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
}

func TestLogScenarioResultWritesAllSinks(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-2")
	require.NoError(t, err)

	res := passedResult("Login", "Valid credentials")
	require.NoError(t, logger.LogScenarioResult(res, "run-2"))
	require.NoError(t, logger.Complete("run-2"))

	// all.log carries the result.
	allLogs, err := os.ReadFile(logger.GetAllLogsFile())
	require.NoError(t, err)
	assert.Contains(t, string(allLogs), "Valid credentials")
	assert.Contains(t, string(allLogs), "passed")

	// The per-scenario file lands in passed/.
	perScenario, err := os.ReadFile(filepath.Join(logger.GetBaseDir(), "passed", "Login_Valid_credentials.log"))
	require.NoError(t, err)
	assert.Contains(t, string(perScenario), "Login :: Valid credentials")

	// The raw sink preserves the wire shape.
	rawFile, err := os.Open(filepath.Join(logger.GetBaseDir(), "raw_messages.ndjson"))
	require.NoError(t, err)
	defer rawFile.Close()
	scanner := bufio.NewScanner(rawFile)
	require.True(t, scanner.Scan())
	var decoded types.ScenarioResult
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
	assert.Equal(t, "item-1", decoded.WorkItemID)
}

func TestFailedScenarioLandsInFailedDir(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-3")
	require.NoError(t, err)

	res := passedResult("Login", "Wrong password")
	res.Status = types.ScenarioStatusFailed
	res.Error = "expected error banner"
	require.NoError(t, logger.LogScenarioResult(res, "run-3"))
	require.NoError(t, logger.Complete("run-3"))

	content, err := os.ReadFile(filepath.Join(logger.GetFailedDir(), "Login_Wrong_password.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "expected error banner")
}

func TestAggregatedResultListsIterations(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-4")
	require.NoError(t, err)

	res := &types.ScenarioResult{
		FeatureName:     "Search",
		ScenarioName:    "Find by keyword",
		Status:          types.ScenarioStatusFailed,
		Error:           "1 of 2 iterations failed (2)",
		TotalIterations: 2,
		Aggregated:      true,
		Iterations: []types.IterationResult{
			{Iteration: 1, Status: types.ScenarioStatusPassed},
			{Iteration: 2, Status: types.ScenarioStatusFailed, Error: "no results"},
		},
	}
	require.NoError(t, logger.LogScenarioResult(res, "run-4"))
	require.NoError(t, logger.Complete("run-4"))

	content, err := os.ReadFile(filepath.Join(logger.GetFailedDir(), "Search_Find_by_keyword.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "iteration 1: passed")
	assert.Contains(t, string(content), "iteration 2: failed")
	assert.Contains(t, string(content), "no results")
}

func TestLogSummary(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-5")
	require.NoError(t, err)

	require.NoError(t, logger.LogSummary("9/9 items completed, 3 scenarios passed\n", "run-5"))
	require.NoError(t, logger.Complete("run-5"))

	content, err := os.ReadFile(logger.GetSummaryFile())
	require.NoError(t, err)
	assert.Contains(t, string(content), "9/9 items completed")
}

func TestAsyncFileWritesEverythingBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "async.log")
	af, err := NewAsyncFile(path)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, af.Write([]byte("line\n")))
	}
	require.NoError(t, af.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, content, 200*5)

	// Writes after close are rejected.
	require.Error(t, af.Write([]byte("late")))
}
