package ipc

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/types"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	item := &types.WorkItem{
		ID:              "Checkout::Discount codes",
		Feature:         types.Feature{Name: "Checkout"},
		Scenario:        types.Scenario{Name: "Discount codes", Steps: []types.Step{{Keyword: "Given", Text: "a cart"}}},
		ExampleHeaders:  []string{"code"},
		ExampleRow:      []string{"SAVE10"},
		IterationNumber: 1,
		TotalIterations: 2,
	}
	require.NoError(t, w.Write(Message{Type: MessageReady, WorkerID: 3}))
	require.NoError(t, w.Write(NewExecuteMessage(item, RunConfig{Project: "web"}, "/tmp/results")))

	r := NewReader(&buf)

	ready, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, MessageReady, ready.Type)
	assert.Equal(t, 3, ready.WorkerID)

	exec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, MessageExecute, exec.Type)
	assert.Equal(t, item.ID, exec.ScenarioID)
	require.NotNil(t, exec.Scenario)
	assert.Equal(t, "Discount codes", exec.Scenario.Name)
	assert.Equal(t, []string{"SAVE10"}, exec.ExampleRow)
	assert.Equal(t, 1, exec.IterationNumber)
	assert.Equal(t, 2, exec.TotalIterations)
	assert.Equal(t, "/tmp/results", exec.ResultsDir)
	require.NotNil(t, exec.Config)
	assert.Equal(t, "web", exec.Config.Project)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestResultMessageEchoesIteration(t *testing.T) {
	res := &types.ScenarioResult{
		Status:        types.ScenarioStatusFailed,
		Duration:      1500 * time.Millisecond,
		Error:         "step failed",
		Iteration:     2,
		IterationData: map[string]string{"code": "SAVE10"},
	}
	msg := NewResultMessage("Checkout::Discount codes", res)
	assert.Equal(t, MessageResult, msg.Type)
	assert.Equal(t, int64(1500), msg.DurationMS)
	assert.Equal(t, 1500*time.Millisecond, msg.Duration())
	assert.Equal(t, 2, msg.Iteration)
	assert.Equal(t, "SAVE10", msg.IterationData["code"])
}

func TestReaderSkipsBlankLines(t *testing.T) {
	r := NewReader(strings.NewReader("\n\n{\"type\":\"ready\",\"workerId\":1}\n"))
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, MessageReady, msg.Type)
}

func TestReaderRejectsUntypedMessage(t *testing.T) {
	r := NewReader(strings.NewReader("{\"workerId\":1}\n"))
	_, err := r.Next()
	assert.Error(t, err)
}

func TestRunConfigEqual(t *testing.T) {
	a := &RunConfig{Project: "web", Options: map[string]string{"browser": "chromium"}}
	b := &RunConfig{Project: "web", Options: map[string]string{"browser": "chromium"}}
	assert.True(t, a.Equal(b))

	b.Options["browser"] = "firefox"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
