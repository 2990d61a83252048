// Package ipc defines the message contracts exchanged between the process
// pool supervisor and its worker processes, and a line-delimited JSON codec
// for carrying them over the worker's stdin/stdout pipes.
package ipc

import (
	"time"

	"github.com/gherkit/gherkit/types"
)

// MessageType discriminates the messages on the supervisor<->worker channel.
type MessageType string

const (
	// Supervisor -> worker.
	MessageExecute   MessageType = "execute"
	MessageTerminate MessageType = "terminate"

	// Worker -> supervisor.
	MessageReady  MessageType = "ready"
	MessageResult MessageType = "result"
	MessageLog    MessageType = "log"
)

// RunConfig carries per-run execution settings into the worker. It is sent
// with every execute message; the worker reconfigures its engine only when
// the config actually changed since the previous item.
type RunConfig struct {
	Project     string            `json:"project,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// Equal reports whether two run configs are identical.
func (c *RunConfig) Equal(other *RunConfig) bool {
	if other == nil {
		return false
	}
	if c.Project != other.Project || c.Environment != other.Environment {
		return false
	}
	if len(c.Options) != len(other.Options) {
		return false
	}
	for k, v := range c.Options {
		if other.Options[k] != v {
			return false
		}
	}
	return true
}

// Message is the wire envelope. It is a flat union in the style of
// test2json's TestEvent: Type selects which fields are meaningful, unrelated
// fields are omitted from the encoding. Result messages deliberately echo the
// iteration fields of the originating execute message so that they are
// self-describing without supervisor-side lookup.
type Message struct {
	Type MessageType `json:"type"`

	// ready
	WorkerID int `json:"workerId,omitempty"`

	// execute
	ScenarioID      string          `json:"scenarioId,omitempty"`
	Feature         *types.Feature  `json:"feature,omitempty"`
	Scenario        *types.Scenario `json:"scenario,omitempty"`
	Config          *RunConfig      `json:"config,omitempty"`
	ExampleHeaders  []string        `json:"exampleHeaders,omitempty"`
	ExampleRow      []string        `json:"exampleRow,omitempty"`
	IterationNumber int             `json:"iterationNumber,omitempty"`
	TotalIterations int             `json:"totalIterations,omitempty"`
	ResultsDir      string          `json:"testResultsDir,omitempty"`

	// result
	Status        types.ScenarioStatus `json:"status,omitempty"`
	DurationMS    int64                `json:"duration,omitempty"`
	Error         string               `json:"error,omitempty"`
	StackTrace    string               `json:"stackTrace,omitempty"`
	Steps         []types.StepResult   `json:"steps,omitempty"`
	Artifacts     *types.Artifacts     `json:"artifacts,omitempty"`
	Iteration     int                  `json:"iteration,omitempty"`
	IterationData map[string]string    `json:"iterationData,omitempty"`
	Console       string               `json:"console,omitempty"`

	// log
	Level string `json:"level,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Duration converts the millisecond wire duration back to a time.Duration.
func (m *Message) Duration() time.Duration {
	return time.Duration(m.DurationMS) * time.Millisecond
}

// NewExecuteMessage builds the execute envelope for a work item.
func NewExecuteMessage(item *types.WorkItem, cfg RunConfig, resultsDir string) Message {
	feature := item.Feature
	scenario := item.Scenario
	return Message{
		Type:            MessageExecute,
		ScenarioID:      item.ID,
		Feature:         &feature,
		Scenario:        &scenario,
		Config:          &cfg,
		ExampleHeaders:  item.ExampleHeaders,
		ExampleRow:      item.ExampleRow,
		IterationNumber: item.IterationNumber,
		TotalIterations: item.TotalIterations,
		ResultsDir:      resultsDir,
	}
}

// NewResultMessage converts a scenario result into its wire form, echoing
// the iteration fields of the request.
func NewResultMessage(scenarioID string, res *types.ScenarioResult) Message {
	artifacts := res.Artifacts
	return Message{
		Type:          MessageResult,
		ScenarioID:    scenarioID,
		Status:        res.Status,
		DurationMS:    res.Duration.Milliseconds(),
		Error:         res.Error,
		StackTrace:    res.StackTrace,
		Steps:         res.Steps,
		Artifacts:     &artifacts,
		Iteration:     res.Iteration,
		IterationData: res.IterationData,
		Console:       res.Console,
	}
}
