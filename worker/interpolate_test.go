package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gherkit/gherkit/types"
)

func TestInterpolate(t *testing.T) {
	headers := []string{"term", "hits"}
	row := []string{"apples", "12"}

	assert.Equal(t, "searching for apples yields 12 hits",
		Interpolate("searching for <term> yields <hits> hits", headers, row))
	assert.Equal(t, "no placeholders here",
		Interpolate("no placeholders here", headers, row))
	assert.Equal(t, "unknown <thing> stays",
		Interpolate("unknown <thing> stays", headers, row))
	assert.Equal(t, "plain", Interpolate("plain", nil, nil))
}

func TestInterpolateShortRow(t *testing.T) {
	// A row shorter than the headers interpolates what it can.
	assert.Equal(t, "a and <b>",
		Interpolate("<a> and <b>", []string{"a", "b"}, []string{"a"}))
}

func TestInterpolateScenario(t *testing.T) {
	scenario := &types.Scenario{
		Name: "Find by keyword",
		Steps: []types.Step{
			{Keyword: "When", Text: "searching for <term>", Arg: "payload with <term>"},
			{Keyword: "Then", Text: "results appear"},
		},
	}

	out := InterpolateScenario(scenario, []string{"term"}, []string{"pears"})
	assert.Equal(t, "searching for pears", out.Steps[0].Text)
	assert.Equal(t, "payload with pears", out.Steps[0].Arg)
	assert.Equal(t, "results appear", out.Steps[1].Text)

	// The original scenario is untouched.
	assert.Equal(t, "searching for <term>", scenario.Steps[0].Text)
}

func TestIterationData(t *testing.T) {
	data := IterationData([]string{"term", "hits"}, []string{"apples", "12"})
	assert.Equal(t, map[string]string{"term": "apples", "hits": "12"}, data)
	assert.Nil(t, IterationData(nil, nil))
}
