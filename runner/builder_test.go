package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/types"
)

func TestBuildWorkItemsPlainScenario(t *testing.T) {
	features := []types.Feature{{
		Name: "Login",
		Scenarios: []types.Scenario{{
			Name:  "Valid credentials",
			Steps: []types.Step{{Keyword: "When", Text: "the user logs in"}},
		}},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 1)
	require.NoError(t, ValidateWorkItems(items))

	item := items[0]
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Login", item.Feature.Name)
	assert.Equal(t, "Valid credentials", item.Scenario.Name)
	assert.False(t, item.DataDriven())
	assert.Zero(t, item.IterationNumber)
	assert.Zero(t, item.TotalIterations)
}

func TestBuildWorkItemsFoldsBackground(t *testing.T) {
	features := []types.Feature{{
		Name: "Checkout",
		Background: []types.Step{
			{Keyword: "Given", Text: "a signed-in user"},
			{Keyword: "And", Text: "an item in the cart"},
		},
		Scenarios: []types.Scenario{{
			Name:  "Pay by card",
			Steps: []types.Step{{Keyword: "When", Text: "the user pays"}},
		}},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 1)

	steps := items[0].Scenario.Steps
	require.Len(t, steps, 3)
	assert.Equal(t, "a signed-in user", steps[0].Text)
	assert.Equal(t, "an item in the cart", steps[1].Text)
	assert.Equal(t, "the user pays", steps[2].Text)

	// The source feature must not be mutated.
	assert.Len(t, features[0].Scenarios[0].Steps, 1)
}

func TestBuildWorkItemsExpandsExamples(t *testing.T) {
	features := []types.Feature{{
		Name: "Search",
		Scenarios: []types.Scenario{{
			Name:  "Find by keyword",
			Steps: []types.Step{{Keyword: "When", Text: "searching for <term>"}},
			Examples: &types.ExamplesTable{
				Headers: []string{"term", "hits"},
				Rows: [][]string{
					{"apples", "12"},
					{"pears", "3"},
					{"quinces", "0"},
				},
			},
		}},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 3)
	require.NoError(t, ValidateWorkItems(items))

	for i, item := range items {
		assert.Equal(t, i+1, item.IterationNumber)
		assert.Equal(t, 3, item.TotalIterations)
		assert.Equal(t, []string{"term", "hits"}, item.ExampleHeaders)
		assert.True(t, item.DataDriven())
		assert.Equal(t, items[0].AggregateKey(), item.AggregateKey())
	}
	assert.Equal(t, []string{"pears", "3"}, items[1].ExampleRow)
}

func TestBuildWorkItemsZeroRowExamplesFallsBack(t *testing.T) {
	features := []types.Feature{{
		Name: "Export",
		Scenarios: []types.Scenario{{
			Name:     "Empty table",
			Steps:    []types.Step{{Keyword: "When", Text: "exporting"}},
			Examples: &types.ExamplesTable{Headers: []string{"format"}},
		}},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 1)
	assert.False(t, items[0].DataDriven())
	assert.Zero(t, items[0].TotalIterations)
}

func TestBuildWorkItemsSkipsDisabled(t *testing.T) {
	features := []types.Feature{{
		Name: "Admin",
		Scenarios: []types.Scenario{
			{Name: "Enabled one", Steps: []types.Step{{Keyword: "When", Text: "x"}}},
			{Name: "Disabled one", Tags: []string{"@disabled"}, Steps: []types.Step{{Keyword: "When", Text: "y"}}},
		},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 1)
	assert.Equal(t, "Enabled one", items[0].Scenario.Name)
}

func TestBuildWorkItemsDisabledFeatureEnabledScenario(t *testing.T) {
	features := []types.Feature{{
		Name: "Legacy",
		Tags: []string{"@disabled"},
		Scenarios: []types.Scenario{
			{Name: "Still off", Steps: []types.Step{{Keyword: "When", Text: "x"}}},
			{Name: "Opted back in", Tags: []string{"@enabled"}, Steps: []types.Step{{Keyword: "When", Text: "y"}}},
		},
	}}

	items := BuildWorkItems(features)
	require.Len(t, items, 1)
	assert.Equal(t, "Opted back in", items[0].Scenario.Name)
}

func TestBuildWorkItemsOrderIsStable(t *testing.T) {
	features := []types.Feature{
		{
			Name: "A",
			Scenarios: []types.Scenario{
				{Name: "first", Steps: []types.Step{{Keyword: "When", Text: "x"}}},
				{
					Name:  "second",
					Steps: []types.Step{{Keyword: "When", Text: "<v>"}},
					Examples: &types.ExamplesTable{
						Headers: []string{"v"},
						Rows:    [][]string{{"1"}, {"2"}},
					},
				},
			},
		},
		{
			Name:      "B",
			Scenarios: []types.Scenario{{Name: "third", Steps: []types.Step{{Keyword: "When", Text: "x"}}}},
		},
	}

	items := BuildWorkItems(features)
	require.Len(t, items, 4)

	var order []string
	for _, item := range items {
		order = append(order, itemName(&item))
	}
	assert.Equal(t, []string{
		"A::first",
		"A::second [1/2]",
		"A::second [2/2]",
		"B::third",
	}, order)
}
