package types

import "strings"

// Well-known scenario tags understood by the orchestrator. Everything else is
// passed through untouched for profile filtering and reporting.
const (
	TagDisabled = "@disabled"
	TagEnabled  = "@enabled"
)

// Feature is a parsed feature file. The orchestrator treats the payload as
// opaque apart from names, tags and the scenario list; parsing happens
// upstream.
type Feature struct {
	Name       string     `json:"name"`
	Path       string     `json:"path,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Background []Step     `json:"background,omitempty"`
	Scenarios  []Scenario `json:"scenarios"`
}

// Scenario is a single scenario or scenario outline. Outlines carry an
// Examples table; the work item builder expands them into one item per row.
type Scenario struct {
	Name     string         `json:"name"`
	Tags     []string       `json:"tags,omitempty"`
	Steps    []Step         `json:"steps"`
	Examples *ExamplesTable `json:"examples,omitempty"`
}

// Step is one Gherkin step. Text may contain <placeholder> tokens that are
// interpolated worker-side from the example row.
type Step struct {
	Keyword string `json:"keyword"`
	Text    string `json:"text"`
	Arg     string `json:"arg,omitempty"` // doc string or data table, opaque
}

// ExamplesTable holds resolved example rows. External data references are
// resolved to rows before the feature reaches the orchestrator.
type ExamplesTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// HasTag reports whether the scenario itself carries the given tag. Tags
// inherited from the feature are not considered; callers that want those
// should check the Feature as well.
func (s *Scenario) HasTag(tag string) bool {
	return containsTag(s.Tags, tag)
}

// Disabled reports whether the scenario is explicitly switched off. A
// disabled scenario produces no work items and does not count toward the run
// total.
func (s *Scenario) Disabled() bool {
	return s.HasTag(TagDisabled)
}

// DataDriven reports whether the scenario is an outline with at least one
// resolved example row.
func (s *Scenario) DataDriven() bool {
	return s.Examples != nil && len(s.Examples.Rows) > 0
}

// HasTag reports whether the feature carries the given tag.
func (f *Feature) HasTag(tag string) bool {
	return containsTag(f.Tags, tag)
}

func containsTag(tags []string, tag string) bool {
	want := normalizeTag(tag)
	for _, t := range tags {
		if normalizeTag(t) == want {
			return true
		}
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "@")
}
