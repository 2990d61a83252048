package runner

import (
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gherkit/gherkit/types"
)

// Aggregator collapses per-iteration results of data-driven scenarios into a
// single logical outcome. Non-data-driven results pass straight through.
// It is driven from the pool's event loop and is not safe for concurrent use.
type Aggregator struct {
	log     log.Logger
	pending map[string]*pendingScenario
	emitted map[string]bool
}

type pendingScenario struct {
	featureName     string
	scenarioName    string
	totalIterations int
	iterations      []types.IterationResult
	duration        time.Duration
	artifacts       types.Artifacts
	seen            map[int]bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator(logger log.Logger) *Aggregator {
	return &Aggregator{
		log:     logger,
		pending: make(map[string]*pendingScenario),
		emitted: make(map[string]bool),
	}
}

// Add records one work item result. It returns the final logical scenario
// result when this addition completes the scenario, and nil while more
// iterations are still outstanding. Each logical scenario is emitted exactly
// once; late duplicates are dropped with a warning.
func (a *Aggregator) Add(res *types.ScenarioResult) *types.ScenarioResult {
	if res.TotalIterations == 0 {
		key := res.Key()
		if a.emitted[key] {
			a.log.Warn("Dropping duplicate scenario result", "scenario", key)
			return nil
		}
		a.emitted[key] = true
		return res
	}

	key := res.Key()
	if a.emitted[key] {
		a.log.Warn("Dropping iteration result for already emitted scenario",
			"scenario", key, "iteration", res.Iteration)
		return nil
	}

	p, ok := a.pending[key]
	if !ok {
		p = &pendingScenario{
			featureName:     res.FeatureName,
			scenarioName:    res.ScenarioName,
			totalIterations: res.TotalIterations,
			seen:            make(map[int]bool),
		}
		a.pending[key] = p
	}

	if p.seen[res.Iteration] {
		a.log.Warn("Dropping duplicate iteration result",
			"scenario", key, "iteration", res.Iteration)
		return nil
	}
	p.seen[res.Iteration] = true

	p.iterations = append(p.iterations, types.IterationResult{
		Iteration:  res.Iteration,
		Status:     res.Status,
		Duration:   res.Duration,
		Error:      res.Error,
		StackTrace: res.StackTrace,
		Data:       res.IterationData,
	})
	p.duration += res.Duration
	mergeArtifacts(&p.artifacts, &res.Artifacts)

	if len(p.iterations) < p.totalIterations {
		return nil
	}

	delete(a.pending, key)
	a.emitted[key] = true
	return a.synthesize(p)
}

// Pending reports how many data-driven scenarios still await iterations.
// A non-zero value after the run drained is a supervisor bug.
func (a *Aggregator) Pending() int {
	return len(a.pending)
}

func (a *Aggregator) synthesize(p *pendingScenario) *types.ScenarioResult {
	agg := &types.ScenarioResult{
		FeatureName:     p.featureName,
		ScenarioName:    p.scenarioName,
		Status:          types.ScenarioStatusPassed,
		Duration:        p.duration,
		Artifacts:       p.artifacts,
		TotalIterations: p.totalIterations,
		Aggregated:      true,
		Iterations:      p.iterations,
	}
	agg.SortIterations()
	for _, it := range agg.Iterations {
		if it.Status == types.ScenarioStatusFailed {
			agg.Status = types.ScenarioStatusFailed
			if agg.StackTrace == "" {
				agg.StackTrace = it.StackTrace
			}
		}
	}
	if agg.Status == types.ScenarioStatusFailed {
		agg.Error = agg.SummarizeFailures()
	}
	return agg
}

func mergeArtifacts(dst, src *types.Artifacts) {
	dst.Screenshots = append(dst.Screenshots, src.Screenshots...)
	dst.Videos = append(dst.Videos, src.Videos...)
	dst.Traces = append(dst.Traces, src.Traces...)
	dst.Logs = append(dst.Logs, src.Logs...)
}
