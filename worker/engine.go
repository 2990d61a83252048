package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gherkit/gherkit/ipc"
	"github.com/gherkit/gherkit/types"
)

// Request carries one scenario execution into the engine. Steps are already
// interpolated from the example row; the raw row is included for engines that
// need the original values.
type Request struct {
	Feature         *types.Feature
	Scenario        *types.Scenario
	ExampleHeaders  []string
	ExampleRow      []string
	IterationNumber int
	TotalIterations int

	// ResultsDir is the shared artifact root. Engines must qualify filenames
	// with the scenario and worker id to avoid cross-process collisions.
	ResultsDir string

	// Console receives everything the scenario prints during execution.
	Console io.Writer
}

// Engine is the pluggable test-execution engine a worker process drives. The
// heavy lifting (browsers, step definitions, fixtures) lives behind this
// seam; the worker only sequences it.
type Engine interface {
	// Init performs the one-time heavy load. Called once per process, in the
	// background, right after the worker announced ready.
	Init(ctx context.Context) error

	// Configure applies per-run settings. Called before the first item and
	// again whenever the run config changes between items.
	Configure(cfg ipc.RunConfig) error

	// Execute runs one scenario and reports its outcome. Step failures are
	// returned inside the result; an error return means the engine itself
	// broke.
	Execute(ctx context.Context, req *Request) (*types.ScenarioResult, error)

	// ResetSession clears accumulated session state between items without a
	// full engine restart.
	ResetSession(ctx context.Context) error

	// Restart tears the stateful sub-resources down and reinitializes them.
	Restart(ctx context.Context) error

	// Close releases everything at worker shutdown.
	Close() error
}

// failureDirective marks a step that should fail during a dry run, for
// exercising the full failure path without a real engine.
const failureDirective = "force failure"

// DryRunEngine validates and "executes" scenarios without touching any real
// system under test. Every step passes unless its text carries a failure
// directive. It backs the CLI's dry-run mode and the worker tests.
type DryRunEngine struct {
	log log.Logger

	stepDelay time.Duration
	cfg       ipc.RunConfig
}

// NewDryRunEngine creates a dry-run engine. stepDelay adds artificial per-step
// latency so runs resemble real executions in timing-sensitive setups.
func NewDryRunEngine(logger log.Logger, stepDelay time.Duration) *DryRunEngine {
	return &DryRunEngine{log: logger, stepDelay: stepDelay}
}

func (e *DryRunEngine) Init(ctx context.Context) error { return nil }

func (e *DryRunEngine) Configure(cfg ipc.RunConfig) error {
	e.cfg = cfg
	e.log.Debug("Dry-run engine configured", "project", cfg.Project, "environment", cfg.Environment)
	return nil
}

func (e *DryRunEngine) Execute(ctx context.Context, req *Request) (*types.ScenarioResult, error) {
	if len(req.Scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", req.Scenario.Name)
	}

	res := &types.ScenarioResult{
		FeatureName:  req.Feature.Name,
		ScenarioName: req.Scenario.Name,
		Status:       types.ScenarioStatusPassed,
	}

	for _, step := range req.Scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.stepDelay > 0 {
			time.Sleep(e.stepDelay)
		}

		sr := types.StepResult{
			Keyword:  step.Keyword,
			Text:     step.Text,
			Status:   types.ScenarioStatusPassed,
			Duration: e.stepDelay,
		}
		if strings.HasPrefix(strings.ToLower(step.Text), failureDirective) {
			sr.Status = types.ScenarioStatusFailed
			sr.Error = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(step.Text), failureDirective))
			if sr.Error == "" {
				sr.Error = "forced failure"
			}
		}
		fmt.Fprintf(req.Console, "%s %s ... %s\n", step.Keyword, step.Text, sr.Status)

		res.Steps = append(res.Steps, sr)
		res.Duration += sr.Duration
		if sr.Status == types.ScenarioStatusFailed && res.Status != types.ScenarioStatusFailed {
			res.Status = types.ScenarioStatusFailed
			res.Error = sr.Error
		}
	}
	return res, nil
}

func (e *DryRunEngine) ResetSession(ctx context.Context) error { return nil }
func (e *DryRunEngine) Restart(ctx context.Context) error      { return nil }
func (e *DryRunEngine) Close() error                           { return nil }
