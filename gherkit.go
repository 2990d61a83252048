package gherkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gherkit/gherkit/exitcodes"
	"github.com/gherkit/gherkit/ipc"
	"github.com/gherkit/gherkit/logging"
	"github.com/gherkit/gherkit/metrics"
	"github.com/gherkit/gherkit/registry"
	"github.com/gherkit/gherkit/runner"
	"github.com/gherkit/gherkit/types"
)

// gherkit orchestrates scenario runs: it loads features, builds work items,
// drives them through the worker process pool and publishes the results.
type gherkit struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	scheduler RunScheduler
	result    *runner.RunResult
	tracer    trace.Tracer

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*gherkit, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating gherkit with config",
		"features", config.FeaturesPath,
		"profile", config.ProfilePath,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"maxWorkers", config.MaxWorkers)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		ProfileFile:    config.ProfilePath,
		DefaultTimeout: config.ScenarioTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	g := &gherkit{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		scheduler:        NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
		tracer:           otel.Tracer("gherkit"),
		shutdownCallback: shutdownCallback,
	}
	g.scheduler.RegisterCallback(g.run)

	config.Log.Info("gherkit.New: created registry and scheduler")
	return g, nil
}

// Start begins executing scenario runs, immediately and then at the
// configured interval.
func (g *gherkit) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			g.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	g.ctx = ctx

	if g.config.RunOnce {
		g.config.Log.Info("Starting gherkit in run-once mode")
	} else {
		g.config.Log.Info("Starting gherkit in continuous mode", "interval", g.config.RunInterval)
	}

	err := g.scheduler.Start(ctx)
	if err != nil {
		// For runtime errors (like configuration issues), return exit code 2
		g.config.Log.Error("Runtime error during run", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if g.config.RunOnce {
		g.config.Log.Info("Run completed, exiting (run-once mode)")

		// Check if any scenarios failed and return appropriate exit code
		if g.result != nil && g.result.Failed() {
			g.config.Log.Warn("Run-once completed with failures, returning exit code 1")
			return NewScenarioFailureError(summarizeRun(g.result))
		}

		// Only need to call this when we're in run-once mode and all scenarios passed
		go func() {
			g.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	g.config.Log.Debug("gherkit started successfully")
	return nil
}

// run executes one full run and processes the results
func (g *gherkit) run() error {
	g.config.Log.Info("Running all scenarios...")
	result, err := g.runScenarios(g.ctx)
	if err != nil {
		// This is a runtime error (not a scenario failure)
		g.config.Log.Error("Runtime error running scenarios", "error", err)
		return NewRuntimeError(err)
	}
	g.result = result

	g.printResultsTable(result)
	fmt.Println(summarizeRun(result))

	if err := g.writeRunLogs(result); err != nil {
		g.config.Log.Error("Failed to write run logs", "error", err)
	}

	metrics.RecordRun(
		result.RunID,
		runStatusLabel(result),
		result.Stats.Scenarios,
		result.Stats.ScenariosPassed,
		result.Stats.ScenariosFailed,
		result.Duration,
	)

	g.config.Log.Info("Run completed", "run_id", result.RunID, "failed", result.Failed())
	return nil
}

// runScenarios loads features, expands them into work items and executes
// them all on the pool.
func (g *gherkit) runScenarios(ctx context.Context) (*runner.RunResult, error) {
	runID := uuid.New().String()

	ctx, span := g.tracer.Start(ctx, "scenario run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	features, err := registry.LoadFeatures(g.config.FeaturesPath)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load features: %w", err)
	}
	features = g.registry.FilterFeatures(features)

	items := runner.BuildWorkItems(features)
	if err := runner.ValidateWorkItems(items); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("invalid work items: %w", err)
	}
	g.config.Log.Info("Built work items", "features", len(features), "items", len(items), "run_id", runID)

	pool, err := runner.NewPool(runner.PoolConfig{
		Log:     g.config.Log,
		RunID:   runID,
		Factory: g.processFactory(),
		MaxWorkers: func() int {
			if g.config.MaxWorkers > 0 {
				return g.config.MaxWorkers
			}
			return runtime.NumCPU()
		}(),
		RunConfig:       g.runConfig(),
		ResultsDir:      g.config.ResultsDir,
		ScenarioTimeout: g.scenarioTimeout(items),
		GlobalTimeout:   g.config.GlobalTimeout,
		StartupTimeout:  g.config.StartupTimeout,
		ShutdownTimeout: g.config.ShutdownTimeout,
		ErrorThreshold:  g.config.ErrorThreshold,
		Progress:        g.progressIndicator(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	result, err := pool.Execute(ctx, items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("run.scenarios", result.Stats.Scenarios),
		attribute.Int("run.failed", result.Stats.ScenariosFailed),
		attribute.Int("run.recycles", result.Stats.WorkerRecycles),
	)
	return result, nil
}

// processFactory builds the factory that re-executes this binary through the
// hidden worker subcommand.
func (g *gherkit) processFactory() runner.ProcessFactory {
	args := []string{"worker"}
	if g.config.RestartAfter > 0 {
		args = append(args, "--restart-after", strconv.Itoa(g.config.RestartAfter))
	}
	if g.config.StepDelay > 0 {
		args = append(args, "--step-delay", g.config.StepDelay.String())
	}
	return runner.NewExecProcessFactory(runner.ExecProcessConfig{
		Args: args,
		Log:  g.config.Log,
	})
}

func (g *gherkit) runConfig() ipc.RunConfig {
	return ipc.RunConfig{
		Project:     g.config.Project,
		Environment: g.config.Environment,
	}
}

// scenarioTimeout resolves the pool-wide scenario timeout. Profile overrides
// can raise it for slow-tagged scenarios in this run; the pool applies one
// stuck threshold, so the largest applicable timeout wins.
func (g *gherkit) scenarioTimeout(items []types.WorkItem) time.Duration {
	timeout := g.config.ScenarioTimeout
	for i := range items {
		if t := g.registry.TimeoutFor(&items[i].Feature, &items[i].Scenario); t > timeout {
			timeout = t
		}
	}
	return timeout
}

func (g *gherkit) progressIndicator() runner.ProgressIndicator {
	if !g.config.ShowProgress {
		return runner.NewNoOpProgressIndicator()
	}
	return runner.NewConsoleProgressIndicator(g.config.Log, g.config.ProgressInterval)
}

// writeRunLogs persists the run's results under the log directory.
func (g *gherkit) writeRunLogs(result *runner.RunResult) error {
	fileLogger, err := logging.NewFileLogger(g.config.LogDir, result.RunID)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}

	for _, scenario := range result.Scenarios {
		if err := fileLogger.LogScenarioResult(scenario, result.RunID); err != nil {
			g.config.Log.Error("Failed to log scenario result", "scenario", scenario.Key(), "error", err)
		}
	}
	if err := fileLogger.LogSummary(summarizeRun(result), result.RunID); err != nil {
		g.config.Log.Error("Failed to log run summary", "error", err)
	}
	if err := fileLogger.Complete(result.RunID); err != nil {
		return fmt.Errorf("failed to complete file logging: %w", err)
	}
	g.config.Log.Info("Run logs written", "dir", fileLogger.GetBaseDir())
	return nil
}

// Stop stops the gherkit service.
func (g *gherkit) Stop(ctx context.Context) error {
	g.config.Log.Info("Stopping gherkit")

	if g.scheduler.Stopped() {
		g.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := g.scheduler.Stop(); err != nil {
		return err
	}

	g.config.Log.Info("gherkit stopped successfully")
	return nil
}

// Stopped returns true if the gherkit service is stopped.
func (g *gherkit) Stopped() bool {
	return g.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (g *gherkit) WaitForShutdown(ctx context.Context) error {
	return g.scheduler.WaitForShutdown(ctx)
}

// Result returns the most recent run result.
func (g *gherkit) Result() *runner.RunResult {
	return g.result
}
