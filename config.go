package gherkit

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gherkit/gherkit/flags"
)

// Config holds the application configuration
type Config struct {
	FeaturesPath string // Path to the parsed feature file
	ProfilePath  string // Optional run profile; empty means run everything
	Project      string // Forwarded to workers with each execute message
	Environment  string // Target environment name forwarded to workers

	MaxWorkers      int           // Worker process cap (0 = one per CPU)
	ScenarioTimeout time.Duration // Per-scenario stuck threshold
	GlobalTimeout   time.Duration // Bound on the whole run
	StartupTimeout  time.Duration // Bound on worker readiness
	ShutdownTimeout time.Duration // Bound on graceful worker exit
	ErrorThreshold  int           // Failed items before a worker is recycled
	RestartAfter    int           // Engine restarts inside a worker (0 = never)

	RunInterval time.Duration // Interval between runs
	RunOnce     bool          // Indicates if the service should exit after one run

	LogDir     string // Directory to store per-run logs
	ResultsDir string // Directory workers write artifacts into

	ShowProgress     bool          // Whether to show periodic progress updates during execution
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'

	StepDelay time.Duration // Artificial per-step delay for the dry-run engine

	Log log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, featuresPath string) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if featuresPath == "" {
		return nil, errors.New("feature file is required")
	}

	absFeaturesPath, err := filepath.Abs(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for feature file '%s': %w", featuresPath, err)
	}

	profilePath := ctx.String(flags.Profile.Name)
	if profilePath != "" {
		profilePath, err = filepath.Abs(profilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for run profile '%s': %w", profilePath, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	resultsDir := ctx.String(flags.ResultsDir.Name)
	if resultsDir == "" {
		resultsDir = "results"
	}
	resultsDir, err = filepath.Abs(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", resultsDir, err)
	}

	maxWorkers := ctx.Int(flags.MaxWorkers.Name)
	if maxWorkers < 0 {
		return nil, fmt.Errorf("max-workers must not be negative, got %d", maxWorkers)
	}

	return &Config{
		FeaturesPath:     absFeaturesPath,
		ProfilePath:      profilePath,
		Project:          ctx.String(flags.Project.Name),
		Environment:      ctx.String(flags.Environment.Name),
		MaxWorkers:       maxWorkers,
		ScenarioTimeout:  ctx.Duration(flags.ScenarioTimeout.Name),
		GlobalTimeout:    ctx.Duration(flags.GlobalTimeout.Name),
		StartupTimeout:   ctx.Duration(flags.StartupTimeout.Name),
		ShutdownTimeout:  ctx.Duration(flags.ShutdownTimeout.Name),
		ErrorThreshold:   ctx.Int(flags.ErrorThreshold.Name),
		RestartAfter:     ctx.Int(flags.RestartAfter.Name),
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		LogDir:           logDir,
		ResultsDir:       resultsDir,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		StepDelay:        ctx.Duration(flags.StepDelay.Name),
		Log:              log,
	}, nil
}
