package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/gherkit/gherkit/runner"
)

const EnvVarPrefix = "GHERKIT"

// prefixEnvVars derives the single environment variable backing a flag,
// e.g. "MAX_WORKERS" -> ["GHERKIT_MAX_WORKERS"].
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

// FlagNameToEnvVarName converts a CLI flag name to its environment variable
// name, e.g. "max-workers" -> "GHERKIT_MAX_WORKERS".
func FlagNameToEnvVarName(name string) string {
	return EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

var (
	// Required is enforced by CheckRequired rather than the flag itself so
	// that the hidden worker subcommand can run without it.
	Features = &cli.StringFlag{
		Name:    "features",
		Value:   "",
		EnvVars: prefixEnvVars("FEATURES"),
		Usage:   "Path to the parsed feature file (eg. 'features.json')",
	}
	Profile = &cli.StringFlag{
		Name:    "profile",
		Value:   "",
		EnvVars: prefixEnvVars("PROFILE"),
		Usage:   "Path to a run profile file (eg. 'smoke.yaml'). Omit to run everything.",
	}
	Project = &cli.StringFlag{
		Name:    "project",
		Value:   "",
		EnvVars: prefixEnvVars("PROJECT"),
		Usage:   "Project name forwarded to workers with each execute message",
	}
	Environment = &cli.StringFlag{
		Name:    "environment",
		Value:   "",
		EnvVars: prefixEnvVars("ENVIRONMENT"),
		Usage:   "Target environment name forwarded to workers (eg. 'staging')",
	}
	MaxWorkers = &cli.IntFlag{
		Name:    "max-workers",
		Value:   0,
		EnvVars: prefixEnvVars("MAX_WORKERS"),
		Usage:   "Maximum number of worker processes (0 = one per CPU)",
	}
	ScenarioTimeout = &cli.DurationFlag{
		Name:    "scenario-timeout",
		Value:   runner.DefaultScenarioTimeout,
		EnvVars: prefixEnvVars("SCENARIO_TIMEOUT"),
		Usage:   "Maximum time a worker may spend on a single scenario before being recycled",
	}
	GlobalTimeout = &cli.DurationFlag{
		Name:    "global-timeout",
		Value:   runner.DefaultGlobalTimeout,
		EnvVars: prefixEnvVars("GLOBAL_TIMEOUT"),
		Usage:   "Maximum time for the entire run",
	}
	StartupTimeout = &cli.DurationFlag{
		Name:    "startup-timeout",
		Value:   runner.DefaultStartupTimeout,
		EnvVars: prefixEnvVars("STARTUP_TIMEOUT"),
		Usage:   "Maximum time to wait for a worker process to signal readiness",
	}
	ShutdownTimeout = &cli.DurationFlag{
		Name:    "shutdown-timeout",
		Value:   runner.DefaultShutdownTimeout,
		EnvVars: prefixEnvVars("SHUTDOWN_TIMEOUT"),
		Usage:   "Maximum time to wait for workers to exit gracefully before killing them",
	}
	ErrorThreshold = &cli.IntFlag{
		Name:    "error-threshold",
		Value:   runner.DefaultErrorThreshold,
		EnvVars: prefixEnvVars("ERROR_THRESHOLD"),
		Usage:   "Number of failed items a worker may accumulate before being recycled",
	}
	RestartAfter = &cli.IntFlag{
		Name:    "restart-after",
		Value:   0,
		EnvVars: prefixEnvVars("RESTART_AFTER"),
		Usage:   "Restart a worker's engine after this many executed items (0 = never)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVars("LOGDIR"),
		Usage:   "Directory to store per-run log output",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "results",
		EnvVars: prefixEnvVars("RESULTS_DIR"),
		Usage:   "Directory workers write scenario artifacts into",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: prefixEnvVars("SHOW_PROGRESS"),
		Usage:   "Print periodic progress updates while scenarios run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   runner.DefaultProgressInterval,
		EnvVars: prefixEnvVars("PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error",
	}
	StepDelay = &cli.DurationFlag{
		Name:    "step-delay",
		Value:   0,
		EnvVars: prefixEnvVars("STEP_DELAY"),
		Usage:   "Artificial per-step delay for the built-in dry-run engine",
	}
)

var requiredFlags = []cli.Flag{
	Features,
}

var optionalFlags = []cli.Flag{
	Profile,
	Project,
	Environment,
	MaxWorkers,
	ScenarioTimeout,
	GlobalTimeout,
	StartupTimeout,
	ShutdownTimeout,
	ErrorThreshold,
	RestartAfter,
	RunInterval,
	LogDir,
	ResultsDir,
	ShowProgress,
	ProgressInterval,
	LogLevel,
	StepDelay,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
