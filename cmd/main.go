package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	gherkit "github.com/gherkit/gherkit"
	"github.com/gherkit/gherkit/flags"
	"github.com/gherkit/gherkit/runner"
	"github.com/gherkit/gherkit/service"
	"github.com/gherkit/gherkit/worker"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "gherkit"
	app.Usage = "Parallel BDD scenario runner"
	app.Description = "gherkit distributes scenarios across a pool of worker processes"
	app.Flags = flags.Flags
	app.Action = run
	app.Commands = []*cli.Command{workerCommand}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if gherkit.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if gherkit.IsScenarioFailureError(err) {
				// For scenario failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// run is the orchestrator entrypoint.
func run(ctx *cli.Context) error {
	logger, err := setupLogger(ctx)
	if err != nil {
		return gherkit.NewRuntimeError(fmt.Errorf("failed to set up logging: %w", err))
	}

	cfg, err := gherkit.NewConfig(ctx, logger, ctx.String(flags.Features.Name))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return gherkit.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	// Start the healthz and metrics servers. Only the orchestrator binds
	// them; worker processes go through workerCommand instead.
	svc := service.New()
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	appCtx, cancel := context.WithCancelCause(ctx.Context)
	defer cancel(nil)

	g, err := gherkit.New(appCtx, cfg, Version, cancel)
	if err != nil {
		return gherkit.NewRuntimeError(fmt.Errorf("failed to create gherkit: %w", err))
	}

	if err := g.Start(appCtx); err != nil {
		return err
	}

	// Block until the run-once shutdown callback fires, the scheduler is
	// asked to stop, or a signal arrives.
	<-appCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := g.Stop(stopCtx); err != nil {
		logger.Error("Error stopping gherkit", "error", err)
	}
	if err := g.WaitForShutdown(stopCtx); err != nil {
		return gherkit.NewRuntimeError(fmt.Errorf("shutdown did not complete: %w", err))
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// workerCommand is the hidden entrypoint the pool re-executes this binary
// through. It speaks the IPC protocol on stdin/stdout, so all logging must
// go to stderr.
var workerCommand = &cli.Command{
	Name:   "worker",
	Usage:  "Run as a pool worker process (internal)",
	Hidden: true,
	Flags: []cli.Flag{
		flags.RestartAfter,
		flags.StepDelay,
		flags.LogLevel,
	},
	Action: runWorker,
}

func runWorker(ctx *cli.Context) error {
	logger, err := setupLogger(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	workerID := 0
	if v := os.Getenv(runner.WorkerIDEnvVar); v != "" {
		workerID, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", runner.WorkerIDEnvVar, v, err)
		}
	}
	logger = logger.New("workerId", workerID)

	engine := worker.NewDryRunEngine(logger, ctx.Duration(flags.StepDelay.Name))
	w, err := worker.New(worker.Config{
		ID:           workerID,
		Engine:       engine,
		Log:          logger,
		Input:        os.Stdin,
		Output:       os.Stdout,
		RestartAfter: ctx.Int(flags.RestartAfter.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	return w.Run(ctx.Context)
}

// setupLogger builds the process logger. Log output always goes to stderr;
// stdout is reserved for the results table in the orchestrator and for IPC
// messages in workers.
func setupLogger(ctx *cli.Context) (log.Logger, error) {
	lvl, err := log.LvlFromString(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false))
	log.SetDefault(logger)
	return logger, nil
}
