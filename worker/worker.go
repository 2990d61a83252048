// Package worker implements the child process side of the pool: a long-lived
// loop that announces readiness, lazily initializes its test-execution engine
// once, and executes scenarios delivered over stdin until told to terminate.
package worker

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gherkit/gherkit/ipc"
	"github.com/gherkit/gherkit/types"
)

// Config configures a worker process.
type Config struct {
	ID     int
	Engine Engine
	Log    log.Logger

	// Input carries messages from the supervisor, Output carries messages
	// back. In production these are stdin and stdout.
	Input  io.Reader
	Output io.Writer

	// RestartAfter recycles the engine's stateful sub-resources after this
	// many executed items. Zero disables restarts.
	RestartAfter int

	// ConsoleTailBytes bounds the per-scenario console capture.
	ConsoleTailBytes int
}

// Worker sequences the engine for one process. It is driven by Run and owns
// all its state; nothing here is shared across goroutines except the engine
// init handshake.
type Worker struct {
	cfg    Config
	log    log.Logger
	reader *ipc.Reader
	writer *ipc.Writer

	initDone chan struct{}
	initErr  error

	lastConfig        *ipc.RunConfig
	itemsSinceRestart int
	itemsExecuted     int
}

// New creates a worker from its config.
func New(cfg Config) (*Worker, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("worker requires an engine")
	}
	if cfg.Input == nil || cfg.Output == nil {
		return nil, fmt.Errorf("worker requires input and output streams")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Worker{
		cfg:      cfg,
		log:      cfg.Log.New("workerId", cfg.ID),
		reader:   ipc.NewReader(cfg.Input),
		writer:   ipc.NewWriter(cfg.Output),
		initDone: make(chan struct{}),
	}, nil
}

// Run announces readiness, kicks off engine initialization in the background,
// and processes messages until terminate or input close. Readiness is
// announced before any heavy loading so pool startup latency stays decoupled
// from engine cost.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.writer.Write(ipc.Message{Type: ipc.MessageReady, WorkerID: w.cfg.ID}); err != nil {
		return fmt.Errorf("announcing ready: %w", err)
	}

	go w.initEngine(ctx)

	for {
		msg, err := w.reader.Next()
		if err != nil {
			if err == io.EOF {
				// Supervisor closed our stdin; treat like terminate.
				w.log.Debug("Input closed, shutting down")
				w.close()
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		switch msg.Type {
		case ipc.MessageExecute:
			res := w.execute(ctx, &msg)
			if err := w.writer.Write(ipc.NewResultMessage(msg.ScenarioID, res)); err != nil {
				return fmt.Errorf("sending result: %w", err)
			}
		case ipc.MessageTerminate:
			w.log.Debug("Terminate received", "itemsExecuted", w.itemsExecuted)
			w.close()
			return nil
		default:
			w.log.Warn("Ignoring unexpected message", "type", msg.Type)
		}
	}
}

// initEngine performs the one-time heavy load in the background.
func (w *Worker) initEngine(ctx context.Context) {
	defer close(w.initDone)
	start := time.Now()
	if err := w.cfg.Engine.Init(ctx); err != nil {
		w.initErr = err
		w.log.Error("Engine initialization failed", "err", err)
		w.advise("error", fmt.Sprintf("engine initialization failed: %v", err))
		return
	}
	w.log.Debug("Engine initialized", "duration", time.Since(start).Truncate(time.Millisecond))
}

// execute runs one item through the engine. Whatever goes wrong, it returns a
// result: step failures, engine errors and panics all become failed results
// so the supervisor always hears back unless the process itself dies.
func (w *Worker) execute(ctx context.Context, msg *ipc.Message) (res *types.ScenarioResult) {
	start := time.Now()
	if msg.Feature == nil || msg.Scenario == nil {
		return &types.ScenarioResult{
			WorkItemID: msg.ScenarioID,
			Status:     types.ScenarioStatusFailed,
			Error:      "malformed execute message: missing feature or scenario",
		}
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Panic during scenario execution", "scenario", msg.Scenario.Name, "panic", r)
			res = w.failedResult(msg, start, fmt.Sprintf("panic: %v", r), string(debug.Stack()))
		}
	}()

	<-w.initDone
	if w.initErr != nil {
		return w.failedResult(msg, start, fmt.Sprintf("engine initialization failed: %v", w.initErr), "")
	}

	if err := w.refreshConfig(msg.Config); err != nil {
		return w.failedResult(msg, start, fmt.Sprintf("configuring engine: %v", err), "")
	}
	if err := w.hygiene(ctx); err != nil {
		return w.failedResult(msg, start, fmt.Sprintf("resetting engine state: %v", err), "")
	}

	console := newConsoleBuffer(w.cfg.ConsoleTailBytes)
	scenario := InterpolateScenario(msg.Scenario, msg.ExampleHeaders, msg.ExampleRow)

	req := &Request{
		Feature:         msg.Feature,
		Scenario:        scenario,
		ExampleHeaders:  msg.ExampleHeaders,
		ExampleRow:      msg.ExampleRow,
		IterationNumber: msg.IterationNumber,
		TotalIterations: msg.TotalIterations,
		ResultsDir:      msg.ResultsDir,
		Console:         console,
	}

	res, err := w.cfg.Engine.Execute(ctx, req)
	w.itemsExecuted++
	w.itemsSinceRestart++
	if err != nil {
		return w.failedResult(msg, start, fmt.Sprintf("engine execution error: %v", err), "")
	}

	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	w.finishResult(res, msg, console)
	return res
}

// refreshConfig reconfigures the engine only when the run config actually
// changed since the previous item.
func (w *Worker) refreshConfig(cfg *ipc.RunConfig) error {
	if cfg == nil {
		return nil
	}
	if w.lastConfig != nil && cfg.Equal(w.lastConfig) {
		return nil
	}
	if err := w.cfg.Engine.Configure(*cfg); err != nil {
		return err
	}
	w.lastConfig = cfg
	return nil
}

// hygiene clears engine state between items, or recycles the engine outright
// once the restart threshold is hit.
func (w *Worker) hygiene(ctx context.Context) error {
	if w.itemsSinceRestart == 0 {
		return nil
	}
	if w.cfg.RestartAfter > 0 && w.itemsSinceRestart >= w.cfg.RestartAfter {
		w.log.Info("Restarting engine", "itemsSinceRestart", w.itemsSinceRestart)
		if err := w.cfg.Engine.Restart(ctx); err != nil {
			return err
		}
		w.itemsSinceRestart = 0
		return nil
	}
	return w.cfg.Engine.ResetSession(ctx)
}

// finishResult stamps the envelope fields the supervisor expects on every
// result, echoing the iteration metadata of the request.
func (w *Worker) finishResult(res *types.ScenarioResult, msg *ipc.Message, console *consoleBuffer) {
	res.WorkItemID = msg.ScenarioID
	if res.FeatureName == "" {
		res.FeatureName = msg.Feature.Name
	}
	if res.ScenarioName == "" {
		res.ScenarioName = msg.Scenario.Name
	}
	res.Iteration = msg.IterationNumber
	res.TotalIterations = msg.TotalIterations
	res.IterationData = IterationData(msg.ExampleHeaders, msg.ExampleRow)
	res.Console = console.String()
	if console.Truncated() {
		res.Console = "[console output truncated]\n" + res.Console
	}
	if res.Artifacts.Empty() && msg.ResultsDir != "" {
		prefix := fmt.Sprintf("%s_w%d_", sanitizeName(msg.Scenario.Name), w.cfg.ID)
		if artifacts, err := CollectArtifacts(msg.ResultsDir, prefix); err == nil {
			res.Artifacts = artifacts
		} else {
			w.log.Warn("Collecting artifacts failed", "err", err)
		}
	}
}

func (w *Worker) failedResult(msg *ipc.Message, start time.Time, errText, stack string) *types.ScenarioResult {
	return &types.ScenarioResult{
		WorkItemID:      msg.ScenarioID,
		FeatureName:     msg.Feature.Name,
		ScenarioName:    msg.Scenario.Name,
		Status:          types.ScenarioStatusFailed,
		Duration:        time.Since(start),
		Error:           errText,
		StackTrace:      stack,
		Iteration:       msg.IterationNumber,
		TotalIterations: msg.TotalIterations,
		IterationData:   IterationData(msg.ExampleHeaders, msg.ExampleRow),
	}
}

// advise sends a non-blocking advisory log message to the supervisor. Send
// failures are ignored; these messages carry no correctness weight.
func (w *Worker) advise(level, text string) {
	_ = w.writer.Write(ipc.Message{Type: ipc.MessageLog, WorkerID: w.cfg.ID, Level: level, Text: text})
}

func (w *Worker) close() {
	if err := w.cfg.Engine.Close(); err != nil {
		w.log.Warn("Engine close failed", "err", err)
	}
}
