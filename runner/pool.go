package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/gherkit/gherkit/ipc"
	"github.com/gherkit/gherkit/metrics"
	"github.com/gherkit/gherkit/types"
)

// PoolConfig configures a worker pool run.
type PoolConfig struct {
	Log     log.Logger
	RunID   string
	Factory ProcessFactory

	// MaxWorkers caps the pool size. The actual size is min(MaxWorkers,
	// number of work items), capped at MaxReasonableWorkers.
	MaxWorkers int

	// RunConfig is forwarded to workers with every execute message.
	RunConfig ipc.RunConfig

	// ResultsDir is the shared directory workers write artifacts into.
	ResultsDir string

	ScenarioTimeout time.Duration
	GlobalTimeout   time.Duration
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration
	ErrorThreshold  int

	Progress ProgressIndicator
}

// RunStats summarizes a pool run. Counters are in work items except for the
// scenario fields, which count logical scenarios after aggregation.
type RunStats struct {
	TotalItems     int
	CompletedItems int
	LostItems      int
	AbandonedItems int
	WorkerRecycles int

	Scenarios        int
	ScenariosPassed  int
	ScenariosFailed  int
	ScenariosSkipped int
}

// RunResult is the outcome of one pool run.
type RunResult struct {
	RunID string

	// Results holds one entry per completed work item, keyed by item ID.
	Results map[string]*types.ScenarioResult

	// Scenarios holds the logical per-scenario outcomes in completion order,
	// with data-driven iterations already collapsed.
	Scenarios []*types.ScenarioResult

	Stats    RunStats
	Duration time.Duration
}

// Failed reports whether any logical scenario failed.
func (r *RunResult) Failed() bool {
	return r.Stats.ScenariosFailed > 0
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventDisconnect
	eventWorkerUp
	eventWorkerFailed
)

type poolEvent struct {
	kind     eventKind
	workerID int
	msg      ipc.Message
	err      error
	worker   *Worker
}

// Pool owns a set of worker processes and drives a work queue to completion.
// All mutable state is confined to the event loop inside Execute; worker
// message pumps and replacement spawns communicate with it over the events
// channel.
type Pool struct {
	cfg      PoolConfig
	log      log.Logger
	progress ProgressIndicator

	events chan poolEvent
	done   chan struct{}

	workers      map[int]*Worker
	nextWorkerID int

	queue     []*types.WorkItem
	results   map[string]*types.ScenarioResult
	scenarios []*types.ScenarioResult
	completed int
	total     int

	aggregator *Aggregator
	stats      RunStats
}

// NewPool creates a pool. Zero timeouts and thresholds take the package
// defaults.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("pool requires a process factory")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxWorkers > MaxReasonableWorkers {
		cfg.MaxWorkers = MaxReasonableWorkers
	}
	if cfg.ScenarioTimeout <= 0 {
		cfg.ScenarioTimeout = DefaultScenarioTimeout
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = DefaultGlobalTimeout
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultErrorThreshold
	}

	return &Pool{
		cfg:        cfg,
		log:        cfg.Log.New("runId", cfg.RunID),
		progress:   cfg.Progress,
		events:     make(chan poolEvent, 256),
		done:       make(chan struct{}),
		workers:    make(map[int]*Worker),
		results:    make(map[string]*types.ScenarioResult),
		aggregator: NewAggregator(cfg.Log),
	}, nil
}

// Execute runs all work items to completion and returns the collected
// results. It blocks until every item is accounted for, the context is
// cancelled, or the global timeout fires. Workers are always torn down
// before it returns.
func (p *Pool) Execute(ctx context.Context, items []types.WorkItem) (*RunResult, error) {
	start := time.Now()

	if err := ValidateWorkItems(items); err != nil {
		return nil, err
	}

	p.total = len(items)
	if p.total == 0 {
		p.log.Warn("No work items to execute")
		return p.buildResult(start), nil
	}

	p.queue = make([]*types.WorkItem, p.total)
	for i := range items {
		p.queue[i] = &items[i]
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.GlobalTimeout)
	defer cancel()

	workersNeeded := min(p.cfg.MaxWorkers, p.total)
	p.log.Info("Starting worker pool", "workers", workersNeeded, "workItems", p.total)

	if err := p.startInitialWorkers(runCtx, workersNeeded); err != nil {
		return nil, err
	}
	defer close(p.done)

	p.progress.StartRun(p.cfg.RunID, p.total)
	metrics.SetActiveWorkers(p.cfg.RunID, len(p.workers))

	healthTicker := time.NewTicker(p.cfg.HealthInterval)
	defer healthTicker.Stop()

	p.dispatchIdle(runCtx, time.Now())

	var runErr error
loop:
	for p.completed < p.total {
		select {
		case <-runCtx.Done():
			runErr = fmt.Errorf("run aborted with %d/%d items completed: %w",
				p.completed, p.total, runCtx.Err())
			break loop
		case <-healthTicker.C:
			p.checkHealth(runCtx, time.Now())
		case ev := <-p.events:
			p.handleEvent(runCtx, ev)
		}
	}

	p.shutdown()
	p.progress.CompleteRun(p.cfg.RunID)

	if pending := p.aggregator.Pending(); pending > 0 && runErr == nil {
		p.log.Error("Run drained with incomplete scenario aggregations", "pending", pending)
	}

	result := p.buildResult(start)
	p.log.Info("Run finished",
		"completed", result.Stats.CompletedItems,
		"total", result.Stats.TotalItems,
		"passed", result.Stats.ScenariosPassed,
		"failed", result.Stats.ScenariosFailed,
		"lost", result.Stats.LostItems,
		"recycles", result.Stats.WorkerRecycles,
		"duration", result.Duration.Truncate(time.Millisecond))
	return result, runErr
}

// startInitialWorkers launches the initial worker set concurrently and waits
// for every one to become ready. A worker that is not ready never receives
// work, so a single startup failure fails the run.
func (p *Pool) startInitialWorkers(ctx context.Context, n int) error {
	var (
		mu      sync.Mutex
		started []*Worker
	)

	g := new(errgroup.Group)
	for i := 0; i < n; i++ {
		id := p.nextWorkerID
		p.nextWorkerID++
		g.Go(func() error {
			w, err := p.startWorker(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			started = append(started, w)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, w := range started {
			w.Process.Kill()
		}
		return fmt.Errorf("starting worker pool: %w", err)
	}

	for _, w := range started {
		p.workers[w.ID] = w
		go p.pump(w.ID, w.Process)
	}
	return nil
}

// startWorker spawns one worker process and blocks until it announces ready
// or the startup timeout elapses.
func (p *Pool) startWorker(ctx context.Context, id int) (*Worker, error) {
	proc := p.cfg.Factory.NewProcess(id)
	if err := proc.Start(ctx); err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}

	type recv struct {
		msg ipc.Message
		err error
	}
	ch := make(chan recv, 1)
	go func() {
		for {
			msg, err := proc.Receive()
			if err != nil {
				ch <- recv{err: err}
				return
			}
			if msg.Type == ipc.MessageLog {
				p.workerLog(id, &msg)
				continue
			}
			ch <- recv{msg: msg}
			return
		}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			proc.Kill()
			return nil, fmt.Errorf("worker %d exited before ready: %w", id, r.err)
		}
		if r.msg.Type != ipc.MessageReady {
			proc.Kill()
			return nil, fmt.Errorf("worker %d sent %s before ready", id, r.msg.Type)
		}
	case <-time.After(p.cfg.StartupTimeout):
		proc.Kill()
		return nil, fmt.Errorf("worker %d not ready within %s", id, p.cfg.StartupTimeout)
	}

	p.log.Debug("Worker ready", "workerId", id)
	return &Worker{ID: id, Process: proc}, nil
}

// pump forwards every message from one worker process into the event loop,
// then reports the disconnect. One pump goroutine exists per live process.
func (p *Pool) pump(workerID int, proc WorkerProcess) {
	for {
		msg, err := proc.Receive()
		if err != nil {
			p.emit(poolEvent{kind: eventDisconnect, workerID: workerID, err: err})
			return
		}
		p.emit(poolEvent{kind: eventMessage, workerID: workerID, msg: msg})
	}
}

func (p *Pool) emit(ev poolEvent) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *Pool) handleEvent(ctx context.Context, ev poolEvent) {
	switch ev.kind {
	case eventMessage:
		switch ev.msg.Type {
		case ipc.MessageResult:
			p.handleResult(ctx, ev.workerID, &ev.msg)
		case ipc.MessageLog:
			p.workerLog(ev.workerID, &ev.msg)
		case ipc.MessageReady:
			p.log.Debug("Ignoring duplicate ready", "workerId", ev.workerID)
		default:
			p.log.Warn("Unexpected message from worker", "workerId", ev.workerID, "type", ev.msg.Type)
		}
	case eventDisconnect:
		p.handleDisconnect(ctx, ev.workerID, ev.err)
	case eventWorkerUp:
		w := ev.worker
		p.workers[w.ID] = w
		go p.pump(w.ID, w.Process)
		metrics.SetActiveWorkers(p.cfg.RunID, len(p.workers))
		p.log.Info("Replacement worker ready", "workerId", w.ID)
		p.dispatch(ctx, w, time.Now())
	case eventWorkerFailed:
		p.log.Error("Replacement worker failed to start", "err", ev.err)
		metrics.RecordErrorDetails("worker_start", ev.err)
		// An empty pool cannot drain the queue; keep trying while items
		// remain. The global timeout still bounds the run.
		if len(p.workers) == 0 && p.completed < p.total {
			p.spawnReplacement(ctx)
		}
	}
}

// handleResult processes a result message from a worker and frees it for the
// next item.
func (p *Pool) handleResult(ctx context.Context, workerID int, msg *ipc.Message) {
	w, ok := p.workers[workerID]
	if !ok || !w.Busy {
		p.log.Warn("Result from unknown or idle worker", "workerId", workerID, "scenarioId", msg.ScenarioID)
		return
	}
	item := w.CurrentWork
	if msg.ScenarioID != item.ID {
		p.log.Warn("Result does not match assigned work item",
			"workerId", workerID, "got", msg.ScenarioID, "want", item.ID)
		return
	}

	res := resultFromMessage(item, msg)
	w.release()
	w.ItemsCompleted++
	if res.Failed() {
		w.ErrorCount++
	}

	p.recordResult(res)

	if w.ErrorCount > p.cfg.ErrorThreshold {
		p.log.Warn("Worker exceeded error threshold, recycling",
			"workerId", w.ID, "errors", w.ErrorCount)
		p.recycle(ctx, w, RecycleReasonErrors)
		return
	}
	p.dispatch(ctx, w, time.Now())
}

// handleDisconnect handles a worker whose channel closed. If the worker was
// busy its item is counted as failed rather than retried: the scenario may
// have partially executed, and re-running it could double-report side
// effects. That loss is recorded, not hidden.
func (p *Pool) handleDisconnect(ctx context.Context, workerID int, err error) {
	w, ok := p.workers[workerID]
	if !ok {
		// Already recycled; the pump of the killed process reports its EOF
		// after the fact.
		return
	}
	delete(p.workers, workerID)
	w.Process.Kill()
	metrics.SetActiveWorkers(p.cfg.RunID, len(p.workers))

	if w.Busy {
		item := w.CurrentWork
		p.log.Error("Worker exited while executing scenario; counting item as lost",
			"workerId", workerID, "scenario", item.AggregateKey(), "err", err)
		p.stats.LostItems++
		metrics.RecordLostItem(p.cfg.RunID)
		p.recordResult(lostItemResult(item))
	} else {
		p.log.Warn("Idle worker exited", "workerId", workerID, "err", err)
	}

	if p.completed < p.total {
		p.stats.WorkerRecycles++
		metrics.RecordWorkerRecycle(p.cfg.RunID, RecycleReasonCrash)
		p.spawnReplacement(ctx)
	}
}

// checkHealth recycles workers that have held one item past the scenario
// timeout. The stuck item goes back to the front of the queue and is offered
// to the remaining idle workers; the replacement spawn is asynchronous and
// may even fail.
func (p *Pool) checkHealth(ctx context.Context, now time.Time) {
	requeued := false
	for _, w := range p.workers {
		if !w.Busy || w.busyFor(now) <= p.cfg.ScenarioTimeout {
			continue
		}
		item := w.CurrentWork
		p.log.Warn("Worker stuck on scenario, recycling",
			"workerId", w.ID, "scenario", item.AggregateKey(), "busyFor", w.busyFor(now).Truncate(time.Millisecond))
		p.requeueFront(item)
		w.release()
		p.recycle(ctx, w, RecycleReasonStuck)
		requeued = true
	}
	if requeued {
		p.dispatchIdle(ctx, now)
	}
}

// recycle removes a worker from the pool, kills its process and spawns a
// replacement with a fresh id. Any in-flight item must be requeued or
// recorded by the caller before recycling.
func (p *Pool) recycle(ctx context.Context, w *Worker, reason string) {
	delete(p.workers, w.ID)
	w.release()
	w.Process.Kill()
	p.stats.WorkerRecycles++
	metrics.RecordWorkerRecycle(p.cfg.RunID, reason)
	metrics.SetActiveWorkers(p.cfg.RunID, len(p.workers))

	if p.completed < p.total {
		p.spawnReplacement(ctx)
	}
}

// spawnReplacement starts a fresh worker asynchronously so the event loop
// never blocks on process startup. The new worker enters the pool through an
// eventWorkerUp event.
func (p *Pool) spawnReplacement(ctx context.Context) {
	id := p.nextWorkerID
	p.nextWorkerID++
	go func() {
		w, err := p.startWorker(ctx, id)
		if err != nil {
			p.emit(poolEvent{kind: eventWorkerFailed, err: err})
			return
		}
		p.emit(poolEvent{kind: eventWorkerUp, worker: w})
	}()
}

func (p *Pool) requeueFront(item *types.WorkItem) {
	p.queue = append([]*types.WorkItem{item}, p.queue...)
}

// dispatch pops the front of the queue and sends it to an idle worker.
func (p *Pool) dispatch(ctx context.Context, w *Worker, now time.Time) {
	if w.Busy || len(p.queue) == 0 {
		return
	}
	item := p.queue[0]
	p.queue = p.queue[1:]

	msg := ipc.NewExecuteMessage(item, p.cfg.RunConfig, p.cfg.ResultsDir)
	if err := w.Process.Send(msg); err != nil {
		p.log.Error("Failed to send work to worker, recycling",
			"workerId", w.ID, "scenario", item.AggregateKey(), "err", err)
		p.requeueFront(item)
		p.recycle(ctx, w, RecycleReasonSendFailed)
		return
	}

	w.assign(item, now)
	metrics.RecordDispatch(p.cfg.RunID)
	p.progress.StartItem(itemName(item))
	p.log.Debug("Dispatched work item",
		"workerId", w.ID, "scenario", item.AggregateKey(), "iteration", item.IterationNumber,
		"queued", len(p.queue))
}

func (p *Pool) dispatchIdle(ctx context.Context, now time.Time) {
	for _, w := range p.workers {
		p.dispatch(ctx, w, now)
	}
}

// recordResult stores one work item result and advances the completion
// counter. Item IDs are deduplicated so a late result from a recycled worker
// can never complete an item twice.
func (p *Pool) recordResult(res *types.ScenarioResult) {
	if _, dup := p.results[res.WorkItemID]; dup {
		p.log.Warn("Dropping duplicate result for work item", "workItemId", res.WorkItemID)
		return
	}
	p.results[res.WorkItemID] = res
	p.completed++
	p.stats.CompletedItems++

	p.progress.CompleteItem(resultName(res), res.Status)
	metrics.RecordScenario(p.cfg.RunID, res.FeatureName, res.Status)

	if final := p.aggregator.Add(res); final != nil {
		p.scenarios = append(p.scenarios, final)
	}
}

// shutdown terminates all live workers, racing graceful exit against the
// shutdown timeout per worker before force-killing.
func (p *Pool) shutdown() {
	if len(p.queue) > 0 {
		p.stats.AbandonedItems = len(p.queue)
		p.log.Warn("Abandoning queued work items at shutdown", "count", len(p.queue))
		p.queue = nil
	}

	var wg sync.WaitGroup
	for _, w := range p.workers {
		if err := w.Process.Send(ipc.Message{Type: ipc.MessageTerminate}); err != nil {
			p.log.Debug("Terminate send failed, killing worker", "workerId", w.ID, "err", err)
			w.Process.Kill()
			continue
		}
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Process.Wait(p.cfg.ShutdownTimeout); err != nil {
				p.log.Warn("Worker did not exit gracefully, killing", "workerId", w.ID, "err", err)
				w.Process.Kill()
			}
		}(w)
	}
	wg.Wait()

	p.workers = make(map[int]*Worker)
	metrics.SetActiveWorkers(p.cfg.RunID, 0)
}

func (p *Pool) buildResult(start time.Time) *RunResult {
	result := &RunResult{
		RunID:     p.cfg.RunID,
		Results:   p.results,
		Scenarios: p.scenarios,
		Stats:     p.stats,
		Duration:  time.Since(start),
	}
	result.Stats.TotalItems = p.total
	result.Stats.Scenarios = len(p.scenarios)
	for _, s := range p.scenarios {
		switch s.Status {
		case types.ScenarioStatusPassed:
			result.Stats.ScenariosPassed++
		case types.ScenarioStatusFailed:
			result.Stats.ScenariosFailed++
		case types.ScenarioStatusSkipped:
			result.Stats.ScenariosSkipped++
		}
	}
	return result
}

func (p *Pool) workerLog(workerID int, msg *ipc.Message) {
	logger := p.log.New("workerId", workerID)
	switch msg.Level {
	case "error":
		logger.Error(msg.Text)
	case "warn":
		logger.Warn(msg.Text)
	case "debug":
		logger.Debug(msg.Text)
	default:
		logger.Info(msg.Text)
	}
}

// resultFromMessage converts a wire result into the supervisor-side record
// for the given work item.
func resultFromMessage(item *types.WorkItem, msg *ipc.Message) *types.ScenarioResult {
	res := &types.ScenarioResult{
		WorkItemID:      item.ID,
		FeatureName:     item.Feature.Name,
		ScenarioName:    item.Scenario.Name,
		Status:          msg.Status,
		Duration:        msg.Duration(),
		Error:           msg.Error,
		StackTrace:      msg.StackTrace,
		Steps:           msg.Steps,
		Console:         msg.Console,
		Iteration:       msg.Iteration,
		TotalIterations: item.TotalIterations,
		IterationData:   msg.IterationData,
	}
	if msg.Artifacts != nil {
		res.Artifacts = *msg.Artifacts
	}
	if res.Status == "" {
		res.Status = types.ScenarioStatusFailed
		if res.Error == "" {
			res.Error = "worker returned result without status"
		}
	}
	return res
}

// lostItemResult synthesizes the failure record for an item whose worker died
// mid-execution.
func lostItemResult(item *types.WorkItem) *types.ScenarioResult {
	return &types.ScenarioResult{
		WorkItemID:      item.ID,
		FeatureName:     item.Feature.Name,
		ScenarioName:    item.Scenario.Name,
		Status:          types.ScenarioStatusFailed,
		Error:           "worker process exited during execution; scenario not retried",
		Iteration:       item.IterationNumber,
		TotalIterations: item.TotalIterations,
	}
}

func itemName(item *types.WorkItem) string {
	if item.DataDriven() {
		return fmt.Sprintf("%s [%d/%d]", item.AggregateKey(), item.IterationNumber, item.TotalIterations)
	}
	return item.AggregateKey()
}

func resultName(res *types.ScenarioResult) string {
	if res.TotalIterations > 0 {
		return fmt.Sprintf("%s [%d/%d]", res.Key(), res.Iteration, res.TotalIterations)
	}
	return res.Key()
}
