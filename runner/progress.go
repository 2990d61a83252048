package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gherkit/gherkit/types"
)

// ProgressIndicator interface for UI updates during a run
type ProgressIndicator interface {
	StartRun(runID string, totalItems int)
	StartItem(name string)
	CompleteItem(name string, status types.ScenarioStatus)
	CompleteRun(runID string)
	Stop()
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(runID string, totalItems int)                 {}
func (n *noOpProgressIndicator) StartItem(name string)                                 {}
func (n *noOpProgressIndicator) CompleteItem(name string, status types.ScenarioStatus) {}
func (n *noOpProgressIndicator) CompleteRun(runID string)                              {}
func (n *noOpProgressIndicator) Stop()                                                 {}

// consoleProgressIndicator provides a console-based progress indicator
type consoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.RWMutex

	currentRun     string
	completedItems int
	totalItems     int
	runStartTime   time.Time

	// Track currently running scenarios
	runningItems map[string]time.Time // item name -> start time

	lastUpdateTime time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = DefaultProgressInterval
	}

	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningItems: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *consoleProgressIndicator) StartRun(runID string, totalItems int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentRun = runID
	c.totalItems = totalItems
	c.completedItems = 0
	c.runStartTime = time.Now()
	c.lastUpdateTime = time.Now()
	c.runningItems = make(map[string]time.Time)

	c.logger.Info("Starting run", "runId", runID, "totalScenarios", totalItems)
}

// StartItem tracks when a scenario begins executing on some worker
func (c *consoleProgressIndicator) StartItem(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningItems[name] = time.Now()
	c.logger.Debug("Scenario started", "scenario", name, "running", len(c.runningItems))
}

func (c *consoleProgressIndicator) CompleteItem(name string, status types.ScenarioStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningItems, name)

	c.completedItems++
	c.lastUpdateTime = time.Now()

	// Log individual completion at debug level to avoid spam
	c.logger.Debug("Scenario completed", "scenario", name, "status", status,
		"completed", c.completedItems, "total", c.totalItems, "running", len(c.runningItems))
}

func (c *consoleProgressIndicator) CompleteRun(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.runStartTime).Truncate(time.Second)
	c.logger.Info("Completed run", "runId", runID, "totalScenarios", c.totalItems,
		"completed", c.completedItems, "duration", duration)
	c.currentRun = ""
	c.runningItems = make(map[string]time.Time)
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	detailsStr := formatRunningItems(c.runningItems, 3)

	var percentComplete float64
	if c.totalItems > 0 {
		percentComplete = float64(c.completedItems) * 100.0 / float64(c.totalItems)
	}

	c.logger.Info("Progress update",
		"runId", c.currentRun,
		"completed", c.completedItems,
		"total", c.totalItems,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningItems),
		"longestRunning", detailsStr,
	)
}

// Stop stops the progress indicator
func (c *consoleProgressIndicator) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	close(c.stopCh)
}

// Helper function that formats running scenarios into a display string
func formatRunningItems(runningItems map[string]time.Time, maxShow int) string {
	if len(runningItems) == 0 {
		return ""
	}

	type runningItem struct {
		name     string
		duration time.Duration
	}

	var running []runningItem
	now := time.Now()
	for name, startTime := range runningItems {
		running = append(running, runningItem{
			name:     name,
			duration: now.Sub(startTime),
		})
	}

	// Longest running first
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, item := range running {
		if i >= maxShow {
			break
		}
		duration := item.duration.Truncate(time.Second)
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", item.name, duration))
	}

	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}
