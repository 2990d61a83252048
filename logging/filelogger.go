package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gherkit/gherkit/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
)

// ResultSink is an interface for different ways of consuming scenario results
type ResultSink interface {
	// Consume processes a single scenario result
	Consume(result *types.ScenarioResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing scenario output to files
type FileLogger struct {
	baseDir      string                // Base directory for logs
	logDir       string                // Root log directory
	failedDir    string                // Directory for failed scenarios
	summaryFile  string                // Path to the summary file
	allLogsFile  string                // Path to the combined log file
	mu           sync.Mutex            // Protects concurrent file operations
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string                // Current run ID
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	// Start the background writer
	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	// Make a copy of the data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	// Send data to the queue
	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		_, err := af.file.Write(data)
		if err != nil {
			// Log the error but continue processing
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates a new FileLogger with given configuration
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	// Use the standardized prefix for the run directory
	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, "failed")
	summaryFile := filepath.Join(logDir, "summary.log")
	allLogsFile := filepath.Join(logDir, "all.log")

	// Create directories if they don't exist
	dirs := []string{
		baseDir,
		logDir,
		failedDir,
		filepath.Join(logDir, "passed"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		failedDir:    failedDir,
		summaryFile:  summaryFile,
		allLogsFile:  allLogsFile,
		sinks:        make([]ResultSink, 0),
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}

	// Initialize the AllLogsFileSink
	allLogsSink := &AllLogsFileSink{logger: logger}
	logger.sinks = append(logger.sinks, allLogsSink)

	// Initialize the PerScenarioFileSink
	perScenarioSink := &PerScenarioFileSink{
		logger:    logger,
		processed: make(map[string]bool),
	}
	logger.sinks = append(logger.sinks, perScenarioSink)

	// Initialize the RawMessageSink
	rawSink := &RawMessageSink{logger: logger}
	logger.sinks = append(logger.sinks, rawSink)

	return logger, nil
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Check if we already have a writer for this path
	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	// Create a new writer
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}

	// Store it for future use
	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers
func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close() // Ignore errors on close
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// GetDirectoryForRunID returns the path for a specific runID
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	// If the runID matches the logger's current runID, return logDir
	if runID == l.runID {
		return l.logDir, nil
	}
	// Always use the standardized prefix for run directories
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// LogScenarioResult processes a scenario result through all registered sinks
func (l *FileLogger) LogScenarioResult(result *types.ScenarioResult, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	// Feed the result to all sinks
	for _, sink := range l.sinks {
		if err := sink.Consume(result, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}

	return nil
}

// LogSummary writes a summary of the run to a file
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) LogSummary(summary string, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	// Get the summary file path for this runID
	summaryFile, err := l.GetSummaryFileForRunID(runID)
	if err != nil {
		return err
	}

	// Get or create the async writer
	writer, err := l.getAsyncWriter(summaryFile)
	if err != nil {
		return err
	}

	// Write the summary
	return writer.Write([]byte(summary))
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}

	// Close all writers after completion
	l.closeAllWriters()

	return nil
}

// GetBaseDir returns the base directory for this run
func (l *FileLogger) GetBaseDir() string {
	return l.logDir
}

// GetFailedDir returns the directory containing logs for failed scenarios
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetSummaryFile returns the path to the summary file
func (l *FileLogger) GetSummaryFile() string {
	return l.summaryFile
}

// GetAllLogsFile returns the path to the all logs file
func (l *FileLogger) GetAllLogsFile() string {
	return l.allLogsFile
}

// GetRunID returns the current runID
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetFailedDirForRunID returns the failed directory for a specific runID
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) GetFailedDirForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "failed"), nil
}

// GetSummaryFileForRunID returns the summary file for a specific runID
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) GetSummaryFileForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "summary.log"), nil
}

// GetAllLogsFileForRunID returns the path to the all.log file for the given runID
func (l *FileLogger) GetAllLogsFileForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "all.log"), nil
}

// Helper functions

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	// Replace characters that might be problematic in filenames
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, "?", "_")
	s = strings.ReplaceAll(s, "\"", "_")
	s = strings.ReplaceAll(s, "<", "_")
	s = strings.ReplaceAll(s, ">", "_")
	s = strings.ReplaceAll(s, "|", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "...", "")
	return s
}

// scenarioFilename generates a user-friendly filename for a scenario result.
// Iterations of a data-driven scenario share a file, since the aggregate is
// what readers look for.
func scenarioFilename(result *types.ScenarioResult) string {
	name := fmt.Sprintf("%s_%s", result.FeatureName, result.ScenarioName)
	return safeFilename(name)
}

// Sink implementations

// AllLogsFileSink writes all scenario results to a single "all.log" file
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume writes a scenario result to the all.log file
func (s *AllLogsFileSink) Consume(result *types.ScenarioResult, runID string) error {
	// Get the all.log file path for this runID
	allLogsFile, err := s.logger.GetAllLogsFileForRunID(runID)
	if err != nil {
		return err
	}

	// Get or create the async writer
	writer, err := s.logger.getAsyncWriter(allLogsFile)
	if err != nil {
		return err
	}

	// Use a cleaner, more structured format that's easier to read for large outputs
	var content strings.Builder

	// Create a clear header with visual distinction
	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ SCENARIO: %-60s │\n", truncateString(result.ScenarioName, 60))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")

	// Add scenario metadata in a structured format
	fmt.Fprintf(&content, "│ Status:   %-62s │\n", result.Status)
	fmt.Fprintf(&content, "│ Feature:  %-62s │\n", truncateString(result.FeatureName, 62))
	if result.TotalIterations > 0 {
		iter := fmt.Sprintf("%d/%d", result.Iteration, result.TotalIterations)
		if result.Aggregated {
			iter = fmt.Sprintf("aggregate of %d", result.TotalIterations)
		}
		fmt.Fprintf(&content, "│ Iteration: %-61s │\n", iter)
	}
	fmt.Fprintf(&content, "│ Duration: %-62s │\n", result.Duration)
	fmt.Fprintf(&content, "│ Time:     %-62s │\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	// Add error and console output in clearly marked sections
	if result.Error != "" {
		fmt.Fprintf(&content, "ERROR:\n")
		fmt.Fprintf(&content, "~~~~~~\n")
		fmt.Fprintf(&content, "%s\n\n", result.Error)
	}

	if result.Console != "" {
		fmt.Fprintf(&content, "CONSOLE:\n")
		fmt.Fprintf(&content, "~~~~~~~~\n")
		// Indent the console output for better readability
		indentedOutput := indentText(result.Console, "  ")
		fmt.Fprintf(&content, "%s\n", indentedOutput)
	}

	// Add a clear separator at the end
	fmt.Fprintf(&content, "\n")

	// Write the content to the file
	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// indentText adds indentation to each line of text for better readability
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to the specified max length
// and adds an ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// PerScenarioFileSink creates dedicated log files for each scenario in
// passed/failed directories
type PerScenarioFileSink struct {
	logger    *FileLogger
	processed map[string]bool // Track which files we've already written
	mu        sync.Mutex      // Protect the processed map
}

// Consume writes a scenario result to a dedicated file in the passed or
// failed directory. Iterations append to the same file; the final aggregate
// lands last.
func (s *PerScenarioFileSink) Consume(result *types.ScenarioResult, runID string) error {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}

	passedDir := filepath.Join(baseDir, "passed")
	failedDir := filepath.Join(baseDir, "failed")
	for _, dir := range []string{baseDir, passedDir, failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dir := passedDir
	if result.Failed() {
		dir = failedDir
	}
	path := filepath.Join(dir, scenarioFilename(result)+".log")

	writer, err := s.logger.getAsyncWriter(path)
	if err != nil {
		return err
	}

	var content strings.Builder
	s.mu.Lock()
	first := !s.processed[path]
	s.processed[path] = true
	s.mu.Unlock()

	if first {
		fmt.Fprintf(&content, "=== %s :: %s\n", result.FeatureName, result.ScenarioName)
	}

	if result.Aggregated {
		fmt.Fprintf(&content, "\n--- aggregate: %s (%s)\n", result.Status, result.Duration)
		if result.Error != "" {
			fmt.Fprintf(&content, "%s\n", result.Error)
		}
		for _, it := range result.Iterations {
			fmt.Fprintf(&content, "  iteration %d: %s (%s)\n", it.Iteration, it.Status, it.Duration)
			if it.Error != "" {
				fmt.Fprintf(&content, "    %s\n", it.Error)
			}
		}
	} else {
		header := "result"
		if result.TotalIterations > 0 {
			header = fmt.Sprintf("iteration %d/%d", result.Iteration, result.TotalIterations)
		}
		fmt.Fprintf(&content, "\n--- %s: %s (%s)\n", header, result.Status, result.Duration)
		if result.Error != "" {
			fmt.Fprintf(&content, "error: %s\n", result.Error)
		}
		if result.StackTrace != "" {
			fmt.Fprintf(&content, "stack:\n%s\n", indentText(result.StackTrace, "  "))
		}
		for _, step := range result.Steps {
			fmt.Fprintf(&content, "  %s %s ... %s\n", step.Keyword, step.Text, step.Status)
		}
		if result.Console != "" {
			fmt.Fprintf(&content, "console:\n%s\n", indentText(result.Console, "  "))
		}
	}

	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for PerScenarioFileSink
func (s *PerScenarioFileSink) Complete(runID string) error {
	return nil
}
