package logging

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/gherkit/gherkit/types"
)

const rawMessagesLog = "raw_messages.ndjson"

// RawMessageSink preserves every scenario result in its wire shape as
// newline-delimited JSON, for feeding to downstream tooling that wants the
// unrendered stream.
type RawMessageSink struct {
	logger *FileLogger
}

// Consume appends one result to the raw_messages.ndjson file
func (s *RawMessageSink) Consume(result *types.ScenarioResult, runID string) error {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	rawFile := filepath.Join(baseDir, rawMessagesLog)

	writer, err := s.logger.getAsyncWriter(rawFile)
	if err != nil {
		return err
	}

	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return writer.Write(append(line, '\n'))
}

// GetRawMessagesFileForRunID returns the path to the raw_messages.ndjson file
// for the given runID
func (s *RawMessageSink) GetRawMessagesFileForRunID(runID string) (string, error) {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, rawMessagesLog), nil
}

// Complete is a no-op for RawMessageSink
func (s *RawMessageSink) Complete(runID string) error {
	return nil
}
