package gherkit

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, worker startup failures, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// ScenarioFailureError represents a run where scenarios failed (exit code 1)
type ScenarioFailureError struct {
	Message string
}

func (e *ScenarioFailureError) Error() string {
	return fmt.Sprintf("scenario failure: %s", e.Message)
}

// NewScenarioFailureError creates a new ScenarioFailureError
func NewScenarioFailureError(message string) *ScenarioFailureError {
	return &ScenarioFailureError{Message: message}
}

// IsScenarioFailureError checks if the error is or wraps a ScenarioFailureError
func IsScenarioFailureError(err error) bool {
	var failureErr *ScenarioFailureError
	return err != nil && errors.As(err, &failureErr)
}
