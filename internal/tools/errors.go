// Package tools provides the tool registry and execution framework.
//
// This file defines sentinel error types for tool execution.
package tools

import (
	"errors"
	"fmt"
)

// ErrToolUnavailable is returned when a tool call targets a name that is
// not in the registry. This indicates a capability mismatch (the model
// hallucinated a tool), not a transient execution failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ErrAuthRequired is returned when a token-gated tool is invoked without
// a Google access token on the session. The tool handler never runs.
type ErrAuthRequired struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("tool %q requires authorization: connect a Google account first", e.ToolName)
}

// ToolError is a recoverable tool failure. Hint, when set, tells the
// model how to fix the call on the next attempt.
type ToolError struct {
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Message
}

// HintOf extracts the correction hint from err, if it carries one.
func HintOf(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Hint
	}
	return ""
}
