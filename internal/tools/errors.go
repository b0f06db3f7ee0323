// Package tools defines the task tools available to the agent.
//
// This file defines the error types tool execution can produce.
package tools

import "fmt"

// ValidationError reports malformed tool input. It is recoverable: the
// orchestrator feeds it back to the model as a tool message so the
// model can correct itself or apologize to the user.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrUnknownTool is returned when a tool call names a tool that is not
// in the registry. Unknown names are rejected at the boundary; there
// is no dynamic dispatch beyond the fixed five.
type ErrUnknownTool struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.ToolName)
}
