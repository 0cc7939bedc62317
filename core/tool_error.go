package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies tool failures so they can be reported back to the
// model and recorded on the tool span.
type ErrorCategory string

const (
	// CategoryInputError indicates the model produced malformed arguments
	CategoryInputError ErrorCategory = "INPUT_ERROR"

	// CategoryNotFound indicates the requested resource doesn't exist
	// Example: City not found
	CategoryNotFound ErrorCategory = "NOT_FOUND"

	// CategoryUnknownTool indicates the model asked for a tool that was not declared
	CategoryUnknownTool ErrorCategory = "UNKNOWN_TOOL"

	// CategoryServiceError indicates the tool's backend failed
	CategoryServiceError ErrorCategory = "SERVICE_ERROR"
)

// ToolError represents a structured error from a tool execution.
//
//	return nil, &core.ToolError{
//	    Code:     "LOCATION_NOT_FOUND",
//	    Message:  "City 'Atlantis' not found",
//	    Category: core.CategoryNotFound,
//	    Details:  map[string]string{"hint": "Try 'City, Country' format"},
//	}
type ToolError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category ErrorCategory     `json:"category"`
	Details  map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrToolExecution) match any ToolError
func (e *ToolError) Unwrap() error {
	return ErrToolExecution
}

// ToolResponse is the envelope a tool result is serialized into before it is
// returned to the model.
type ToolResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ToolError  `json:"error,omitempty"`
}

// AsToolError converts any error into a ToolError, keeping structured ones intact
func AsToolError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Code:     "EXECUTION_FAILED",
		Message:  err.Error(),
		Category: CategoryServiceError,
	}
}
