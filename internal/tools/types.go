// Package tools provides the built-in local tools for convoloop.
package tools

import "fmt"

// Tool names.
const (
	ClockToolName    = "current_time"
	ReadFileToolName = "read_file"
	ShellToolName    = "shell"
)

// ToolErrorType provides structured errors for model retry logic.
type ToolErrorType string

const (
	ErrFileNotFound    ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams   ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed ToolErrorType = "EXECUTION_FAILED"
	ErrFileTooLarge    ToolErrorType = "FILE_TOO_LARGE"
	ErrTimeout         ToolErrorType = "TIMEOUT"
)

// ToolError carries a machine-readable error type so the model can
// distinguish a retryable mistake from a hard failure.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with a formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError renders a structured error as a tool result string.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("ERROR [%s]: %s", err.Type, err.Message)
}
