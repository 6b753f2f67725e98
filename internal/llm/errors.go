package llm

import (
	"context"
	"errors"
	"fmt"
)

// TransportError reports a provider failure. It aborts the conversation;
// retry policy belongs to the provider, not the Engine.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("transport error (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedStreamError reports a fragment protocol violation: an argument
// delta for a call that was never opened, a reused call id, invalid
// argument JSON, or a stream that ended without a terminal event.
type MalformedStreamError struct {
	CallID string
	Reason string
}

func (e *MalformedStreamError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("malformed stream: %s (call %s)", e.Reason, e.CallID)
	}
	return "malformed stream: " + e.Reason
}

// ToolExecutionError reports a tool failure that the bridge classified as
// fatal. Recoverable tool failures never surface as errors; they become
// error-result messages fed back to the model.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// IterationLimitError reports that the model kept requesting tools past the
// configured turn limit. It is distinct from other failures so callers can
// tell "model looped" from "transport broke".
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("conversation exceeded max turns (%d)", e.Limit)
}

// IsCancellation reports whether err is a context cancellation or deadline,
// which unwinds the conversation cleanly and is not a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
