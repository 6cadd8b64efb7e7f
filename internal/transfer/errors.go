package transfer

import (
	"errors"
	"fmt"
)

// ErrNotActive is reported by an engine when an operation meant for a running
// job hits one that already stopped.
var ErrNotActive = errors.New("job is not active")

// ValidationError represents input rejected before the engine is contacted.
type ValidationError struct {
	Input  string // The rejected input, possibly truncated
	Reason string // Human-readable explanation of why the input is invalid
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// SubmissionError represents an engine refusing a new job. Its message is the
// engine's own.
type SubmissionError struct {
	Operation string // The engine operation that failed (e.g., "add_magnet")
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Operation)
	}

	return e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// TransientPollError wraps a failed status fetch that will be retried. It is
// logged, never returned to callers of a lifecycle.
type TransientPollError struct {
	ID  string
	Err error
}

func (e *TransientPollError) Error() string {
	return fmt.Sprintf("transient poll failure for %s: %v", e.ID, e.Err)
}

func (e *TransientPollError) Unwrap() error {
	return e.Err
}

// IndexNotFoundError means the index is not part of the current listing.
type IndexNotFoundError struct {
	Index int
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index %d not found in the current listing", e.Index)
}

// ActionError represents a failed pause or remove on a listed job. Its message
// is the engine's own.
type ActionError struct {
	Action string // "pause" or "remove"
	Index  int
	ID     string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s of #%d failed", e.Action, e.Index)
	}

	return e.Err.Error()
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
