package core

import (
	"errors"
	"fmt"
)

// Kind identifies one of the abstract error kinds from the error-handling design:
// LLMCallFailed, ToolCallFailed, PersistenceFailed, ParseFailed, ValidationFailed,
// Cancelled, FatalPlan.
type Kind string

const (
	KindLLMCallFailed     Kind = "llm_call_failed"
	KindToolCallFailed    Kind = "tool_call_failed"
	KindPersistenceFailed Kind = "persistence_failed"
	KindParseFailed       Kind = "parse_failed"
	KindValidationFailed  Kind = "validation_failed"
	KindCancelled         Kind = "cancelled"
	KindFatalPlan         Kind = "fatal_plan"
)

// Standard sentinel errors for comparison using errors.Is().
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskNotCancellable = errors.New("task not in a cancellable state")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrNoAgentsPlanned    = errors.New("no agents could be planned")

	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	ErrTimeout            = errors.New("operation timeout")
	ErrContextCanceled    = errors.New("context canceled")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitOpen        = errors.New("circuit breaker open")

	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
)

// TaskError provides structured error information with context. It implements the
// error interface and supports error wrapping via errors.Is/errors.As.
type TaskError struct {
	Op      string // operation that failed, e.g. "orchestrator.Execute"
	Kind    Kind
	ID      string // task/subtask/agent id involved, if any
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a new TaskError for the given kind.
func NewTaskError(op string, kind Kind, id string, err error) *TaskError {
	return &TaskError{Op: op, Kind: kind, ID: id, Err: err}
}

// IsRetryable reports whether err is a transient condition the Router's circuit
// breaker / fallback chain should treat as a failed attempt rather than a fatal one.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrRequestFailed) {
		return true
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind == KindLLMCallFailed || te.Kind == KindToolCallFailed
	}
	return false
}

// IsNotFound reports whether err represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrAgentNotFound)
}

// IsCancelled reports whether err represents externally triggered cancellation.
func IsCancelled(err error) bool {
	if errors.Is(err, ErrContextCanceled) {
		return true
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind == KindCancelled
	}
	return false
}

// IsFatalPlan reports whether err means the task cannot proceed at all (e.g. no
// agents could be created) and must transition straight to failed.
func IsFatalPlan(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind == KindFatalPlan
	}
	return errors.Is(err, ErrNoAgentsPlanned)
}

// IsConfigurationError reports whether err is configuration-related.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrMissingConfiguration)
}
