package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnhandledSignal is returned when a signal is received but the current step defines no target for it.
var ErrUnhandledSignal = errors.New("unhandled signal")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when an operation targets a session that already ended.
var ErrSessionClosed = errors.New("session closed")

// ValidationError reports request parameters that violate the action schema.
type ValidationError struct {
	Action string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for %q: %v", e.Action, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IllegalTransitionError reports an action that is not legal in the current step.
type IllegalTransitionError struct {
	Action string
	StepID string
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("action %q is not enabled in step %q", e.Action, e.StepID)
	}
	return fmt.Sprintf("action %q in step %q: %s", e.Action, e.StepID, e.Reason)
}

// UnknownActionError reports a name missing from the registry.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// DuplicateActionError reports a registration of an existing name.
type DuplicateActionError struct {
	Action string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q is already registered", e.Action)
}

// InvalidProcedureError lists every problem found in a procedure definition.
type InvalidProcedureError struct {
	ProcedureID string
	Problems    []string
}

func (e *InvalidProcedureError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid procedure %q: %s", e.ProcedureID, e.Problems[0])
	}
	return fmt.Sprintf("invalid procedure %q: found %d errors:\n- %s",
		e.ProcedureID, len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// HostExecutionFailure reports a failure inside the host capability.
type HostExecutionFailure struct {
	Action string
	Err    error
}

func (e *HostExecutionFailure) Error() string {
	return fmt.Sprintf("host failed to perform %q: %v", e.Action, e.Err)
}

func (e *HostExecutionFailure) Unwrap() error { return e.Err }

// TimeoutError reports a host call that exceeded its bound.
// It is always delivered wrapped in a HostExecutionFailure.
type TimeoutError struct {
	Action string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("action %q timed out after %s", e.Action, e.After)
}

// ProtocolError reports a malformed inbound message.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DuplicateTokenError reports a correlation token that was already processed.
type DuplicateTokenError struct {
	Token    string
	Sequence uint64
}

func (e *DuplicateTokenError) Error() string {
	return fmt.Sprintf("correlation token %q was already processed at sequence %d", e.Token, e.Sequence)
}

// ContextTypeError reports a context delta that changes the kind of a key.
type ContextTypeError struct {
	Key      string
	Previous string
	Got      string
}

func (e *ContextTypeError) Error() string {
	return fmt.Sprintf("context key %q holds %s, refusing %s", e.Key, e.Previous, e.Got)
}

// Classify maps an error to the outcome reported to the agent.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}

	var (
		validation *ValidationError
		illegal    *IllegalTransitionError
		unknown    *UnknownActionError
		protocol   *ProtocolError
		duplicate  *DuplicateTokenError
	)
	switch {
	case errors.As(err, &validation),
		errors.As(err, &illegal),
		errors.As(err, &unknown),
		errors.As(err, &protocol),
		errors.As(err, &duplicate):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
