package domain

import (
	"fmt"
	"reflect"
)

// SessionStatus describes the lifecycle of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"    // Accepting actions
	StatusCompleted SessionStatus = "completed" // Terminal step reached
	StatusAborted   SessionStatus = "aborted"   // Ended by the operator or a disconnect
)

// SessionState is the live snapshot of one agent session.
// It is owned by exactly one session and mutated only through the executor
// and the state machine.
type SessionState struct {
	SessionID   string        `json:"session_id"`
	ProcedureID string        `json:"procedure_id"`
	StepID      string        `json:"step_id"`
	Status      SessionStatus `json:"status"`

	// Context accumulates values produced by prior actions.
	Context map[string]any `json:"context"`

	// ContextTypes records the kind first seen for each context key.
	ContextTypes map[string]string `json:"context_types"`

	// Sequence increases by one on every committed transition.
	Sequence uint64 `json:"sequence"`

	// Tokens maps each processed correlation token to the sequence at which it was seen.
	Tokens map[string]uint64 `json:"tokens"`

	// History is the path of step ids taken so far.
	History []string `json:"history"`
}

// NewSessionState creates a clean state positioned at the given step.
func NewSessionState(sessionID, procedureID, stepID string) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		ProcedureID:  procedureID,
		StepID:       stepID,
		Status:       StatusActive,
		Context:      make(map[string]any),
		ContextTypes: make(map[string]string),
		Tokens:       make(map[string]uint64),
		History:      []string{stepID},
	}
}

// Clone returns a copy that shares no maps or slices with s.
// Context values are copied shallowly.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.ContextTypes = make(map[string]string, len(s.ContextTypes))
	for k, v := range s.ContextTypes {
		out.ContextTypes[k] = v
	}
	out.Tokens = make(map[string]uint64, len(s.Tokens))
	for k, v := range s.Tokens {
		out.Tokens[k] = v
	}
	out.History = append([]string(nil), s.History...)
	return &out
}

// CheckContext verifies that delta keeps every existing key's kind.
func (s *SessionState) CheckContext(delta map[string]any) error {
	for k, v := range delta {
		got := KindOf(v)
		prev, seen := s.ContextTypes[k]
		if !seen {
			if existing, ok := s.Context[k]; ok {
				prev, seen = KindOf(existing), true
			}
		}
		if seen && prev != got {
			return &ContextTypeError{Key: k, Previous: prev, Got: got}
		}
	}
	return nil
}

// MergeContext applies delta atomically: either every key is merged or,
// on a kind change, nothing is.
func (s *SessionState) MergeContext(delta map[string]any) error {
	if err := s.CheckContext(delta); err != nil {
		return err
	}
	if s.Context == nil {
		s.Context = make(map[string]any, len(delta))
	}
	if s.ContextTypes == nil {
		s.ContextTypes = make(map[string]string, len(delta))
	}
	for k, v := range delta {
		s.Context[k] = v
		s.ContextTypes[k] = KindOf(v)
	}
	return nil
}

// Active reports whether the session still accepts actions.
func (s *SessionState) Active() bool {
	return s.Status == StatusActive
}

// KindOf classifies a context value: string, number, bool, array, object or null.
func KindOf(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
