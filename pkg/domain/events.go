package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepEnter    EventType = "step_enter"
	EventStepLeave    EventType = "step_leave"
	EventActionSubmit EventType = "action_submit"
	EventActionResult EventType = "action_result"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent represents entry or exit from a step.
type StepEvent struct {
	EventBase
	ProcedureID string `json:"procedure_id"`
	StepID      string `json:"step_id"`
	Terminal    bool   `json:"terminal,omitempty"`
}

// ActionEvent represents an action request moving through the executor.
type ActionEvent struct {
	EventBase
	StepID   string         `json:"step_id"`
	Action   string         `json:"action"`
	Token    string         `json:"token"`
	Params   map[string]any `json:"params,omitempty"`
	Outcome  Outcome        `json:"outcome,omitempty"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for bridge observability.
type LifecycleHooks struct {
	OnStepEnter    func(context.Context, *StepEvent)
	OnStepLeave    func(context.Context, *StepEvent)
	OnActionSubmit func(context.Context, *ActionEvent)
	OnActionResult func(context.Context, *ActionEvent)
}

// Merge combines two hook sets; both are invoked, h first.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepEnter:    chainStep(h.OnStepEnter, other.OnStepEnter),
		OnStepLeave:    chainStep(h.OnStepLeave, other.OnStepLeave),
		OnActionSubmit: chainAction(h.OnActionSubmit, other.OnActionSubmit),
		OnActionResult: chainAction(h.OnActionResult, other.OnActionResult),
	}
}

func chainStep(a, b func(context.Context, *StepEvent)) func(context.Context, *StepEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *StepEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainAction(a, b func(context.Context, *ActionEvent)) func(context.Context, *ActionEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *ActionEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
