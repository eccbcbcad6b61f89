package domain

import "errors"

// Outcome tags the result of an action request.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// ActionRequest is an agent-issued request to perform an action.
type ActionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	// Token is the agent's correlation id.
	Token string `json:"token"`
}

// ActionResult is the single answer to an ActionRequest.
type ActionResult struct {
	Token        string         `json:"token"`
	Action       string         `json:"action"`
	Outcome      Outcome        `json:"outcome"`
	Message      string         `json:"message"`
	ContextDelta map[string]any `json:"context_delta,omitempty"`

	// StepID and Sequence describe the session after the request.
	StepID    string `json:"step_id"`
	Sequence  uint64 `json:"sequence"`
	Completed bool   `json:"completed,omitempty"`

	Err error `json:"-"`
}

// ActionOutcome is what a capability adapter reports back from the host.
type ActionOutcome struct {
	Tag          Outcome        `json:"tag"`
	Message      string         `json:"message"`
	ContextDelta map[string]any `json:"context_delta,omitempty"`

	// Err carries the failure cause for failed outcomes.
	Err error `json:"-"`
}

// Succeeded builds a successful outcome.
func Succeeded(message string, delta map[string]any) ActionOutcome {
	return ActionOutcome{Tag: OutcomeSucceeded, Message: message, ContextDelta: delta}
}

// Failed builds a failed outcome from a host failure.
func Failed(action string, err error) ActionOutcome {
	var hf *HostExecutionFailure
	if !errors.As(err, &hf) {
		hf = &HostExecutionFailure{Action: action, Err: err}
	}
	return ActionOutcome{Tag: OutcomeFailed, Message: err.Error(), Err: hf}
}
