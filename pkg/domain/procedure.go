package domain

// Procedure is a declarative procedure definition: its action catalog and
// the Steps that decide which actions are legal when.
type Procedure struct {
	ID          string       `json:"id" yaml:"id" mapstructure:"id"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Initial     string       `json:"initial" yaml:"initial" mapstructure:"initial"`
	Actions     []ActionSpec `json:"actions,omitempty" yaml:"actions,omitempty" mapstructure:"actions"`
	Steps       []Step       `json:"steps" yaml:"steps" mapstructure:"steps"`
}

// Step is one state of a procedure.
type Step struct {
	ID          string `json:"id" yaml:"id" mapstructure:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`

	// Actions lists the action names enabled while this step is current.
	Actions     []string     `json:"actions,omitempty" yaml:"actions,omitempty" mapstructure:"actions"`
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty" mapstructure:"transitions"`

	// Signals maps operator signals (e.g. "next", "abort") to a target step.
	Signals map[string]string `json:"signals,omitempty" yaml:"signals,omitempty" mapstructure:"signals"`

	// Force, when set, asks the agent to pick one enabled action on entry.
	Force *ForcePrompt `json:"force,omitempty" yaml:"force,omitempty" mapstructure:"force"`
}

// IsTerminal reports whether the step has no way out.
func (s Step) IsTerminal() bool {
	return len(s.Transitions) == 0 && len(s.Signals) == 0
}

// Enables reports whether the step lists the action.
func (s Step) Enables(action string) bool {
	for _, a := range s.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Transition moves the procedure when an action completes with an outcome.
type Transition struct {
	Action string `json:"action" yaml:"action" mapstructure:"action"`

	// On is the outcome the transition fires for. Empty means succeeded.
	On Outcome `json:"on,omitempty" yaml:"on,omitempty" mapstructure:"on"`

	// When restricts the transition to results whose context delta carries
	// the given values.
	When map[string]any `json:"when,omitempty" yaml:"when,omitempty" mapstructure:"when"`

	To string `json:"to" yaml:"to" mapstructure:"to"`
}

// Outcome returns the effective outcome of the transition.
func (t Transition) Outcome() Outcome {
	if t.On == "" {
		return OutcomeSucceeded
	}
	return t.On
}

// ForcePrompt is pushed to the agent when a step is entered.
type ForcePrompt struct {
	Query            string `json:"query" yaml:"query" mapstructure:"query"`
	State            string `json:"state,omitempty" yaml:"state,omitempty" mapstructure:"state"`
	Priority         string `json:"priority,omitempty" yaml:"priority,omitempty" mapstructure:"priority"`
	EphemeralContext bool   `json:"ephemeral_context,omitempty" yaml:"ephemeral_context,omitempty" mapstructure:"ephemeral_context"`
}

// StepByID returns the step with the given id.
func (p *Procedure) StepByID(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
