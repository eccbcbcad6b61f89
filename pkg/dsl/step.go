package dsl

import "github.com/neurosurgery/actionbridge/pkg/domain"

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step    domain.Step
	builder *Builder
}

// Describe sets the step description pushed to the agent as context.
func (s *StepBuilder) Describe(text string) *StepBuilder {
	s.step.Description = text
	return s
}

// Enable adds actions to the set enabled while the step is current.
func (s *StepBuilder) Enable(actions ...string) *StepBuilder {
	for _, a := range actions {
		if !s.step.Enables(a) {
			s.step.Actions = append(s.step.Actions, a)
		}
	}
	return s
}

// Go adds a success transition. The action is enabled if it is not already.
func (s *StepBuilder) Go(action, target string) *StepBuilder {
	s.Enable(action)
	s.step.Transitions = append(s.step.Transitions, domain.Transition{
		Action: action,
		To:     target,
	})
	return s
}

// Stay is Go back to the same step, for repeatable actions.
func (s *StepBuilder) Stay(actions ...string) *StepBuilder {
	for _, a := range actions {
		s.Go(a, s.step.ID)
	}
	return s
}

// Branch adds a success transition taken only when the result context delta
// carries the given values.
func (s *StepBuilder) Branch(action string, when map[string]any, target string) *StepBuilder {
	s.Enable(action)
	s.step.Transitions = append(s.step.Transitions, domain.Transition{
		Action: action,
		When:   when,
		To:     target,
	})
	return s
}

// Fail adds an explicit failure transition.
func (s *StepBuilder) Fail(action, target string) *StepBuilder {
	s.step.Transitions = append(s.step.Transitions, domain.Transition{
		Action: action,
		On:     domain.OutcomeFailed,
		To:     target,
	})
	return s
}

// On adds an operator signal handler to the step.
func (s *StepBuilder) On(signal, target string) *StepBuilder {
	if s.step.Signals == nil {
		s.step.Signals = make(map[string]string)
	}
	s.step.Signals[signal] = target
	return s
}

// Force makes the agent choose one of the enabled actions on entry.
func (s *StepBuilder) Force(query, priority string) *StepBuilder {
	s.step.Force = &domain.ForcePrompt{Query: query, Priority: priority}
	return s
}

// Terminal marks the step as the end of the procedure.
func (s *StepBuilder) Terminal() *StepBuilder {
	s.step.Actions = nil
	s.step.Transitions = nil
	s.step.Signals = nil
	return s
}

// Step continues with another step of the same procedure.
func (s *StepBuilder) Step(id string) *StepBuilder {
	return s.builder.Step(id)
}

// Builder returns the parent builder.
func (s *StepBuilder) Builder() *Builder {
	return s.builder
}
