package procedure

import (
	"fmt"
	"reflect"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Catalog is the view of the action registry the machine needs.
type Catalog interface {
	Has(name string) bool
	Lookup(name string) (domain.ActionSpec, error)
}

// Machine is a compiled, immutable procedure.
type Machine struct {
	def     domain.Procedure
	steps   map[string]domain.Step
	catalog Catalog
}

// Load validates def and compiles it into a Machine.
// It fails with *domain.InvalidProcedureError and never returns a partial Machine.
func Load(def *domain.Procedure, catalog Catalog) (*Machine, error) {
	if err := Validate(def, catalog); err != nil {
		return nil, err
	}

	m := &Machine{
		def:     *def,
		steps:   make(map[string]domain.Step, len(def.Steps)),
		catalog: catalog,
	}
	m.def.Steps = append([]domain.Step(nil), def.Steps...)
	for _, s := range m.def.Steps {
		m.steps[s.ID] = s
	}
	return m, nil
}

// ID returns the procedure id.
func (m *Machine) ID() string { return m.def.ID }

// Definition returns the procedure the machine was compiled from.
func (m *Machine) Definition() domain.Procedure { return m.def }

// Steps returns the steps in declaration order.
func (m *Machine) Steps() []domain.Step {
	return append([]domain.Step(nil), m.def.Steps...)
}

// Step returns the step with the given id.
func (m *Machine) Step(id string) (domain.Step, bool) {
	s, ok := m.steps[id]
	return s, ok
}

// Start creates a session state positioned at the initial step.
func (m *Machine) Start(sessionID string) *domain.SessionState {
	st := domain.NewSessionState(sessionID, m.def.ID, m.def.Initial)
	if m.steps[m.def.Initial].IsTerminal() {
		st.Status = domain.StatusCompleted
	}
	return st
}

// CurrentlyEnabled returns the actions valid in the current step, in the
// order the step declares them. Actions missing from the catalog or whose
// preconditions do not hold are left out.
func (m *Machine) CurrentlyEnabled(st *domain.SessionState) []string {
	if st == nil || !st.Active() || st.ProcedureID != m.def.ID {
		return nil
	}
	step, ok := m.steps[st.StepID]
	if !ok {
		return nil
	}

	enabled := make([]string, 0, len(step.Actions))
	for _, name := range step.Actions {
		if m.catalog != nil {
			spec, err := m.catalog.Lookup(name)
			if err != nil || !preconditionsHold(spec.Preconditions, st.Context) {
				continue
			}
		}
		enabled = append(enabled, name)
	}
	return enabled
}

// IsEnabled reports whether action is in CurrentlyEnabled.
func (m *Machine) IsEnabled(st *domain.SessionState, action string) bool {
	for _, name := range m.CurrentlyEnabled(st) {
		if name == action {
			return true
		}
	}
	return false
}

// HasTransition reports whether the current step defines a transition for
// action and outcome, ignoring When conditions.
func (m *Machine) HasTransition(st *domain.SessionState, action string, outcome domain.Outcome) bool {
	step, ok := m.steps[st.StepID]
	if !ok {
		return false
	}
	for _, t := range step.Transitions {
		if t.Action == action && t.Outcome() == outcome {
			return true
		}
	}
	return false
}

// Advance applies the transition matching action and result to st.
//
// Conditional transitions are tried before unconditional ones; the first match
// wins. If none matches it fails with *domain.IllegalTransitionError. A result
// delta that would change a context key's kind fails with
// *domain.ContextTypeError. On any error st is left untouched.
func (m *Machine) Advance(st *domain.SessionState, action string, result domain.ActionOutcome) (domain.Step, error) {
	if err := m.checkOwnership(st, action); err != nil {
		return domain.Step{}, err
	}

	step := m.steps[st.StepID]
	t, ok := m.match(step, action, result)
	if !ok {
		return domain.Step{}, &domain.IllegalTransitionError{
			Action: action,
			StepID: st.StepID,
			Reason: fmt.Sprintf("no transition for outcome %s", result.Tag),
		}
	}

	if err := st.MergeContext(result.ContextDelta); err != nil {
		return domain.Step{}, err
	}
	return m.moveTo(st, t.To), nil
}

// Signal moves st along an operator signal of the current step.
func (m *Machine) Signal(st *domain.SessionState, signal string) (domain.Step, error) {
	if err := m.checkOwnership(st, signal); err != nil {
		return domain.Step{}, err
	}

	target, ok := m.steps[st.StepID].Signals[signal]
	if !ok {
		return domain.Step{}, fmt.Errorf("signal %q in step %q: %w", signal, st.StepID, domain.ErrUnhandledSignal)
	}
	return m.moveTo(st, target), nil
}

func (m *Machine) checkOwnership(st *domain.SessionState, action string) error {
	if st == nil {
		return &domain.IllegalTransitionError{Action: action, Reason: "no session state"}
	}
	if st.ProcedureID != m.def.ID {
		return &domain.IllegalTransitionError{
			Action: action,
			StepID: st.StepID,
			Reason: fmt.Sprintf("state belongs to procedure %q", st.ProcedureID),
		}
	}
	if !st.Active() {
		return &domain.IllegalTransitionError{
			Action: action,
			StepID: st.StepID,
			Reason: fmt.Sprintf("session is %s", st.Status),
		}
	}
	if _, ok := m.steps[st.StepID]; !ok {
		return &domain.IllegalTransitionError{Action: action, StepID: st.StepID, Reason: "unknown step"}
	}
	return nil
}

func (m *Machine) match(step domain.Step, action string, result domain.ActionOutcome) (domain.Transition, bool) {
	var fallback *domain.Transition
	for i := range step.Transitions {
		t := step.Transitions[i]
		if t.Action != action || t.Outcome() != result.Tag {
			continue
		}
		if len(t.When) == 0 {
			if fallback == nil {
				fallback = &t
			}
			continue
		}
		if whenMatches(t.When, result.ContextDelta) {
			return t, true
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return domain.Transition{}, false
}

func (m *Machine) moveTo(st *domain.SessionState, target string) domain.Step {
	if st.StepID != target {
		st.History = append(st.History, target)
	}
	st.StepID = target
	st.Sequence++

	next := m.steps[target]
	if next.IsTerminal() {
		st.Status = domain.StatusCompleted
	}
	return next
}

func whenMatches(when, delta map[string]any) bool {
	for k, want := range when {
		got, ok := delta[k]
		if !ok || !sameValue(want, got) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	fa, okA := number(a)
	fb, okB := number(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// preconditionsHold evaluates context tags: "key" requires a set, non-empty
// value and "!key" requires the opposite.
func preconditionsHold(preconditions []string, ctx map[string]any) bool {
	for _, p := range preconditions {
		if len(p) > 1 && p[0] == '!' {
			if truthy(ctx[p[1:]]) {
				return false
			}
			continue
		}
		if !truthy(ctx[p]) {
			return false
		}
	}
	return true
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		return true
	}
}
