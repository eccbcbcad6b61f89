package procedure

import (
	"fmt"
	"sort"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Validate checks a definition for structural problems: a missing initial
// step, dangling targets, actions without a success transition, unknown
// actions and steps unreachable from the initial step.
// All problems are reported together in a *domain.InvalidProcedureError.
// catalog may be nil, in which case action names are not checked.
func Validate(def *domain.Procedure, catalog Catalog) error {
	if def == nil {
		return &domain.InvalidProcedureError{Problems: []string{"definition is empty"}}
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if def.ID == "" {
		add("procedure id is required")
	}

	steps := make(map[string]domain.Step, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			add("step without id")
			continue
		}
		if _, dup := steps[s.ID]; dup {
			add("duplicate step %q", s.ID)
			continue
		}
		steps[s.ID] = s
	}

	if def.Initial == "" {
		add("no initial step")
	} else if _, ok := steps[def.Initial]; !ok {
		add("initial step %q not found", def.Initial)
	}

	for _, s := range def.Steps {
		if s.ID == "" {
			continue
		}
		for _, a := range s.Actions {
			if catalog != nil && !catalog.Has(a) {
				add("step %q enables unknown action %q", s.ID, a)
			}
		}

		for _, t := range s.Transitions {
			if !s.Enables(t.Action) {
				add("step %q: transition names action %q which the step does not enable", s.ID, t.Action)
			}
			if o := t.Outcome(); o != domain.OutcomeSucceeded && o != domain.OutcomeFailed {
				add("step %q: transition on %q uses outcome %q", s.ID, t.Action, o)
			}
			if _, ok := steps[t.To]; !ok {
				add("step %q: transition on %q targets unknown step %q", s.ID, t.Action, t.To)
			}
		}

		for _, a := range s.Actions {
			if !hasFallback(s, a) {
				add("step %q: action %q has no unconditional success transition", s.ID, a)
			}
		}

		signals := make([]string, 0, len(s.Signals))
		for signal := range s.Signals {
			signals = append(signals, signal)
		}
		sort.Strings(signals)
		for _, signal := range signals {
			if target := s.Signals[signal]; steps[target].ID == "" {
				add("step %q: signal %q targets unknown step %q", s.ID, signal, target)
			}
		}
	}

	if _, ok := steps[def.Initial]; ok {
		reached := reachable(def.Initial, steps)
		for _, s := range def.Steps {
			if s.ID != "" && !reached[s.ID] {
				add("step %q is unreachable from %q", s.ID, def.Initial)
			}
		}
	}

	if len(problems) > 0 {
		return &domain.InvalidProcedureError{ProcedureID: def.ID, Problems: problems}
	}
	return nil
}

func hasFallback(s domain.Step, action string) bool {
	for _, t := range s.Transitions {
		if t.Action == action && t.Outcome() == domain.OutcomeSucceeded && len(t.When) == 0 {
			return true
		}
	}
	return false
}

// reachable crawls transitions and signals breadth-first from start.
func reachable(start string, steps map[string]domain.Step) map[string]bool {
	visited := make(map[string]bool, len(steps))
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		s, ok := steps[current]
		if !ok {
			continue
		}
		for _, t := range s.Transitions {
			if !visited[t.To] {
				queue = append(queue, t.To)
			}
		}
		for _, target := range s.Signals {
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}
	return visited
}
