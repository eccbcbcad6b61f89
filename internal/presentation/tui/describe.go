package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// DescribeProcedure renders a procedure as markdown for operators.
func DescribeProcedure(def *domain.Procedure) string {
	var sb strings.Builder

	title := def.Name
	if title == "" {
		title = def.ID
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if def.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", def.Description)
	}
	fmt.Fprintf(&sb, "Starts at **%s**.\n\n", def.Initial)

	sb.WriteString("## Steps\n\n")
	for _, s := range def.Steps {
		name := s.ID
		if s.Name != "" {
			name = fmt.Sprintf("%s (`%s`)", s.Name, s.ID)
		}
		fmt.Fprintf(&sb, "### %s\n\n", name)
		if s.Description != "" {
			fmt.Fprintf(&sb, "%s\n\n", s.Description)
		}
		if s.IsTerminal() {
			sb.WriteString("_Terminal step._\n\n")
			continue
		}
		for _, t := range s.Transitions {
			cond := "succeeds"
			if t.Outcome() == domain.OutcomeFailed {
				cond = "fails"
			}
			if len(t.When) > 0 {
				cond += " with " + whenText(t.When)
			}
			fmt.Fprintf(&sb, "- `%s` %s → **%s**\n", t.Action, cond, t.To)
		}
		signals := make([]string, 0, len(s.Signals))
		for name := range s.Signals {
			signals = append(signals, name)
		}
		sort.Strings(signals)
		for _, name := range signals {
			fmt.Fprintf(&sb, "- operator signal `%s` → **%s**\n", name, s.Signals[name])
		}
		sb.WriteString("\n")
	}

	if len(def.Actions) > 0 {
		sb.WriteString("## Actions\n\n")
		sb.WriteString("| Action | Parameters | Notes |\n|---|---|---|\n")
		for _, a := range def.Actions {
			fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", a.Name, paramsText(a.Parameters), notesText(a))
		}
	}
	return sb.String()
}

func whenText(when map[string]any) string {
	keys := make([]string, 0, len(when))
	for k := range when {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("`%s=%v`", k, when[k]))
	}
	return strings.Join(parts, ", ")
}

func paramsText(params []domain.Parameter) string {
	if len(params) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		s := p.Name + ": " + p.Type
		if p.Required {
			s += "*"
		}
		if p.Minimum != nil || p.Maximum != nil {
			s += fmt.Sprintf(" [%s..%s]", bound(p.Minimum), bound(p.Maximum))
		}
		if len(p.Enum) > 0 {
			s += fmt.Sprintf(" %v", p.Enum)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "<br>")
}

func bound(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func notesText(a domain.ActionSpec) string {
	var notes []string
	if a.Exclusive {
		notes = append(notes, "exclusive")
	}
	if a.Timeout > 0 {
		notes = append(notes, "timeout "+a.Timeout.Std().String())
	}
	if len(a.Preconditions) > 0 {
		notes = append(notes, "requires "+strings.Join(a.Preconditions, ", "))
	}
	return strings.Join(notes, "; ")
}
