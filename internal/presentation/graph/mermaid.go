package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Overlay contains session state to highlight on the graph.
type Overlay struct {
	Visited []string
	Current string
}

// OverlayFor builds an overlay from a session snapshot.
func OverlayFor(st *domain.SessionState) *Overlay {
	if st == nil {
		return nil
	}
	return &Overlay{Visited: st.History, Current: st.StepID}
}

// GenerateMermaid renders a procedure as a Mermaid flowchart.
// Shapes:
// - Initial step: ((Circle))
// - Terminal step: ([Stadium])
// - Step with a force prompt: [/Parallelogram/]
// - Default: [Rectangle]
// Failure transitions are dotted and operator signals are marked with ⚡.
func GenerateMermaid(def *domain.Procedure, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, step := range def.Steps {
		safeID := sanitizeMermaidID(step.ID)

		opener, closer := "[", "]"
		switch {
		case step.ID == def.Initial:
			opener, closer = "((", "))"
		case step.IsTerminal():
			opener, closer = "([", "])"
		case step.Force != nil:
			opener, closer = "[/", "/]"
		}

		label := step.ID
		if step.Name != "" && step.Name != step.ID {
			label = step.Name
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		for _, t := range step.Transitions {
			text := t.Action
			if len(t.When) > 0 {
				text += " " + formatWhen(t.When)
			}
			arrow := fmt.Sprintf("-- \"%s\" -->", escape(text))
			if t.Outcome() == domain.OutcomeFailed {
				arrow = fmt.Sprintf("-. \"%s ✗\" .->", escape(text))
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(t.To))
		}

		signals := make([]string, 0, len(step.Signals))
		for name := range step.Signals {
			signals = append(signals, name)
		}
		sort.Strings(signals)
		for _, name := range signals {
			fmt.Fprintf(&sb, "    %s -. ⚡ %s .-> %s\n", safeID, escape(name), sanitizeMermaidID(step.Signals[name]))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps labels readable on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Visited {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func formatWhen(when map[string]any) string {
	keys := make([]string, 0, len(when))
	for k := range when {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, when[k]))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
