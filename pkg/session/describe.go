package session

import (
	"fmt"
	"strings"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/neuro"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
)

// Lifecycle notices sent to the agent.
const (
	MsgProcedureComplete = "procedure complete"
	MsgSessionTerminated = "session terminated"
)

// StepContext describes the procedure and current step for the agent.
func StepContext(m *procedure.Machine, st *domain.SessionState, enabled []string) string {
	def := m.Definition()
	step, _ := m.Step(st.StepID)

	var b strings.Builder
	fmt.Fprintf(&b, "Procedure: %s.", displayName(def.Name, def.ID))
	if def.Description != "" {
		fmt.Fprintf(&b, " %s", def.Description)
	}
	fmt.Fprintf(&b, " Current step: %s.", displayName(step.Name, step.ID))
	if step.Description != "" {
		fmt.Fprintf(&b, " %s", step.Description)
	}
	if len(enabled) > 0 {
		fmt.Fprintf(&b, " Available actions: %s.", strings.Join(enabled, ", "))
	}
	return b.String()
}

// ResultContext is the silent status line sent after every result.
func ResultContext(res domain.ActionResult) string {
	msg := fmt.Sprintf("Step: %s (sequence %d).", res.StepID, res.Sequence)
	if len(res.ContextDelta) > 0 {
		msg += " Context: " + neuro.FormatContext(res.ContextDelta) + "."
	}
	return msg
}

func displayName(name, id string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
