package domain

import (
	"reflect"
)

// StateDiff represents the changes between two session snapshots.
// It is what the session pushes to the agent as context after a result.
type StateDiff struct {
	SessionID string `json:"session_id"`

	StepID *string        `json:"step_id,omitempty"`
	Status *SessionStatus `json:"status,omitempty"`

	// Context contains only changed or added keys.
	Context map[string]any `json:"context,omitempty"`

	// Appended holds step ids added to the history.
	Appended []string `json:"appended,omitempty"`

	Sequence uint64 `json:"sequence"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState.
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		SessionID: newState.SessionID,
		Sequence:  newState.Sequence,
	}

	if oldState == nil || oldState.StepID != newState.StepID {
		diff.StepID = &newState.StepID
	}
	if oldState == nil || oldState.Status != newState.Status {
		diff.Status = &newState.Status
	}

	diff.Context = diffContext(oldState, newState)
	diff.Appended = diffHistory(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffContext(old, new *SessionState) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Context {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Context {
			oldVal, exists := old.Context[k]
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory assumes History is append-only.
func diffHistory(old, new *SessionState) []string {
	if len(new.History) == 0 {
		return nil
	}
	if old == nil {
		return append([]string(nil), new.History...)
	}
	if len(new.History) > len(old.History) {
		return append([]string(nil), new.History[len(old.History):]...)
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.StepID == nil &&
		d.Status == nil &&
		len(d.Context) == 0 &&
		len(d.Appended) == 0
}
