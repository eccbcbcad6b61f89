package loam

import (
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// ProcedureMetadata is the frontmatter (or JSON/YAML body) of a library document.
// A document with steps is a procedure; a document with only actions is an
// action catalog that procedures can import by id.
type ProcedureMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	Initial     string `json:"initial" mapstructure:"initial"`

	// Actions holds inline action maps or string references to catalog documents.
	Actions []any          `json:"actions" mapstructure:"actions"`
	Steps   []StepMetadata `json:"steps" mapstructure:"steps"`
}

// ActionMetadata mirrors domain.ActionSpec with a textual timeout.
type ActionMetadata struct {
	Name          string             `mapstructure:"name"`
	Description   string             `mapstructure:"description"`
	Parameters    []domain.Parameter `mapstructure:"parameters"`
	Preconditions []string           `mapstructure:"preconditions"`
	Exclusive     bool               `mapstructure:"exclusive"`
	Timeout       string             `mapstructure:"timeout"`
}

// StepMetadata mirrors domain.Step.
type StepMetadata struct {
	ID          string              `json:"id" mapstructure:"id"`
	Name        string              `json:"name" mapstructure:"name"`
	Description string              `json:"description" mapstructure:"description"`
	Actions     []string            `json:"actions" mapstructure:"actions"`
	Transitions []domain.Transition `json:"transitions" mapstructure:"transitions"`
	Signals     map[string]string   `json:"signals" mapstructure:"signals"`
	Force       *domain.ForcePrompt `json:"force" mapstructure:"force"`

	// Next is shorthand for signals: {next: <step>}.
	Next string `json:"next" mapstructure:"next"`
}
