package domain

import (
	"fmt"
	"time"
)

// Parameter describes one typed input of an action.
type Parameter struct {
	Name        string   `json:"name" yaml:"name" mapstructure:"name"`
	Type        string   `json:"type" yaml:"type" mapstructure:"type"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Minimum     *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty" mapstructure:"minimum"`
	Maximum     *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty" mapstructure:"maximum"`
	Enum        []any    `json:"enum,omitempty" yaml:"enum,omitempty" mapstructure:"enum"`
}

// ActionSpec declares an operation the agent may request.
type ActionSpec struct {
	Name        string      `json:"name" yaml:"name" mapstructure:"name"`
	Description string      `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`

	// Preconditions are context tags evaluated before the action is offered.
	// "key" requires the key to be set, "!key" requires it to be absent.
	Preconditions []string `json:"preconditions,omitempty" yaml:"preconditions,omitempty" mapstructure:"preconditions"`

	// Exclusive marks a non-reentrant capability (e.g. robotic motion).
	// Only one session may invoke an exclusive action at a time.
	Exclusive bool `json:"exclusive,omitempty" yaml:"exclusive,omitempty" mapstructure:"exclusive"`

	// Timeout bounds the host call. Zero uses the executor default.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// Clone returns a deep copy of the spec.
func (s ActionSpec) Clone() ActionSpec {
	out := s
	if s.Parameters != nil {
		out.Parameters = make([]Parameter, len(s.Parameters))
		for i, p := range s.Parameters {
			cp := p
			if p.Minimum != nil {
				v := *p.Minimum
				cp.Minimum = &v
			}
			if p.Maximum != nil {
				v := *p.Maximum
				cp.Maximum = &v
			}
			if p.Enum != nil {
				cp.Enum = append([]any(nil), p.Enum...)
			}
			out.Parameters[i] = cp
		}
	}
	if s.Preconditions != nil {
		out.Preconditions = append([]string(nil), s.Preconditions...)
	}
	return out
}

// Duration is a time.Duration that reads and writes as text ("10s").
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}
