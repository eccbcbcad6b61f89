package dsl

import (
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
)

// Builder manages the procedure construction.
type Builder struct {
	def   domain.Procedure
	order []string
	steps map[string]*StepBuilder
}

// New creates a builder for the procedure with the given id.
func New(id string) *Builder {
	return &Builder{
		def:   domain.Procedure{ID: id},
		steps: make(map[string]*StepBuilder),
	}
}

// Name sets the display name.
func (b *Builder) Name(name string) *Builder {
	b.def.Name = name
	return b
}

// Describe sets the procedure description.
func (b *Builder) Describe(text string) *Builder {
	b.def.Description = text
	return b
}

// Action adds specs to the procedure's action catalog.
func (b *Builder) Action(specs ...domain.ActionSpec) *Builder {
	b.def.Actions = append(b.def.Actions, specs...)
	return b
}

// Initial sets the initial step. By default the first added step is initial.
func (b *Builder) Initial(id string) *Builder {
	b.def.Initial = id
	return b
}

// Step creates a new step in the procedure.
// If the step already exists, it returns the existing builder.
func (b *Builder) Step(id string) *StepBuilder {
	if sb, ok := b.steps[id]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    domain.Step{ID: id},
		builder: b,
	}
	b.steps[id] = sb
	b.order = append(b.order, id)
	if b.def.Initial == "" {
		b.def.Initial = id
	}
	return sb
}

// Build assembles and validates the procedure definition.
// Action names are not checked against a registry here.
func (b *Builder) Build() (*domain.Procedure, error) {
	def := b.def
	def.Steps = make([]domain.Step, 0, len(b.order))
	for _, id := range b.order {
		def.Steps = append(def.Steps, b.steps[id].step)
	}

	if err := procedure.Validate(&def, nil); err != nil {
		return nil, err
	}
	return &def, nil
}

// MustBuild is like Build but panics on an invalid definition.
func (b *Builder) MustBuild() *domain.Procedure {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
