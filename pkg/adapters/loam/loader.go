package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/mitchellh/mapstructure"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// SignalNext is the signal bound by the step "next" shorthand.
const SignalNext = "next"

// Loader reads procedure definitions from a Loam document library.
type Loader struct {
	Repo *loam.TypedRepository[ProcedureMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[ProcedureMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Load implements ports.ProcedureLoader.
// The document body, when present, becomes the description of a procedure
// that declares none.
func (l *Loader) Load(ctx context.Context, id string) (*domain.Procedure, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}
	meta := doc.Data
	if len(meta.Steps) == 0 {
		return nil, fmt.Errorf("document %s declares no steps", id)
	}

	rawID := meta.ID
	if rawID == "" {
		rawID = doc.ID
	}

	actions, err := l.resolveActions(ctx, meta.Actions, map[string]bool{trimExtension(rawID): true})
	if err != nil {
		return nil, fmt.Errorf("error resolving actions for %s: %w", id, err)
	}

	def := &domain.Procedure{
		ID:          trimExtension(rawID),
		Name:        meta.Name,
		Description: meta.Description,
		Initial:     meta.Initial,
		Actions:     actions,
		Steps:       make([]domain.Step, 0, len(meta.Steps)),
	}
	if def.Description == "" {
		def.Description = strings.TrimSpace(doc.Content)
	}
	for _, s := range meta.Steps {
		def.Steps = append(def.Steps, convertStep(s))
	}
	if def.Initial == "" && len(def.Steps) > 0 {
		def.Initial = def.Steps[0].ID
	}
	return def, nil
}

func convertStep(s StepMetadata) domain.Step {
	step := domain.Step{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Actions:     s.Actions,
		Transitions: s.Transitions,
		Force:       s.Force,
	}
	if len(s.Signals) > 0 || s.Next != "" {
		step.Signals = make(map[string]string, len(s.Signals)+1)
		for k, v := range s.Signals {
			step.Signals[k] = v
		}
		if s.Next != "" {
			step.Signals[SignalNext] = s.Next
		}
	}
	return step
}

// resolveActions resolves inline action maps and catalog imports.
// Later entries shadow earlier ones with the same name, so local
// definitions listed after an import override it.
func (l *Loader) resolveActions(ctx context.Context, raw []any, visited map[string]bool) ([]domain.ActionSpec, error) {
	byName := make(map[string]domain.ActionSpec)
	var order []string

	put := func(spec domain.ActionSpec) {
		if _, exists := byName[spec.Name]; !exists {
			order = append(order, spec.Name)
		}
		byName[spec.Name] = spec
	}

	for _, item := range raw {
		switch v := item.(type) {
		case string:
			ref := trimExtension(v)
			if visited[ref] {
				return nil, fmt.Errorf("cycle detected in action imports: %s", ref)
			}
			visited[ref] = true

			doc, err := l.Repo.Get(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to load action catalog '%s': %w", ref, err)
			}
			imported, err := l.resolveActions(ctx, doc.Data.Actions, visited)
			delete(visited, ref)
			if err != nil {
				return nil, err
			}
			for _, spec := range imported {
				put(spec)
			}

		case map[string]any, map[any]any:
			var am ActionMetadata
			if err := mapstructure.Decode(v, &am); err != nil {
				return nil, fmt.Errorf("failed to decode inline action: %w", err)
			}
			spec, err := am.spec()
			if err != nil {
				return nil, err
			}
			put(spec)

		default:
			return nil, fmt.Errorf("invalid action definition type: %T", v)
		}
	}

	out := make([]domain.ActionSpec, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

func (am ActionMetadata) spec() (domain.ActionSpec, error) {
	if am.Name == "" {
		return domain.ActionSpec{}, fmt.Errorf("inline action missing name")
	}
	spec := domain.ActionSpec{
		Name:          am.Name,
		Description:   am.Description,
		Parameters:    am.Parameters,
		Preconditions: am.Preconditions,
		Exclusive:     am.Exclusive,
	}
	if am.Timeout != "" {
		if err := spec.Timeout.UnmarshalText([]byte(am.Timeout)); err != nil {
			return domain.ActionSpec{}, fmt.Errorf("action %s: %w", am.Name, err)
		}
	}
	return spec, nil
}

// List implements ports.ProcedureLoader. Catalog documents without steps
// are not procedures and are skipped.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID

		if len(doc.Data.Steps) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: a pending notification already covers this one.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
