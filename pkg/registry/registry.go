package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/schema"
)

// EventKind distinguishes registry mutations.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventUnregistered EventKind = "unregistered"
)

// Event notifies subscribers that the catalog changed.
type Event struct {
	Kind  EventKind
	Names []string
}

type entry struct {
	spec   domain.ActionSpec
	params schema.Params
}

// Registry holds the catalog of actions the agent may ever request.
// It is safe for concurrent use and shared by all sessions.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]entry

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	buffer int
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for dropped notifications.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithBuffer sets the per-subscriber event buffer.
func WithBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		actions: make(map[string]entry),
		subs:    make(map[int]chan Event),
		buffer:  16,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an action to the catalog.
// It fails with DuplicateActionError if the name exists.
func (r *Registry) Register(spec domain.ActionSpec) error {
	params, err := Compile(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.actions[spec.Name]; exists {
		r.mu.Unlock()
		return &domain.DuplicateActionError{Action: spec.Name}
	}
	r.actions[spec.Name] = entry{spec: spec.Clone(), params: params}
	r.mu.Unlock()

	r.publish(Event{Kind: EventRegistered, Names: []string{spec.Name}})
	return nil
}

// RegisterAll registers specs in order and stops at the first error.
func (r *Registry) RegisterAll(specs ...domain.ActionSpec) error {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes an action.
// It fails with UnknownActionError if the name is absent.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	if _, exists := r.actions[name]; !exists {
		r.mu.Unlock()
		return &domain.UnknownActionError{Action: name}
	}
	delete(r.actions, name)
	r.mu.Unlock()

	r.publish(Event{Kind: EventUnregistered, Names: []string{name}})
	return nil
}

// Lookup returns a copy of the registered spec.
func (r *Registry) Lookup(name string) (domain.ActionSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.actions[name]
	if !ok {
		return domain.ActionSpec{}, &domain.UnknownActionError{Action: name}
	}
	return e.spec.Clone(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// List returns every registered spec sorted by name.
func (r *Registry) List() []domain.ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ActionSpec, 0, len(r.actions))
	for _, e := range r.actions {
		out = append(out, e.spec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks params against the action's schema.
func (r *Registry) Validate(name string, params map[string]any) error {
	r.mu.RLock()
	e, ok := r.actions[name]
	r.mu.RUnlock()

	if !ok {
		return &domain.UnknownActionError{Action: name}
	}
	if err := e.params.Validate(params); err != nil {
		return &domain.ValidationError{Action: name, Err: err}
	}
	return nil
}

// JSONSchema returns the parameter schema advertised to agents.
func (r *Registry) JSONSchema(name string) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.actions[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.UnknownActionError{Action: name}
	}
	return e.params.JSONSchema(), nil
}

// Subscribe returns a channel of catalog events and a cancel function.
// Events are delivered without blocking the mutating caller; when a
// subscriber's buffer is full the event is dropped, so subscribers should
// treat any event as a cue to resynchronize from List.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan Event, r.buffer)
	r.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Warn("Registry event dropped", "subscriber", id, "kind", ev.Kind, "actions", ev.Names)
		}
	}
}

// Compile turns the declarative parameter list of spec into a schema.
func Compile(spec domain.ActionSpec) (schema.Params, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("action name is required")
	}

	params := make(schema.Params, 0, len(spec.Parameters))
	seen := make(map[string]bool, len(spec.Parameters))

	for _, p := range spec.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("action %q: parameter name is required", spec.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("action %q: duplicate parameter %q", spec.Name, p.Name)
		}
		seen[p.Name] = true

		typ, err := schema.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("action %q parameter %q: %w", spec.Name, p.Name, err)
		}

		if p.Minimum != nil || p.Maximum != nil {
			switch typ.(type) {
			case *schema.IntType, *schema.FloatType:
			default:
				return nil, fmt.Errorf("action %q parameter %q: range requires a numeric type", spec.Name, p.Name)
			}
			if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
				return nil, fmt.Errorf("action %q parameter %q: minimum exceeds maximum", spec.Name, p.Name)
			}
			typ = schema.Range(typ, p.Minimum, p.Maximum)
		}

		if len(p.Enum) > 0 {
			for _, v := range p.Enum {
				if err := typ.Validate(v); err != nil {
					return nil, fmt.Errorf("action %q parameter %q: enum value %v: %w", spec.Name, p.Name, v, err)
				}
			}
			typ = schema.Enum(typ, p.Enum...)
		}

		params = append(params, schema.Param{
			Name:        p.Name,
			Type:        typ,
			Required:    p.Required,
			Description: p.Description,
		})
	}
	return params, nil
}
