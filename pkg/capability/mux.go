package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

var errUnknownAction = errors.New("unknown action")

// HandlerFunc performs one action.
type HandlerFunc func(ctx context.Context, params map[string]any) domain.ActionOutcome

// Mux routes actions to handlers by name. It implements ports.CapabilityAdapter.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for action, replacing any previous handler.
func (m *Mux) Handle(action string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = h
}

// Actions lists the handled action names.
func (m *Mux) Actions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Perform dispatches to the registered handler.
func (m *Mux) Perform(ctx context.Context, action string, params map[string]any) domain.ActionOutcome {
	m.mu.RLock()
	h, ok := m.handlers[action]
	m.mu.RUnlock()

	if !ok {
		return domain.Failed(action, errUnknownAction)
	}
	return h(ctx, params)
}

// Typed builds a handler that decodes parameters into T before calling fn.
// fn returns the result message, an optional context delta and a host error.
func Typed[T any](action string, fn func(ctx context.Context, in T) (string, map[string]any, error)) HandlerFunc {
	return func(ctx context.Context, params map[string]any) domain.ActionOutcome {
		var in T
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &in,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return domain.Failed(action, err)
		}
		if err := decoder.Decode(params); err != nil {
			return domain.Failed(action, fmt.Errorf("decode parameters: %w", err))
		}

		msg, delta, err := fn(ctx, in)
		if err != nil {
			return domain.Failed(action, err)
		}
		return domain.Succeeded(msg, delta)
	}
}
