package ports

import (
	"context"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// CapabilityAdapter is the only call surface into the host application or device layer.
//
// Implementations must never panic or return a host fault any other way than
// as an ActionOutcome tagged failed. They should honour ctx for cancellation
// where the host operation can be abandoned safely.
type CapabilityAdapter interface {
	Perform(ctx context.Context, action string, params map[string]any) domain.ActionOutcome
}

// AdapterFunc adapts an ordinary function to CapabilityAdapter.
type AdapterFunc func(ctx context.Context, action string, params map[string]any) domain.ActionOutcome

// Perform calls f.
func (f AdapterFunc) Perform(ctx context.Context, action string, params map[string]any) domain.ActionOutcome {
	return f(ctx, action, params)
}
