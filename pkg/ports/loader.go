package ports

import (
	"context"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// ProcedureLoader retrieves procedure definitions.
// This allows the definition source (file, directory library) to be decoupled.
type ProcedureLoader interface {
	// Load returns the definition with the given id.
	Load(ctx context.Context, id string) (*domain.Procedure, error)

	// List returns the ids of all available definitions.
	List(ctx context.Context) ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definitions change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
