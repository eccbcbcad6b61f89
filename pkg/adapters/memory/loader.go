package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Loader implements ports.ProcedureLoader over definitions held in memory.
type Loader struct {
	mu    sync.RWMutex
	procs map[string]*domain.Procedure
}

// NewLoader creates a loader holding defs, keyed by their id.
func NewLoader(defs ...*domain.Procedure) (*Loader, error) {
	l := &Loader{procs: make(map[string]*domain.Procedure, len(defs))}
	for _, def := range defs {
		if err := l.Add(def); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add stores def. Ids must be unique.
func (l *Loader) Add(def *domain.Procedure) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("procedure id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.procs[def.ID]; exists {
		return fmt.Errorf("duplicate procedure id: %s", def.ID)
	}
	cp := *def
	l.procs[def.ID] = &cp
	return nil
}

// Load returns the definition with the given id.
func (l *Loader) Load(ctx context.Context, id string) (*domain.Procedure, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	def, ok := l.procs[id]
	if !ok {
		return nil, fmt.Errorf("procedure not found: %s", id)
	}
	cp := *def
	return &cp, nil
}

// List returns the ids of all definitions.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.procs))
	for id := range l.procs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
