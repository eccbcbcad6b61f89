package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/neurosurgery/actionbridge/pkg/ports"
)

// Journal implements ports.Journal in memory.
type Journal struct {
	mu      sync.RWMutex
	entries map[string][]ports.JournalEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{entries: make(map[string][]ports.JournalEntry)}
}

// Append records entry.
func (j *Journal) Append(ctx context.Context, entry ports.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.SessionID] = append(j.entries[entry.SessionID], entry)
	return nil
}

// Entries returns a copy of the session's entries.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]ports.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]ports.JournalEntry(nil), j.entries[sessionID]...), nil
}

// Sessions returns the journaled session ids, sorted.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := make([]string, 0, len(j.entries))
	for id := range j.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
