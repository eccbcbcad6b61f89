package ports

import (
	"context"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// JournalEntry is one audited action request and its result.
type JournalEntry struct {
	SessionID string               `json:"session_id"`
	Sequence  uint64               `json:"sequence"`
	Timestamp time.Time            `json:"timestamp"`
	FromStep  string               `json:"from_step"`
	Request   domain.ActionRequest `json:"request"`
	Result    domain.ActionResult  `json:"result"`
}

// Journal is an append-only audit trail of action results.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	// Entries returns the entries of a session in append order.
	Entries(ctx context.Context, sessionID string) ([]JournalEntry, error)
	// Sessions returns the ids of every journaled session, sorted.
	Sessions(ctx context.Context) ([]string, error)
}
