package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/adapters/bolt"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_AppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := bolt.Open(path)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, j.Append(ctx, ports.JournalEntry{
			SessionID: "s1",
			Sequence:  uint64(i),
			Timestamp: time.Now(),
			FromStep:  "trajectory",
			Request: domain.ActionRequest{
				Action: "move_drill",
				Token:  "tok-" + string(rune('0'+i)),
				Params: map[string]any{"distance": 2.5, "direction": "forward"},
			},
			Result: domain.ActionResult{Outcome: domain.OutcomeSucceeded, Message: "Drill moved"},
		}))
	}
	require.NoError(t, j.Append(ctx, ports.JournalEntry{SessionID: "s0", Sequence: 1}))
	require.NoError(t, j.Close())

	j, err = bolt.Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
	assert.Equal(t, "move_drill", entries[0].Request.Action)
	assert.Equal(t, 2.5, entries[0].Request.Params["distance"])
	assert.Equal(t, domain.OutcomeSucceeded, entries[2].Result.Outcome)

	ids, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, ids)
}

func TestJournal_UnknownSession(t *testing.T) {
	j, err := bolt.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Entries(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_RejectsAnonymousEntry(t *testing.T) {
	j, err := bolt.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	assert.Error(t, j.Append(context.Background(), ports.JournalEntry{}))
}
