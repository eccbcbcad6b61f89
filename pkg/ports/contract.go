package ports

import (
	"context"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState(sessionID, "ventriculostomy", "cranial_access")
		require.NoError(t, state.MergeContext(map[string]any{"volume": "ct.nrrd", "depth_mm": 42}))
		state.Tokens["tok-1"] = 0
		state.Sequence = 3

		require.NoError(t, store.Save(ctx, sessionID, state), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.StepID, loaded.StepID)
		assert.Equal(t, state.ProcedureID, loaded.ProcedureID)
		assert.Equal(t, uint64(3), loaded.Sequence)
		assert.Equal(t, "ct.nrrd", loaded.Context["volume"])
		// JSON persistence may turn ints into floats; the kind must survive.
		assert.Equal(t, "number", domain.KindOf(loaded.Context["depth_mm"]))
		assert.Equal(t, "number", loaded.ContextTypes["depth_mm"])
		assert.Contains(t, loaded.Tokens, "tok-1")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, domain.NewSessionState(sessionID, "p", "start")))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSessionState(id1, "p", "start"))
		_ = store.Save(ctx, id2, domain.NewSessionState(id2, "p", "start"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
