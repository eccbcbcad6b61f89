package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/adapters/file"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.ProcedureLoader = (*file.Loader)(nil)
	_ ports.Watchable       = (*file.Loader)(nil)
)

const biopsyJSON = `{
  "id": "biopsy",
  "actions": [{"name": "take_sample", "description": "Take a sample.", "timeout": "2s"}],
  "steps": [
    {"id": "sample", "actions": ["take_sample"], "transitions": [{"action": "take_sample", "to": "done"}]},
    {"id": "done"}
  ]
}`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadProcedure_ExampleIsValid(t *testing.T) {
	def, err := file.ReadProcedure(filepath.Join("..", "..", "..", "examples", "ventriculostomy.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ventriculostomy", def.ID)
	assert.Equal(t, "startup", def.Initial)
	require.NoError(t, procedure.Validate(def, nil))

	var move domain.ActionSpec
	for _, a := range def.Actions {
		if a.Name == "move_drill" {
			move = a
		}
	}
	assert.True(t, move.Exclusive)
	assert.Equal(t, 10*time.Second, move.Timeout.Std())
	require.Len(t, move.Parameters, 2)
	assert.Equal(t, []any{"left", "right", "forward", "backward"}, move.Parameters[1].Enum)
}

func TestDecodeProcedure_JSON(t *testing.T) {
	def, err := file.DecodeProcedure([]byte(biopsyJSON), ".json")
	require.NoError(t, err)

	assert.Equal(t, "sample", def.Initial, "initial defaults to the first step")
	require.Len(t, def.Actions, 1)
	assert.Equal(t, 2*time.Second, def.Actions[0].Timeout.Std())
}

func TestDecodeProcedure_Invalid(t *testing.T) {
	_, err := file.DecodeProcedure([]byte("steps: [oops"), ".yaml")
	assert.Error(t, err)

	_, err = file.DecodeProcedure([]byte(`{"actions":[{"name":"a","timeout":"soon"}]}`), ".json")
	assert.Error(t, err)
}

func TestLoader_ListAndLoad(t *testing.T) {
	dir := t.TempDir()
	loader := file.NewLoader([]string{
		write(t, dir, "biopsy.json", biopsyJSON),
		write(t, dir, "unnamed.yml", "steps:\n  - id: only\n"),
	})
	ctx := context.Background()

	ids, err := loader.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"biopsy", "unnamed"}, ids)

	def, err := loader.Load(ctx, "unnamed")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", def.ID)

	_, err = loader.Load(ctx, "missing")
	assert.Error(t, err)
}

func TestLoader_Collision(t *testing.T) {
	dir := t.TempDir()
	loader := file.NewLoader([]string{
		write(t, dir, "a.json", biopsyJSON),
		write(t, dir, "b.json", biopsyJSON),
	})

	_, err := loader.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "biopsy.json", biopsyJSON)
	loader := file.NewLoader([]string{path}, file.WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	write(t, dir, "unrelated.txt", "ignored")
	write(t, dir, "biopsy.json", biopsyJSON)

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
