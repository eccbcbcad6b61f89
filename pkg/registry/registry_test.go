package registry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func moveDrill() domain.ActionSpec {
	return domain.ActionSpec{
		Name:        "move_drill",
		Description: "Move the drill",
		Exclusive:   true,
		Parameters: []domain.Parameter{
			{Name: "distance", Type: "number", Required: true, Minimum: ptr(0), Maximum: ptr(20)},
			{Name: "direction", Type: "string", Required: true, Enum: []any{"left", "right", "forward", "backward"}},
		},
	}
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(moveDrill()))

	spec, err := r.Lookup("move_drill")
	require.NoError(t, err)
	assert.Equal(t, "Move the drill", spec.Description)
	assert.True(t, r.Has("move_drill"))

	// Returned specs are copies.
	spec.Parameters[0].Name = "mutated"
	again, _ := r.Lookup("move_drill")
	assert.Equal(t, "distance", again.Parameters[0].Name)
}

func TestRegistry_Errors(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(moveDrill()))

	var dup *domain.DuplicateActionError
	assert.True(t, errors.As(r.Register(moveDrill()), &dup))

	var unknown *domain.UnknownActionError
	_, err := r.Lookup("pivot_drill")
	assert.True(t, errors.As(err, &unknown))
	assert.True(t, errors.As(r.Unregister("pivot_drill"), &unknown))

	require.NoError(t, r.Unregister("move_drill"))
	assert.False(t, r.Has("move_drill"))
}

func TestRegistry_RejectsMalformedSpecs(t *testing.T) {
	r := registry.New()

	cases := []domain.ActionSpec{
		{Name: ""},
		{Name: "a", Parameters: []domain.Parameter{{Name: "x", Type: "complex"}}},
		{Name: "b", Parameters: []domain.Parameter{{Name: "x", Type: "string", Minimum: ptr(1)}}},
		{Name: "c", Parameters: []domain.Parameter{{Name: "x", Type: "int", Minimum: ptr(5), Maximum: ptr(1)}}},
		{Name: "d", Parameters: []domain.Parameter{{Name: "x", Type: "string", Enum: []any{1.0}}}},
		{Name: "e", Parameters: []domain.Parameter{{Name: "x", Type: "string"}, {Name: "x", Type: "int"}}},
	}
	for _, spec := range cases {
		assert.Error(t, r.Register(spec), "spec %q", spec.Name)
	}
	assert.Empty(t, r.List())
}

func TestRegistry_Validate(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(moveDrill()))

	assert.NoError(t, r.Validate("move_drill", map[string]any{"distance": 5.0, "direction": "left"}))

	var verr *domain.ValidationError
	err := r.Validate("move_drill", map[string]any{"distance": 50.0, "direction": "left"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "move_drill", verr.Action)

	err = r.Validate("move_drill", map[string]any{"direction": "up"})
	require.True(t, errors.As(err, &verr))
}

func TestRegistry_JSONSchema(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(moveDrill()))

	s, err := r.JSONSchema("move_drill")
	require.NoError(t, err)
	assert.Equal(t, "object", s["type"])
	assert.ElementsMatch(t, []string{"distance", "direction"}, s["required"])
}

func TestRegistry_Subscribe(t *testing.T) {
	r := registry.New()
	events, cancel := r.Subscribe()

	require.NoError(t, r.Register(moveDrill()))
	require.NoError(t, r.Unregister("move_drill"))

	select {
	case ev := <-events:
		assert.Equal(t, registry.EventRegistered, ev.Kind)
		assert.Equal(t, []string{"move_drill"}, ev.Names)
	case <-time.After(time.Second):
		t.Fatal("no registered event")
	}
	ev := <-events
	assert.Equal(t, registry.EventUnregistered, ev.Kind)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)

	// Publishing after cancel must not panic.
	require.NoError(t, r.Register(moveDrill()))
}

func TestRegistry_SlowSubscriberDoesNotBlock(t *testing.T) {
	r := registry.New(registry.WithBuffer(1))
	_, cancel := r.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for _, name := range []string{"a", "b", "c"} {
			_ = r.Register(domain.ActionSpec{Name: name})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registration blocked on a full subscriber")
	}
	assert.Len(t, r.List(), 3)
}
