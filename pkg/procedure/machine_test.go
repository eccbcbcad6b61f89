package procedure_test

import (
	"errors"
	"testing"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/dsl"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/neurosurgery/actionbridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog(t *testing.T, specs ...domain.ActionSpec) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.RegisterAll(specs...))
	return r
}

func imaging() *domain.Procedure {
	return dsl.New("imaging").
		Step("init").Go("loadVolume", "annotate").
		Step("annotate").
		Stay("placeFiducial").
		Enable("segment").
		Branch("segment", map[string]any{"quality": "poor"}, "annotate").
		Go("segment", "done").
		Fail("segment", "init").
		On("abort", "done").
		Step("done").Terminal().
		Builder().MustBuild()
}

func imagingCatalog(t *testing.T) *registry.Registry {
	return catalog(t,
		domain.ActionSpec{Name: "loadVolume"},
		domain.ActionSpec{Name: "placeFiducial", Preconditions: []string{"volume"}},
		domain.ActionSpec{Name: "segment", Preconditions: []string{"volume", "!locked"}},
	)
}

func TestLoad_Valid(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, "imaging", m.ID())
	assert.Len(t, m.Steps(), 3)

	st := m.Start("s1")
	assert.Equal(t, "init", st.StepID)
	assert.Equal(t, domain.StatusActive, st.Status)
	assert.Equal(t, []string{"loadVolume"}, m.CurrentlyEnabled(st))
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]struct {
		def  *domain.Procedure
		want string
	}{
		"no initial step": {
			def:  &domain.Procedure{ID: "p", Steps: []domain.Step{{ID: "a"}}},
			want: "no initial step",
		},
		"missing initial step": {
			def:  &domain.Procedure{ID: "p", Initial: "x", Steps: []domain.Step{{ID: "a"}}},
			want: `initial step "x" not found`,
		},
		"unreachable step": {
			def: &domain.Procedure{ID: "p", Initial: "a", Steps: []domain.Step{
				{ID: "a", Signals: map[string]string{"next": "b"}},
				{ID: "b"},
				{ID: "island"},
			}},
			want: `step "island" is unreachable from "a"`,
		},
		"enabled action without success transition": {
			def: &domain.Procedure{ID: "p", Initial: "a", Steps: []domain.Step{
				{ID: "a", Actions: []string{"loadVolume"}},
			}},
			want: `action "loadVolume" has no unconditional success transition`,
		},
		"unknown action": {
			def: &domain.Procedure{ID: "p", Initial: "a", Steps: []domain.Step{
				{ID: "a", Actions: []string{"teleport"}, Transitions: []domain.Transition{{Action: "teleport", To: "a"}}},
			}},
			want: `enables unknown action "teleport"`,
		},
		"duplicate step": {
			def:  &domain.Procedure{ID: "p", Initial: "a", Steps: []domain.Step{{ID: "a"}, {ID: "a"}}},
			want: `duplicate step "a"`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := procedure.Load(tc.def, imagingCatalog(t))
			assert.Nil(t, m)

			var invalid *domain.InvalidProcedureError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Contains(t, invalid.Error(), tc.want)
		})
	}
}

func TestAdvance_Success(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)
	st := m.Start("s1")

	next, err := m.Advance(st, "loadVolume", domain.Succeeded("ok", map[string]any{"volume": "ct.nrrd"}))
	require.NoError(t, err)
	assert.Equal(t, "annotate", next.ID)
	assert.Equal(t, "annotate", st.StepID)
	assert.Equal(t, uint64(1), st.Sequence)
	assert.Equal(t, []string{"init", "annotate"}, st.History)
	assert.Equal(t, "ct.nrrd", st.Context["volume"])
	assert.ElementsMatch(t, []string{"placeFiducial", "segment"}, m.CurrentlyEnabled(st))

	// Self transition keeps history flat but still counts.
	_, err = m.Advance(st, "placeFiducial", domain.Succeeded("ok", nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Sequence)
	assert.Len(t, st.History, 2)
}

func TestAdvance_Preconditions(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)

	st := m.Start("s1")
	st.StepID = "annotate"
	assert.Empty(t, m.CurrentlyEnabled(st), "volume not loaded yet")

	require.NoError(t, st.MergeContext(map[string]any{"volume": "ct.nrrd", "locked": true}))
	assert.Equal(t, []string{"placeFiducial"}, m.CurrentlyEnabled(st))
	assert.False(t, m.IsEnabled(st, "segment"))
}

func TestAdvance_ConditionalAndTerminal(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)
	st := m.Start("s1")
	_, err = m.Advance(st, "loadVolume", domain.Succeeded("", map[string]any{"volume": "v"}))
	require.NoError(t, err)

	next, err := m.Advance(st, "segment", domain.Succeeded("", map[string]any{"quality": "poor"}))
	require.NoError(t, err)
	assert.Equal(t, "annotate", next.ID)

	next, err = m.Advance(st, "segment", domain.Succeeded("", map[string]any{"quality": "good"}))
	require.NoError(t, err)
	assert.Equal(t, "done", next.ID)
	assert.True(t, next.IsTerminal())
	assert.Equal(t, domain.StatusCompleted, st.Status)
	assert.Empty(t, m.CurrentlyEnabled(st))

	_, err = m.Advance(st, "segment", domain.Succeeded("", nil))
	var illegal *domain.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))
}

func TestAdvance_Failures(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)
	st := m.Start("s1")

	var illegal *domain.IllegalTransitionError
	_, err = m.Advance(st, "loadVolume", domain.ActionOutcome{Tag: domain.OutcomeFailed})
	require.True(t, errors.As(err, &illegal), "no failure transition from init")
	assert.Equal(t, "init", st.StepID)
	assert.Zero(t, st.Sequence)

	_, err = m.Advance(st, "loadVolume", domain.Succeeded("", map[string]any{"volume": "v"}))
	require.NoError(t, err)

	assert.True(t, m.HasTransition(st, "segment", domain.OutcomeFailed))
	next, err := m.Advance(st, "segment", domain.ActionOutcome{Tag: domain.OutcomeFailed})
	require.NoError(t, err)
	assert.Equal(t, "init", next.ID)
}

func TestAdvance_TypeChangeLeavesStateUntouched(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)
	st := m.Start("s1")
	require.NoError(t, st.MergeContext(map[string]any{"volume": 3}))

	_, err = m.Advance(st, "loadVolume", domain.Succeeded("", map[string]any{"volume": "ct.nrrd"}))
	var typeErr *domain.ContextTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "init", st.StepID)
	assert.Zero(t, st.Sequence)
}

func TestSignal(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)
	st := m.Start("s1")

	_, err = m.Signal(st, "abort")
	assert.ErrorIs(t, err, domain.ErrUnhandledSignal)

	_, err = m.Advance(st, "loadVolume", domain.Succeeded("", nil))
	require.NoError(t, err)

	next, err := m.Signal(st, "abort")
	require.NoError(t, err)
	assert.Equal(t, "done", next.ID)
	assert.Equal(t, domain.StatusCompleted, st.Status)
}

func TestAdvance_ForeignState(t *testing.T) {
	m, err := procedure.Load(imaging(), imagingCatalog(t))
	require.NoError(t, err)

	st := domain.NewSessionState("s1", "other", "init")
	_, err = m.Advance(st, "loadVolume", domain.Succeeded("", nil))
	var illegal *domain.IllegalTransitionError
	assert.True(t, errors.As(err, &illegal))
	assert.Nil(t, m.CurrentlyEnabled(st))
}
