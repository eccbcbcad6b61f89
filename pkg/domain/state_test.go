package domain_test

import (
	"errors"
	"testing"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeContext_TypeStable(t *testing.T) {
	st := domain.NewSessionState("s1", "proc", "init")

	require.NoError(t, st.MergeContext(map[string]any{"volume": "ct.nrrd", "depth": 4.5}))
	require.NoError(t, st.MergeContext(map[string]any{"depth": 7}), "int and float are both numbers")

	err := st.MergeContext(map[string]any{"volume": "mr.nrrd", "depth": "deep"})
	var typeErr *domain.ContextTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "depth", typeErr.Key)
	assert.Equal(t, "number", typeErr.Previous)
	assert.Equal(t, "string", typeErr.Got)

	assert.Equal(t, "ct.nrrd", st.Context["volume"], "a rejected delta must not be partially applied")
	assert.Equal(t, 7, st.Context["depth"])
}

func TestMergeContext_NullIsAKind(t *testing.T) {
	st := domain.NewSessionState("s1", "proc", "init")
	require.NoError(t, st.MergeContext(map[string]any{"fiducial": nil}))
	assert.Error(t, st.MergeContext(map[string]any{"fiducial": []any{1.0, 2.0}}))
}

func TestClone_IsIndependent(t *testing.T) {
	st := domain.NewSessionState("s1", "proc", "init")
	st.Tokens["t1"] = 0
	require.NoError(t, st.MergeContext(map[string]any{"a": 1}))

	cp := st.Clone()
	cp.Context["a"] = 2
	cp.Tokens["t2"] = 1
	cp.History = append(cp.History, "next")

	assert.Equal(t, 1, st.Context["a"])
	assert.NotContains(t, st.Tokens, "t2")
	assert.Equal(t, []string{"init"}, st.History)
}

func TestKindOf(t *testing.T) {
	cases := map[string]any{
		"string": "x",
		"number": uint8(3),
		"bool":   false,
		"array":  []string{"a"},
		"object": map[string]any{},
		"null":   nil,
	}
	for want, v := range cases {
		assert.Equal(t, want, domain.KindOf(v), "value %v", v)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.OutcomeSucceeded, domain.Classify(nil))
	assert.Equal(t, domain.OutcomeRejected, domain.Classify(&domain.ValidationError{Action: "a", Err: errors.New("x")}))
	assert.Equal(t, domain.OutcomeRejected, domain.Classify(&domain.IllegalTransitionError{Action: "a"}))
	assert.Equal(t, domain.OutcomeRejected, domain.Classify(&domain.DuplicateTokenError{Token: "t"}))
	assert.Equal(t, domain.OutcomeFailed, domain.Classify(&domain.HostExecutionFailure{Action: "a", Err: &domain.TimeoutError{Action: "a"}}))
	assert.Equal(t, domain.OutcomeFailed, domain.Classify(&domain.ContextTypeError{Key: "k"}))
}

func TestFailed_DoesNotDoubleWrap(t *testing.T) {
	inner := &domain.HostExecutionFailure{Action: "move_drill", Err: errors.New("stalled")}
	out := domain.Failed("move_drill", inner)

	assert.Equal(t, domain.OutcomeFailed, out.Tag)
	assert.Same(t, inner, out.Err)
}

func TestDuration_Text(t *testing.T) {
	var d domain.Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, "1.5s", d.Std().String())
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
