package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/adapters/memory"
	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/dsl"
	"github.com/neurosurgery/actionbridge/pkg/executor"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/neurosurgery/actionbridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAdapter is a test double that records every host call.
type countingAdapter struct {
	mu      sync.Mutex
	calls   []string
	respond func(action string, params map[string]any) domain.ActionOutcome
}

func (c *countingAdapter) Perform(_ context.Context, action string, params map[string]any) domain.ActionOutcome {
	c.mu.Lock()
	c.calls = append(c.calls, action)
	c.mu.Unlock()
	if c.respond != nil {
		return c.respond(action, params)
	}
	return domain.Succeeded(action+" done", nil)
}

func (c *countingAdapter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fixture struct {
	adapter *countingAdapter
	guard   *capability.Guard
	journal *memory.Journal
	machine *procedure.Machine
	exec    *executor.Executor
	state   *domain.SessionState
}

func ptr(f float64) *float64 { return &f }

func newFixture(t *testing.T, opts ...executor.Option) *fixture {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.RegisterAll(
		domain.ActionSpec{
			Name:       "loadVolume",
			Parameters: []domain.Parameter{{Name: "path", Type: "string", Required: true}},
		},
		domain.ActionSpec{
			Name:      "move_drill",
			Exclusive: true,
			Timeout:   domain.Duration(30 * time.Millisecond),
			Parameters: []domain.Parameter{
				{Name: "distance", Type: "number", Required: true, Minimum: ptr(0), Maximum: ptr(20)},
				{Name: "direction", Type: "string", Required: true, Enum: []any{"left", "right", "forward", "backward"}},
			},
		},
		domain.ActionSpec{Name: "placeFiducial", Timeout: domain.Duration(50 * time.Millisecond)},
	))

	def := dsl.New("imaging").
		Step("Init").Go("loadVolume", "Annotate").
		Step("Annotate").Stay("move_drill").Go("placeFiducial", "Done").Fail("placeFiducial", "Init").
		Step("Done").Terminal().
		Builder().MustBuild()

	m, err := procedure.Load(def, reg)
	require.NoError(t, err)

	f := &fixture{adapter: &countingAdapter{}, journal: memory.NewJournal(), machine: m}
	f.guard = capability.NewGuard(f.adapter)
	f.exec = executor.New(reg, f.guard, append([]executor.Option{executor.WithJournal(f.journal)}, opts...)...)
	f.state = m.Start("session-1")
	return f
}

func (f *fixture) submit(token, action string, params map[string]any) domain.ActionResult {
	return f.exec.Submit(context.Background(), f.machine, f.state, domain.ActionRequest{Token: token, Action: action, Params: params})
}

func TestSubmit_LoadVolumeScenario(t *testing.T) {
	f := newFixture(t)

	res := f.submit("t1", "loadVolume", map[string]any{"path": "/data/ct.nrrd"})
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "Annotate", res.StepID)
	assert.Equal(t, uint64(1), res.Sequence)

	res = f.submit("t2", "loadVolume", map[string]any{"path": "/data/ct.nrrd"})
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	var illegal *domain.IllegalTransitionError
	assert.True(t, errors.As(res.Err, &illegal))
	assert.Equal(t, 1, f.adapter.count(), "a rejected request must never reach the host")
}

func TestSubmit_MissingRequiredParameter(t *testing.T) {
	f := newFixture(t)

	res := f.submit("t1", "loadVolume", map[string]any{})
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)

	var verr *domain.ValidationError
	assert.True(t, errors.As(res.Err, &verr))
	assert.Equal(t, 0, f.adapter.count())
	assert.Equal(t, "Init", f.state.StepID)
	assert.Zero(t, f.state.Sequence)
}

func TestSubmit_UnknownAction(t *testing.T) {
	f := newFixture(t)

	res := f.submit("t1", "teleport", nil)
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	var unknown *domain.UnknownActionError
	assert.True(t, errors.As(res.Err, &unknown))
	assert.Equal(t, 0, f.adapter.count())
}

func TestSubmit_RangeRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	ok := f.submit("t1", "move_drill", map[string]any{"distance": 20.0, "direction": "left"})
	assert.Equal(t, domain.OutcomeSucceeded, ok.Outcome)

	tooFar := f.submit("t2", "move_drill", map[string]any{"distance": 20.5, "direction": "left"})
	assert.Equal(t, domain.OutcomeRejected, tooFar.Outcome)

	badEnum := f.submit("t3", "move_drill", map[string]any{"distance": 1.0, "direction": "up"})
	assert.Equal(t, domain.OutcomeRejected, badEnum.Outcome)

	assert.Equal(t, 2, f.adapter.count())
}

func TestSubmit_SequenceIncreasesByOne(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	for i := 0; i < 5; i++ {
		before := f.state.Sequence
		res := f.submit(string(rune('a'+i)), "move_drill", map[string]any{"distance": 1.0, "direction": "forward"})
		require.Equal(t, domain.OutcomeSucceeded, res.Outcome)
		assert.Equal(t, before+1, f.state.Sequence)
	}
}

func TestSubmit_DuplicateToken(t *testing.T) {
	f := newFixture(t)

	first := f.submit("t1", "loadVolume", map[string]any{"path": "p"})
	require.Equal(t, domain.OutcomeSucceeded, first.Outcome)

	again := f.submit("t1", "placeFiducial", nil)
	assert.Equal(t, domain.OutcomeRejected, again.Outcome)
	var dup *domain.DuplicateTokenError
	require.True(t, errors.As(again.Err, &dup))
	assert.Equal(t, uint64(0), dup.Sequence)
	assert.Equal(t, 1, f.adapter.count())

	// A rejected request also consumes its token.
	_ = f.submit("t2", "loadVolume", nil)
	assert.Equal(t, domain.OutcomeRejected, f.submit("t2", "placeFiducial", nil).Outcome)
	assert.Equal(t, 1, f.adapter.count())
}

func TestSubmit_MissingToken(t *testing.T) {
	f := newFixture(t)

	res := f.submit("", "loadVolume", map[string]any{"path": "p"})
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	var perr *domain.ProtocolError
	assert.True(t, errors.As(res.Err, &perr))
	assert.Equal(t, 0, f.adapter.count())
}

func TestSubmit_TimeoutLeavesStepAndAllowsRetry(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	var slow atomic.Bool
	slow.Store(true)
	f.adapter.respond = func(action string, _ map[string]any) domain.ActionOutcome {
		if slow.Load() {
			time.Sleep(200 * time.Millisecond)
		}
		return domain.Succeeded("Drill moved", nil)
	}

	before := f.state.Sequence
	res := f.submit("t1", "move_drill", map[string]any{"distance": 2.0, "direction": "left"})
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	var timeout *domain.TimeoutError
	assert.True(t, errors.As(res.Err, &timeout))
	assert.Equal(t, "Annotate", f.state.StepID)
	assert.Equal(t, before, f.state.Sequence)

	slow.Store(false)
	require.Eventually(t, func() bool { return !f.guard.Permit().Busy() }, time.Second, 10*time.Millisecond,
		"the timed-out call keeps the permit until the host returns")

	retry := f.submit("t2", "move_drill", map[string]any{"distance": 2.0, "direction": "left"})
	assert.Equal(t, domain.OutcomeSucceeded, retry.Outcome)
}

func TestSubmit_HostFailure(t *testing.T) {
	f := newFixture(t)
	f.adapter.respond = func(action string, _ map[string]any) domain.ActionOutcome {
		return domain.Failed(action, errors.New("device not homed"))
	}

	res := f.submit("t1", "loadVolume", map[string]any{"path": "p"})
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Message, "device not homed")
	assert.Equal(t, "Init", f.state.StepID, "no failure transition defined")
	assert.Zero(t, f.state.Sequence)
}

func TestSubmit_ExplicitFailureTransition(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	f.adapter.respond = func(action string, _ map[string]any) domain.ActionOutcome {
		return domain.Failed(action, errors.New("registration lost"))
	}
	res := f.submit("t1", "placeFiducial", nil)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Equal(t, "Init", res.StepID)
	assert.Equal(t, uint64(2), res.Sequence)
}

func TestSubmit_TimeoutSkipsFailureTransition(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	f.adapter.respond = func(action string, _ map[string]any) domain.ActionOutcome {
		time.Sleep(200 * time.Millisecond)
		return domain.Succeeded("Fiducial placed", nil)
	}
	before := f.state.Sequence

	res := f.submit("t1", "placeFiducial", nil)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	var timeout *domain.TimeoutError
	require.True(t, errors.As(res.Err, &timeout))
	assert.Equal(t, "Annotate", f.state.StepID, "placeFiducial has a failure transition to Init")
	assert.Equal(t, "Annotate", res.StepID)
	assert.Equal(t, before, f.state.Sequence)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.guard.Wait(ctx))
}

func TestSubmit_ContextTypeViolation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.MergeContext(map[string]any{"volume": 1}))
	f.adapter.respond = func(string, map[string]any) domain.ActionOutcome {
		return domain.Succeeded("loaded", map[string]any{"volume": "ct.nrrd"})
	}

	res := f.submit("t1", "loadVolume", map[string]any{"path": "p"})
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	var typeErr *domain.ContextTypeError
	assert.True(t, errors.As(res.Err, &typeErr))
	assert.Equal(t, "Init", f.state.StepID)
}

func TestSubmit_CompletesProcedure(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.OutcomeSucceeded, f.submit("t0", "loadVolume", map[string]any{"path": "p"}).Outcome)

	res := f.submit("t1", "placeFiducial", nil)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.True(t, res.Completed)

	after := f.submit("t2", "placeFiducial", nil)
	assert.Equal(t, domain.OutcomeRejected, after.Outcome)
	assert.Contains(t, after.Message, "completed")
}

func TestSubmit_JournalAndHooks(t *testing.T) {
	var submitted, results, entered []string
	hooks := domain.LifecycleHooks{
		OnActionSubmit: func(_ context.Context, e *domain.ActionEvent) { submitted = append(submitted, e.Token) },
		OnActionResult: func(_ context.Context, e *domain.ActionEvent) { results = append(results, string(e.Outcome)) },
		OnStepEnter:    func(_ context.Context, e *domain.StepEvent) { entered = append(entered, e.StepID) },
	}
	f := newFixture(t, executor.WithHooks(hooks))

	f.submit("t1", "loadVolume", map[string]any{"path": "p"})
	f.submit("t2", "loadVolume", map[string]any{"path": "p"})

	assert.Equal(t, []string{"t1", "t2"}, submitted)
	assert.Equal(t, []string{"succeeded", "rejected"}, results)
	assert.Equal(t, []string{"Annotate"}, entered)

	entries, err := f.journal.Entries(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Init", entries[0].FromStep)
	assert.Equal(t, domain.OutcomeRejected, entries[1].Result.Outcome)
}
