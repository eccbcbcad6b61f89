package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
)

// Catalog is the view of the action registry the executor needs.
type Catalog interface {
	Lookup(name string) (domain.ActionSpec, error)
	Validate(name string, params map[string]any) error
}

// Executor validates action requests and runs them against the host.
// It holds no per-session data and is shared by all sessions.
type Executor struct {
	catalog Catalog
	guard   *capability.Guard
	journal ports.Journal
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Executor.
type Option func(*Executor)

// WithJournal records every result in j.
func WithJournal(j ports.Journal) Option {
	return func(e *Executor) {
		e.journal = j
	}
}

// WithHooks sets lifecycle hooks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an executor.
func New(catalog Catalog, guard *capability.Guard, opts ...Option) *Executor {
	e := &Executor{
		catalog: catalog,
		guard:   guard,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit processes one request against st, which belongs to m.
//
// The request passes two gates before any side effect: schema validation,
// then enablement in the current step. Only then is the host called. Exactly
// one ActionResult is returned for every request. Callers must not submit
// concurrently for the same state.
func (e *Executor) Submit(ctx context.Context, m *procedure.Machine, st *domain.SessionState, req domain.ActionRequest) domain.ActionResult {
	start := e.now()
	fromStep := st.StepID

	e.emitAction(ctx, e.hooks.OnActionSubmit, st, req, domain.ActionResult{}, 0)

	res := e.submit(ctx, m, st, req)
	res.Token = req.Token
	res.Action = req.Action
	res.StepID = st.StepID
	res.Sequence = st.Sequence
	res.Completed = st.Status == domain.StatusCompleted

	elapsed := e.now().Sub(start)
	e.record(ctx, st, fromStep, req, res)
	e.emitAction(ctx, e.hooks.OnActionResult, st, req, res, elapsed)

	if fromStep != st.StepID {
		e.emitStep(ctx, e.hooks.OnStepLeave, domain.EventStepLeave, st, fromStep, m)
		e.emitStep(ctx, e.hooks.OnStepEnter, domain.EventStepEnter, st, st.StepID, m)
	}

	level := slog.LevelInfo
	if res.Outcome != domain.OutcomeSucceeded {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "Action processed",
		"session_id", st.SessionID,
		"action", req.Action,
		"token", req.Token,
		"outcome", res.Outcome,
		"step", st.StepID,
		"sequence", st.Sequence,
		"duration", elapsed,
		"err", res.Err,
	)
	return res
}

func (e *Executor) submit(ctx context.Context, m *procedure.Machine, st *domain.SessionState, req domain.ActionRequest) domain.ActionResult {
	if req.Token == "" {
		return rejected(&domain.ProtocolError{Reason: "missing correlation token"})
	}
	if seq, seen := st.Tokens[req.Token]; seen {
		return rejected(&domain.DuplicateTokenError{Token: req.Token, Sequence: seq})
	}
	if st.Tokens == nil {
		st.Tokens = make(map[string]uint64)
	}
	st.Tokens[req.Token] = st.Sequence

	// Gate 1: schema.
	spec, err := e.catalog.Lookup(req.Action)
	if err != nil {
		return rejected(err)
	}
	if err := e.catalog.Validate(req.Action, req.Params); err != nil {
		return rejected(err)
	}

	// Gate 2: enablement.
	if !m.IsEnabled(st, req.Action) {
		reason := ""
		if !st.Active() {
			reason = fmt.Sprintf("session is %s", st.Status)
		}
		return rejected(&domain.IllegalTransitionError{Action: req.Action, StepID: st.StepID, Reason: reason})
	}

	out := e.guard.Invoke(ctx, spec, req.Params)

	if out.Tag != domain.OutcomeSucceeded {
		res := domain.ActionResult{Outcome: domain.OutcomeFailed, Message: out.Message, Err: out.Err}
		// The host may still be running a timed-out call, so the step holds.
		var timeout *domain.TimeoutError
		if errors.As(out.Err, &timeout) {
			return res
		}
		if m.HasTransition(st, req.Action, domain.OutcomeFailed) {
			if _, err := m.Advance(st, req.Action, out); err != nil {
				e.logger.Warn("Failure transition not applied",
					"session_id", st.SessionID,
					"action", req.Action,
					"err", err,
				)
			}
		}
		return res
	}

	if _, err := m.Advance(st, req.Action, out); err != nil {
		return domain.ActionResult{
			Outcome: domain.OutcomeFailed,
			Message: fmt.Sprintf("host succeeded but the result could not be applied: %v", err),
			Err:     err,
		}
	}

	msg := out.Message
	if msg == "" {
		msg = "ok"
	}
	return domain.ActionResult{
		Outcome:      domain.OutcomeSucceeded,
		Message:      msg,
		ContextDelta: out.ContextDelta,
	}
}

func rejected(err error) domain.ActionResult {
	return domain.ActionResult{Outcome: domain.OutcomeRejected, Message: err.Error(), Err: err}
}

func (e *Executor) record(ctx context.Context, st *domain.SessionState, fromStep string, req domain.ActionRequest, res domain.ActionResult) {
	if e.journal == nil {
		return
	}
	entry := ports.JournalEntry{
		SessionID: st.SessionID,
		Sequence:  st.Sequence,
		Timestamp: e.now(),
		FromStep:  fromStep,
		Request:   req,
		Result:    res,
	}
	if err := e.journal.Append(ctx, entry); err != nil {
		e.logger.Warn("Failed to journal action result", "session_id", st.SessionID, "token", req.Token, "err", err)
	}
}

func (e *Executor) emitAction(ctx context.Context, hook func(context.Context, *domain.ActionEvent), st *domain.SessionState, req domain.ActionRequest, res domain.ActionResult, d time.Duration) {
	if hook == nil {
		return
	}
	typ := domain.EventActionSubmit
	if res.Outcome != "" {
		typ = domain.EventActionResult
	}
	hook(ctx, &domain.ActionEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: typ, SessionID: st.SessionID},
		StepID:    st.StepID,
		Action:    req.Action,
		Token:     req.Token,
		Params:    req.Params,
		Outcome:   res.Outcome,
		Message:   res.Message,
		Duration:  d,
	})
}

func (e *Executor) emitStep(ctx context.Context, hook func(context.Context, *domain.StepEvent), typ domain.EventType, st *domain.SessionState, stepID string, m *procedure.Machine) {
	if hook == nil {
		return
	}
	step, _ := m.Step(stepID)
	hook(ctx, &domain.StepEvent{
		EventBase:   domain.EventBase{Timestamp: e.now(), Type: typ, SessionID: st.SessionID},
		ProcedureID: m.ID(),
		StepID:      stepID,
		Terminal:    step.IsTerminal(),
	})
}
