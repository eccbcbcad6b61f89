package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/executor"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/neurosurgery/actionbridge/pkg/registry"
)

// Catalog is the registry surface a session needs to advertise actions.
type Catalog interface {
	Lookup(name string) (domain.ActionSpec, error)
	JSONSchema(name string) (map[string]any, error)
	Subscribe() (<-chan registry.Event, func())
}

// Delta is the change in advertised actions the agent must be told about.
type Delta struct {
	Register   []string
	Unregister []string
}

// Empty reports whether there is nothing to send.
func (d Delta) Empty() bool {
	return len(d.Register) == 0 && len(d.Unregister) == 0
}

// Core is the transport-agnostic part of a session. Handle, Signal and Abort
// are serialized; Snapshot may be called from any goroutine.
type Core struct {
	id      string
	machine *procedure.Machine
	exec    *executor.Executor
	catalog Catalog
	manager *Manager
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time

	op sync.Mutex // serializes state transitions

	mu         sync.RWMutex
	state      *domain.SessionState
	advertised map[string]struct{}

	events      <-chan registry.Event
	unsubscribe func()
	releaseOnce sync.Once
}

// CoreOption configures a Core.
type CoreOption func(*Core)

// WithManager persists every committed state through m.
func WithManager(m *Manager) CoreOption {
	return func(c *Core) {
		c.manager = m
	}
}

// WithStepHooks receives step events for operator signals.
func WithStepHooks(h domain.LifecycleHooks) CoreOption {
	return func(c *Core) {
		c.hooks = h
	}
}

// WithCoreLogger sets the logger.
func WithCoreLogger(logger *slog.Logger) CoreOption {
	return func(c *Core) {
		c.logger = logger
	}
}

// NewCore starts a session at the machine's initial step and subscribes to
// registry changes. Call Release when the session ends.
func NewCore(ctx context.Context, id string, m *procedure.Machine, exec *executor.Executor, catalog Catalog, opts ...CoreOption) (*Core, error) {
	c := &Core{
		id:         id,
		machine:    m,
		exec:       exec,
		catalog:    catalog,
		logger:     logging.NewNop(),
		now:        time.Now,
		state:      m.Start(id),
		advertised: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("session_id", id)

	if c.manager != nil {
		if err := c.manager.Save(ctx, id, c.state.Clone()); err != nil {
			return nil, fmt.Errorf("failed to persist session %s: %w", id, err)
		}
	}
	c.events, c.unsubscribe = catalog.Subscribe()
	c.emitStep(ctx, c.hooks.OnStepEnter, domain.EventStepEnter, c.state.StepID)
	return c, nil
}

// ID returns the session id.
func (c *Core) ID() string { return c.id }

// Machine returns the procedure the session runs.
func (c *Core) Machine() *procedure.Machine { return c.machine }

// Catalog returns the action catalog.
func (c *Core) Catalog() Catalog { return c.catalog }

// Events delivers registry changes; it is closed by Release.
func (c *Core) Events() <-chan registry.Event { return c.events }

// Snapshot returns a copy of the current state.
func (c *Core) Snapshot() *domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Step returns the current step.
func (c *Core) Step() domain.Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	step, _ := c.machine.Step(c.state.StepID)
	return step
}

// Active reports whether the session still accepts actions.
func (c *Core) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Active()
}

// Enabled returns the actions currently valid for the agent.
func (c *Core) Enabled() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.CurrentlyEnabled(c.state)
}

// Sync diffs the enabled actions against what the agent was told and
// records the new advertised set.
func (c *Core) Sync() Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncLocked()
}

func (c *Core) syncLocked() Delta {
	want := make(map[string]struct{})
	for _, name := range c.machine.CurrentlyEnabled(c.state) {
		want[name] = struct{}{}
	}

	var d Delta
	for name := range want {
		if _, ok := c.advertised[name]; !ok {
			d.Register = append(d.Register, name)
		}
	}
	for name := range c.advertised {
		if _, ok := want[name]; !ok {
			d.Unregister = append(d.Unregister, name)
		}
	}
	sort.Strings(d.Register)
	sort.Strings(d.Unregister)
	c.advertised = want
	return d
}

// Apply folds a registry event into the advertised set. Re-registered
// actions the agent already knows are withdrawn and advertised again so the
// agent sees the new schema.
func (c *Core) Apply(ev registry.Event) Delta {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	if ev.Kind == registry.EventRegistered {
		for _, name := range ev.Names {
			if _, ok := c.advertised[name]; ok {
				stale = append(stale, name)
				delete(c.advertised, name)
			}
		}
	}
	d := c.syncLocked()
	if len(stale) > 0 {
		d.Unregister = append(d.Unregister, stale...)
		sort.Strings(d.Unregister)
	}
	return d
}

// Advertised returns the names the agent currently knows, sorted.
func (c *Core) Advertised() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.advertised))
	for name := range c.advertised {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Retract forgets every advertised action and returns their names.
func (c *Core) Retract() []string {
	names := c.Advertised()
	c.mu.Lock()
	c.advertised = make(map[string]struct{})
	c.mu.Unlock()
	return names
}

// Handle executes one agent request and commits the resulting state.
func (c *Core) Handle(ctx context.Context, req domain.ActionRequest) domain.ActionResult {
	c.op.Lock()
	defer c.op.Unlock()

	st := c.Snapshot()
	res := c.exec.Submit(ctx, c.machine, st, req)
	c.commit(ctx, st)
	return res
}

// Signal moves the session along an operator signal of the current step.
func (c *Core) Signal(ctx context.Context, name string) (domain.Step, error) {
	c.op.Lock()
	defer c.op.Unlock()

	st := c.Snapshot()
	from := st.StepID
	step, err := c.machine.Signal(st, name)
	if err != nil {
		return domain.Step{}, err
	}
	c.commit(ctx, st)

	c.logger.Info("Operator signal applied", "signal", name, "from", from, "step", step.ID)
	if from != step.ID {
		c.emitStep(ctx, c.hooks.OnStepLeave, domain.EventStepLeave, from)
		c.emitStep(ctx, c.hooks.OnStepEnter, domain.EventStepEnter, step.ID)
	}
	return step, nil
}

// Abort ends an active session.
func (c *Core) Abort(ctx context.Context, reason string) error {
	c.op.Lock()
	defer c.op.Unlock()

	st := c.Snapshot()
	if !st.Active() {
		return fmt.Errorf("session %s is %s: %w", c.id, st.Status, domain.ErrSessionClosed)
	}
	st.Status = domain.StatusAborted
	c.commit(ctx, st)
	c.logger.Info("Session aborted", "reason", reason)
	return nil
}

// Release drops the registry subscription and the persisted state.
// It is safe to call more than once.
func (c *Core) Release(ctx context.Context) {
	c.releaseOnce.Do(func() {
		c.unsubscribe()
		if c.manager == nil {
			return
		}
		if err := c.manager.Delete(context.WithoutCancel(ctx), c.id); err != nil {
			c.logger.Warn("Failed to release session state", "err", err)
		}
	})
}

func (c *Core) commit(ctx context.Context, st *domain.SessionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()

	if c.manager == nil {
		return
	}
	if err := c.manager.Save(context.WithoutCancel(ctx), c.id, st.Clone()); err != nil {
		c.logger.Warn("Failed to persist session state", "sequence", st.Sequence, "err", err)
	}
}

func (c *Core) emitStep(ctx context.Context, hook func(context.Context, *domain.StepEvent), typ domain.EventType, stepID string) {
	if hook == nil {
		return
	}
	step, _ := c.machine.Step(stepID)
	hook(ctx, &domain.StepEvent{
		EventBase:   domain.EventBase{Timestamp: c.now(), Type: typ, SessionID: c.id},
		ProcedureID: c.machine.ID(),
		StepID:      stepID,
		Terminal:    step.IsTerminal(),
	})
}
