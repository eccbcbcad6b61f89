package actionbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/adapters/memory"
	"github.com/neurosurgery/actionbridge/pkg/adapters/websocket"
	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/executor"
	"github.com/neurosurgery/actionbridge/pkg/observability"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/neurosurgery/actionbridge/pkg/registry"
	"github.com/neurosurgery/actionbridge/pkg/session"
)

// DefaultGame is the game name announced to the agent.
const DefaultGame = "Neuro-Sama Surgery"

// Bridge wires a procedure, an action catalog and a capability adapter into
// sessions. It is the high-level entry point for embedding the bridge.
type Bridge struct {
	registry *registry.Registry
	guard    *capability.Guard
	executor *executor.Executor
	manager  *session.Manager
	journal  ports.Journal
	metrics  *observability.Metrics
	logger   *slog.Logger

	game     string
	timeout  time.Duration
	store    ports.StateStore
	locker   ports.DistributedLocker
	hostLoop *capability.HostLoop

	mu      sync.RWMutex
	machine *procedure.Machine

	hooksMu sync.RWMutex
	hooks   domain.LifecycleHooks
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bridge) {
		b.hooks = b.hooks.Merge(hooks)
	}
}

// WithStore persists session state in store instead of memory.
func WithStore(store ports.StateStore) Option {
	return func(b *Bridge) {
		b.store = store
	}
}

// WithLocker guards session state and exclusive actions across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(b *Bridge) {
		b.locker = locker
	}
}

// WithJournal records every action result.
func WithJournal(j ports.Journal) Option {
	return func(b *Bridge) {
		b.journal = j
	}
}

// WithMetrics exports Prometheus metrics from m.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTimeout sets the bound for actions that declare none.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithGame sets the game name announced to the agent.
func WithGame(game string) Option {
	return func(b *Bridge) {
		if game != "" {
			b.game = game
		}
	}
}

// WithHostLoop runs every host call on loop, for hosts that must be driven
// from a single thread. The caller runs the loop.
func WithHostLoop(loop *capability.HostLoop) Option {
	return func(b *Bridge) {
		b.hostLoop = loop
	}
}

// New validates def, registers its actions and prepares the bridge to run
// sessions against adapter.
func New(def *domain.Procedure, adapter ports.CapabilityAdapter, opts ...Option) (*Bridge, error) {
	if adapter == nil {
		return nil, errors.New("a capability adapter is required")
	}
	b := &Bridge{
		game:    DefaultGame,
		timeout: capability.DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.registry = registry.New(registry.WithLogger(b.logger))

	if b.store == nil {
		b.store = memory.NewStore()
	}
	managerOpts := []session.Option{session.WithLogger(b.logger)}
	permitOpts := []capability.PermitOption{capability.WithPermitLogger(b.logger)}
	if b.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(b.locker, 0))
		permitOpts = append(permitOpts, capability.WithDistributedLock(b.locker, "permit", b.timeout))
	}
	b.manager = session.NewManager(b.store, managerOpts...)

	lister, lists := adapter.(interface{ Actions() []string })
	if b.hostLoop != nil {
		adapter = b.hostLoop.Adapter(adapter)
	}
	b.guard = capability.NewGuard(adapter,
		capability.WithTimeout(b.timeout),
		capability.WithPermit(capability.NewPermit(permitOpts...)),
		capability.WithGuardLogger(b.logger),
	)

	if b.metrics != nil {
		b.hooks = b.hooks.Merge(b.metrics.Hooks())
	}

	execOpts := []executor.Option{executor.WithHooks(b.dispatch()), executor.WithLogger(b.logger)}
	if b.journal != nil {
		execOpts = append(execOpts, executor.WithJournal(b.journal))
	}
	b.executor = executor.New(b.registry, b.guard, execOpts...)

	if err := b.Install(def); err != nil {
		return nil, err
	}
	if lists {
		b.warnUnhandled(def, lister.Actions())
	}
	return b, nil
}

// Install validates def and makes it the procedure new sessions run.
// Actions it declares are registered; changed ones are replaced, so live
// sessions see the new schema. Sessions already running keep their
// procedure.
func (b *Bridge) Install(def *domain.Procedure) error {
	if def == nil {
		return errors.New("procedure is nil")
	}
	for _, spec := range def.Actions {
		if _, err := registry.Compile(spec); err != nil {
			return err
		}
	}
	if err := procedure.Validate(def, declared{def: def, registry: b.registry}); err != nil {
		return err
	}

	for _, spec := range def.Actions {
		current, err := b.registry.Lookup(spec.Name)
		if err == nil {
			if reflect.DeepEqual(current, spec) {
				continue
			}
			if err := b.registry.Unregister(spec.Name); err != nil {
				return err
			}
		}
		if err := b.registry.Register(spec); err != nil {
			return err
		}
	}

	m, err := procedure.Load(def, b.registry)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.machine = m
	b.mu.Unlock()

	b.logger.Info("Procedure installed", "procedure", def.ID, "steps", len(def.Steps), "actions", len(def.Actions))
	return nil
}

// Watch reloads procedure id from loader whenever it reports a change.
// onReload, if set, is called after each successful reload. Watch returns
// once watching has started; it stops when ctx is done.
func (b *Bridge) Watch(ctx context.Context, loader ports.ProcedureLoader, id string, onReload func(*domain.Procedure)) error {
	w, ok := loader.(ports.Watchable)
	if !ok {
		return fmt.Errorf("loader %T does not support watching", loader)
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for range changes {
			def, err := loader.Load(ctx, id)
			if err != nil {
				b.logger.Warn("Procedure reload failed", "procedure", id, "err", err)
				continue
			}
			if err := b.Install(def); err != nil {
				b.logger.Warn("Reloaded procedure rejected", "procedure", id, "err", err)
				continue
			}
			if onReload != nil {
				onReload(def)
			}
		}
	}()
	return nil
}

// Machine returns the procedure new sessions run.
func (b *Bridge) Machine() *procedure.Machine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.machine
}

// Procedure returns the definition new sessions run.
func (b *Bridge) Procedure() *domain.Procedure {
	def := b.Machine().Definition()
	return &def
}

// Registry returns the action catalog.
func (b *Bridge) Registry() *registry.Registry { return b.registry }

// Manager returns the session manager.
func (b *Bridge) Manager() *session.Manager { return b.manager }

// Journal returns the action journal, or nil.
func (b *Bridge) Journal() ports.Journal { return b.journal }

// AddHooks registers more lifecycle hooks; they apply to running sessions too.
func (b *Bridge) AddHooks(h domain.LifecycleHooks) {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	b.hooks = b.hooks.Merge(h)
}

func (b *Bridge) currentHooks() domain.LifecycleHooks {
	b.hooksMu.RLock()
	defer b.hooksMu.RUnlock()
	return b.hooks
}

// dispatch resolves the registered hooks on every event.
func (b *Bridge) dispatch() domain.LifecycleHooks {
	step := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.StepEvent)) func(context.Context, *domain.StepEvent) {
		return func(ctx context.Context, ev *domain.StepEvent) {
			if fn := pick(b.currentHooks()); fn != nil {
				fn(ctx, ev)
			}
		}
	}
	action := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.ActionEvent)) func(context.Context, *domain.ActionEvent) {
		return func(ctx context.Context, ev *domain.ActionEvent) {
			if fn := pick(b.currentHooks()); fn != nil {
				fn(ctx, ev)
			}
		}
	}
	return domain.LifecycleHooks{
		OnStepEnter:    step(func(h domain.LifecycleHooks) func(context.Context, *domain.StepEvent) { return h.OnStepEnter }),
		OnStepLeave:    step(func(h domain.LifecycleHooks) func(context.Context, *domain.StepEvent) { return h.OnStepLeave }),
		OnActionSubmit: action(func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnActionSubmit }),
		OnActionResult: action(func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnActionResult }),
	}
}

// NewCore starts a transport-agnostic session. An empty id is replaced by a
// random one. Callers must Release the core.
func (b *Bridge) NewCore(ctx context.Context, id string) (*session.Core, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return session.NewCore(ctx, id, b.Machine(), b.executor, b.registry,
		session.WithManager(b.manager),
		session.WithStepHooks(b.dispatch()),
		session.WithCoreLogger(b.logger),
	)
}

// Serve runs one Neuro SDK session over conn until it ends.
func (b *Bridge) Serve(ctx context.Context, conn session.Conn) error {
	core, err := b.NewCore(ctx, "")
	if err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.SessionOpened()
		defer b.metrics.SessionClosed()
	}
	s := session.New(core, conn, session.Config{Game: b.game, Logger: b.logger})
	return s.Run(ctx)
}

// ServeFunc adapts Serve to the WebSocket transport.
func (b *Bridge) ServeFunc() websocket.ServeFunc {
	return func(ctx context.Context, conn *websocket.Conn) error {
		return b.Serve(ctx, conn)
	}
}

// Connect dials the agent through client and serves sessions, reconnecting
// with backoff while the agent is unreachable or drops the connection.
func (b *Bridge) Connect(ctx context.Context, client *websocket.Client) error {
	return client.Run(ctx, b.ServeFunc())
}

// Listen accepts agent connections on addr, one session per connection.
// The operator API, if given, is served on the same address.
func (b *Bridge) Listen(ctx context.Context, addr string, api http.Handler) error {
	agents := websocket.NewHandler(ctx, b.ServeFunc(), b.logger)
	handler := http.Handler(agents)
	if api != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", agents)
		mux.Handle("/", api)
		handler = mux
	}
	return websocket.ListenAndServe(ctx, addr, handler, b.logger)
}

// Shutdown aborts every live session and waits for in-flight host calls.
func (b *Bridge) Shutdown(ctx context.Context) error {
	for _, id := range b.manager.Live() {
		c, err := b.manager.Get(id)
		if err != nil {
			continue
		}
		if err := c.Abort(ctx, "shutdown"); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			b.logger.Warn("Failed to abort session", "session_id", id, "err", err)
		}
	}
	return b.guard.Wait(ctx)
}

func (b *Bridge) warnUnhandled(def *domain.Procedure, handled []string) {
	known := make(map[string]bool, len(handled))
	for _, name := range handled {
		known[name] = true
	}
	for _, spec := range def.Actions {
		if !known[spec.Name] {
			b.logger.Warn("No capability handles action, requests will fail", "action", spec.Name)
		}
	}
}

// declared resolves action names against the procedure's own declarations
// first, then the registry.
type declared struct {
	def      *domain.Procedure
	registry *registry.Registry
}

func (d declared) Has(name string) bool {
	_, err := d.Lookup(name)
	return err == nil
}

func (d declared) Lookup(name string) (domain.ActionSpec, error) {
	for _, spec := range d.def.Actions {
		if spec.Name == name {
			return spec, nil
		}
	}
	return d.registry.Lookup(name)
}
