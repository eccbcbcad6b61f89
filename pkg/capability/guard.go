package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
)

// DefaultTimeout bounds host calls whose spec sets no timeout.
const DefaultTimeout = 30 * time.Second

// Guard invokes a capability adapter with failure isolation.
type Guard struct {
	adapter ports.CapabilityAdapter
	permit  *Permit
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// ErrClosed is the failure of an invocation made after Wait has started.
var ErrClosed = errors.New("capability guard is shutting down")

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithPermit sets the permit used for exclusive actions.
func WithPermit(p *Permit) GuardOption {
	return func(g *Guard) {
		g.permit = p
	}
}

// WithTimeout sets the default per-action timeout.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard wraps adapter.
func NewGuard(adapter ports.CapabilityAdapter, opts ...GuardOption) *Guard {
	g := &Guard{
		adapter: adapter,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.permit == nil {
		g.permit = NewPermit(WithPermitLogger(g.logger))
	}
	return g
}

// Permit returns the exclusive permit.
func (g *Guard) Permit() *Permit { return g.permit }

// Invoke performs the action described by spec.
//
// The host call is detached from ctx cancellation: a disconnecting caller
// does not abort it. If the call outlives its timeout, Invoke returns a
// failed outcome carrying a *domain.TimeoutError while the call itself keeps
// running, and keeps the permit, until the host returns.
func (g *Guard) Invoke(ctx context.Context, spec domain.ActionSpec, params map[string]any) domain.ActionOutcome {
	timeout := spec.Timeout.Std()
	if timeout <= 0 {
		timeout = g.timeout
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return domain.Failed(spec.Name, ErrClosed)
	}
	g.inflight.Add(1)
	g.mu.Unlock()

	hostCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	release := func() {}
	if spec.Exclusive {
		r, err := g.permit.Acquire(hostCtx)
		if err != nil {
			g.inflight.Done()
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", &domain.TimeoutError{Action: spec.Name, After: timeout}, err)
			}
			return domain.Failed(spec.Name, err)
		}
		release = r
	}

	done := make(chan domain.ActionOutcome, 1)
	go func() {
		defer g.inflight.Done()
		defer release()
		done <- g.perform(hostCtx, spec.Name, params)
	}()

	select {
	case out := <-done:
		return out
	case <-hostCtx.Done():
		g.logger.Warn("Host call exceeded its bound, result will be discarded",
			"action", spec.Name,
			"timeout", timeout,
		)
		return domain.Failed(spec.Name, &domain.TimeoutError{Action: spec.Name, After: timeout})
	}
}

// Wait refuses new invocations, then blocks until every in-flight host
// call has returned or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) perform(ctx context.Context, action string, params map[string]any) (out domain.ActionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Capability adapter panicked", "action", action, "panic", r)
			out = domain.Failed(action, fmt.Errorf("host fault: %v", r))
		}
	}()

	out = g.adapter.Perform(ctx, action, params)
	return normalize(action, out)
}

// normalize coerces anything but an explicit success into a failed outcome.
func normalize(action string, out domain.ActionOutcome) domain.ActionOutcome {
	if out.Tag == domain.OutcomeSucceeded {
		return out
	}
	if out.Err == nil {
		msg := out.Message
		if msg == "" {
			msg = "adapter reported no outcome"
		}
		return domain.Failed(action, errors.New(msg))
	}
	return domain.Failed(action, out.Err)
}
