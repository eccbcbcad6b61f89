package capability

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
)

// ErrHostLoopClosed is returned for calls handed to a stopped loop.
var ErrHostLoopClosed = errors.New("host loop closed")

type hostCall struct {
	ctx   context.Context
	fn    func(context.Context) domain.ActionOutcome
	reply chan domain.ActionOutcome
}

// HostLoop runs host calls on one designated goroutine, locked to its OS
// thread, for hosts whose scripting surface may only be used from their own
// main thread. Callers hand a call over and block for its reply.
type HostLoop struct {
	calls   chan hostCall
	stopped chan struct{}
	handoff time.Duration
}

// NewHostLoop creates a loop. handoff bounds how long a caller waits for the
// loop to accept a call; zero waits as long as the caller's context allows.
func NewHostLoop(handoff time.Duration) *HostLoop {
	return &HostLoop{
		calls:   make(chan hostCall),
		stopped: make(chan struct{}),
		handoff: handoff,
	}
}

// Run processes calls until ctx is done. It must be called exactly once,
// from the goroutine (or thread) the host requires.
func (h *HostLoop) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case call := <-h.calls:
			call.reply <- invoke(call)
		}
	}
}

func invoke(call hostCall) (out domain.ActionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Failed("", fmt.Errorf("host fault: %v", r))
		}
	}()
	return call.fn(call.ctx)
}

// Do hands fn to the loop and waits for its result.
func (h *HostLoop) Do(ctx context.Context, fn func(context.Context) domain.ActionOutcome) (domain.ActionOutcome, error) {
	call := hostCall{ctx: ctx, fn: fn, reply: make(chan domain.ActionOutcome, 1)}

	var timeout <-chan time.Time
	if h.handoff > 0 {
		timer := time.NewTimer(h.handoff)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case h.calls <- call:
	case <-h.stopped:
		return domain.ActionOutcome{}, ErrHostLoopClosed
	case <-timeout:
		return domain.ActionOutcome{}, fmt.Errorf("host thread did not accept the call within %s", h.handoff)
	case <-ctx.Done():
		return domain.ActionOutcome{}, ctx.Err()
	}

	select {
	case out := <-call.reply:
		return out, nil
	case <-ctx.Done():
		return domain.ActionOutcome{}, ctx.Err()
	}
}

// Adapter returns a CapabilityAdapter that performs every call of inner on the loop.
func (h *HostLoop) Adapter(inner ports.CapabilityAdapter) ports.CapabilityAdapter {
	return ports.AdapterFunc(func(ctx context.Context, action string, params map[string]any) domain.ActionOutcome {
		out, err := h.Do(ctx, func(ctx context.Context) domain.ActionOutcome {
			return inner.Perform(ctx, action, params)
		})
		if err != nil {
			return domain.Failed(action, err)
		}
		return out
	})
}
