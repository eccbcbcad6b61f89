package capability_test

import (
	"context"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLoop_RunsCallsOnLoop(t *testing.T) {
	loop := capability.NewHostLoop(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopID := make(chan struct{})
	go func() {
		close(loopID)
		loop.Run(ctx)
	}()
	<-loopID

	adapter := loop.Adapter(ports.AdapterFunc(func(_ context.Context, action string, _ map[string]any) domain.ActionOutcome {
		return domain.Succeeded(action+" done", nil)
	}))

	out := adapter.Perform(context.Background(), "inspect_hole", nil)
	assert.Equal(t, domain.OutcomeSucceeded, out.Tag)
	assert.Equal(t, "inspect_hole done", out.Message)
}

func TestHostLoop_PanicBecomesFailure(t *testing.T) {
	loop := capability.NewHostLoop(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	out, err := loop.Do(context.Background(), func(context.Context) domain.ActionOutcome {
		panic("host crashed")
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, out.Tag)

	// The loop survives.
	out, err = loop.Do(context.Background(), func(context.Context) domain.ActionOutcome {
		return domain.Succeeded("ok", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, out.Tag)
}

func TestHostLoop_BoundedHandoff(t *testing.T) {
	loop := capability.NewHostLoop(20 * time.Millisecond)

	// Nobody runs the loop.
	_, err := loop.Do(context.Background(), func(context.Context) domain.ActionOutcome {
		return domain.Succeeded("never", nil)
	})
	assert.Error(t, err)
}

func TestHostLoop_Closed(t *testing.T) {
	loop := capability.NewHostLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := loop.Do(context.Background(), func(context.Context) domain.ActionOutcome {
		return domain.Succeeded("never", nil)
	})
	assert.ErrorIs(t, err, capability.ErrHostLoopClosed)
}
