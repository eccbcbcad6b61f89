package cli

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalContext_SecondSignalExits(t *testing.T) {
	var code atomic.Int32
	exit = func(c int) { code.Store(int32(c)) }
	t.Cleanup(func() { exit = os.Exit })

	sc := NewSignalContext(context.Background())
	defer sc.Cancel()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-sc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGINT")
	}
	assert.Equal(t, os.Interrupt, sc.Signal())
	assert.Zero(t, code.Load())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	assert.Eventually(t, func() bool { return code.Load() == 130 }, 2*time.Second, 10*time.Millisecond)
}

func TestSignalContext_CancelledByParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sc := NewSignalContext(parent)
	cancel()

	<-sc.Done()
	assert.Nil(t, sc.Signal())
}
