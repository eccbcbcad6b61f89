package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It coordinates session access and exclusive capabilities across bridge replicas.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key.
	// It blocks until the lock is acquired or the context is canceled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	// ttl bounds how long the lock survives a holder that dies; a live
	// holder keeps it until UnlockFunc is called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
