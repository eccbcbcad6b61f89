package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/ports"
)

// Permit is the single mutual-exclusion permit for non-reentrant capabilities.
// It is shared by every session of a bridge. With a DistributedLocker it
// also excludes other bridge processes driving the same device.
type Permit struct {
	slot chan struct{}

	locker ports.DistributedLocker
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// PermitOption configures a Permit.
type PermitOption func(*Permit)

// WithDistributedLock backs the permit with a distributed lock on key.
func WithDistributedLock(locker ports.DistributedLocker, key string, ttl time.Duration) PermitOption {
	return func(p *Permit) {
		p.locker = locker
		p.key = key
		p.ttl = ttl
	}
}

// WithPermitLogger sets the logger.
func WithPermitLogger(logger *slog.Logger) PermitOption {
	return func(p *Permit) {
		p.logger = logger
	}
}

// NewPermit creates a free permit.
func NewPermit(opts ...PermitOption) *Permit {
	p := &Permit{
		slot:   make(chan struct{}, 1),
		key:    "actionbridge:exclusive",
		ttl:    time.Minute,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire blocks until the permit is free or ctx is done.
// The returned release function is idempotent.
func (p *Permit) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("exclusive capability busy: %w", ctx.Err())
	}

	var unlock ports.UnlockFunc
	if p.locker != nil {
		var err error
		unlock, err = p.locker.Lock(ctx, p.key, p.ttl)
		if err != nil {
			<-p.slot
			return nil, fmt.Errorf("failed to acquire distributed permit: %w", err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if unlock != nil {
				if err := unlock(context.Background()); err != nil {
					p.logger.Warn("Failed to release distributed permit (will expire via TTL)", "key", p.key, "err", err)
				}
			}
			<-p.slot
		})
	}, nil
}

// Busy reports whether the permit is currently held in this process.
func (p *Permit) Busy() bool {
	return len(p.slot) > 0
}
