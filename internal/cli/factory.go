// Package cli assembles a bridge from configuration for the actionbridge
// command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"

	"github.com/neurosurgery/actionbridge"
	"github.com/neurosurgery/actionbridge/internal/config"
	"github.com/neurosurgery/actionbridge/pkg/adapters/bolt"
	"github.com/neurosurgery/actionbridge/pkg/adapters/file"
	loamAdapter "github.com/neurosurgery/actionbridge/pkg/adapters/loam"
	"github.com/neurosurgery/actionbridge/pkg/adapters/memory"
	"github.com/neurosurgery/actionbridge/pkg/adapters/process"
	"github.com/neurosurgery/actionbridge/pkg/adapters/redis"
	"github.com/neurosurgery/actionbridge/pkg/adapters/sim"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/observability"
	"github.com/neurosurgery/actionbridge/pkg/persistence/middleware"
	"github.com/neurosurgery/actionbridge/pkg/ports"
)

// ErrNoProcedure is returned when neither a procedure file nor a library
// is configured.
var ErrNoProcedure = errors.New("no procedure configured: set procedure.file or procedure.library")

// ErrNoCapabilities is returned when no host adapter is configured.
var ErrNoCapabilities = errors.New("no capabilities configured: set capabilities.file or capabilities.simulate")

// Runtime is a bridge with everything it was built from.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Bridge  *actionbridge.Bridge
	Metrics *observability.Metrics
	Store   ports.StateStore
	Journal ports.Journal

	// Loader and ProcedureID locate the procedure for reloads.
	Loader      ports.ProcedureLoader
	ProcedureID string

	closers []func() error
}

// Close releases the store and journal connections.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Watch reinstalls the procedure when its source changes, if
// procedure.watch is set.
func (r *Runtime) Watch(ctx context.Context, onReload func(*domain.Procedure)) error {
	if !r.Config.Procedure.Watch {
		return nil
	}
	r.Logger.Info("Watching procedure", "procedure", r.ProcedureID)
	return r.Bridge.Watch(ctx, r.Loader, r.ProcedureID, onReload)
}

// Build wires a bridge from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	def, err := rt.loadProcedure(ctx)
	if err != nil {
		return nil, err
	}

	adapter, err := NewAdapter(cfg.Capabilities, logger)
	if err != nil {
		return nil, err
	}

	opts := []actionbridge.Option{
		actionbridge.WithLogger(logger),
		actionbridge.WithGame(cfg.Agent.Game),
		actionbridge.WithTimeout(cfg.Executor.DefaultTimeout),
		actionbridge.WithLifecycleHooks(observability.LoggingHooks(logger)),
	}

	store, locker, err := rt.openStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store
	opts = append(opts, actionbridge.WithStore(store))
	if locker != nil {
		opts = append(opts, actionbridge.WithLocker(locker))
	}

	if cfg.Journal.Path != "" {
		j, err := bolt.Open(cfg.Journal.Path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, j.Close)
		rt.Journal = j
	} else {
		rt.Journal = memory.NewJournal()
	}
	opts = append(opts, actionbridge.WithJournal(rt.Journal))

	rt.Metrics = observability.NewMetrics()
	opts = append(opts, actionbridge.WithMetrics(rt.Metrics))

	b, err := actionbridge.New(def, adapter, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Bridge = b
	return rt, nil
}

// LoadProcedure reads the configured procedure without building a bridge.
func LoadProcedure(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*domain.Procedure, error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	return rt.loadProcedure(ctx)
}

func (r *Runtime) loadProcedure(ctx context.Context) (*domain.Procedure, error) {
	pc := r.Config.Procedure
	switch {
	case pc.File != "":
		def, err := file.ReadProcedure(pc.File)
		if err != nil {
			return nil, err
		}
		r.Loader = file.NewLoader([]string{pc.File}, file.WithLogger(r.Logger))
		r.ProcedureID = def.ID
		return def, nil

	case pc.Library != "":
		loader, err := OpenLibrary(pc.Library)
		if err != nil {
			return nil, err
		}
		id := pc.ID
		if id == "" {
			ids, err := loader.List(ctx)
			if err != nil {
				return nil, err
			}
			if len(ids) != 1 {
				return nil, fmt.Errorf("library %s holds %d procedures (%s): set procedure.id", pc.Library, len(ids), strings.Join(ids, ", "))
			}
			id = ids[0]
		}
		def, err := loader.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		r.Loader = loader
		r.ProcedureID = id
		return def, nil
	}
	return nil, ErrNoProcedure
}

// OpenLibrary opens a directory of procedure and catalog documents.
func OpenLibrary(dir string) (*loamAdapter.Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers as json.Number across formats; the bridge
	// never writes to the library.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return loamAdapter.New(loam.NewTypedRepository[loamAdapter.ProcedureMetadata](repo)), nil
}

// NewAdapter builds the host adapter: the simulator, or local commands
// from a capability file.
func NewAdapter(cc config.CapabilitiesConfig, logger *slog.Logger) (ports.CapabilityAdapter, error) {
	if cc.Simulate {
		return sim.New(sim.WithLogger(logger)), nil
	}
	if cc.File == "" {
		return nil, ErrNoCapabilities
	}
	commands, err := process.LoadConfig(cc.File)
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		logger.Warn("Capability file binds no actions", "path", cc.File)
	}
	return process.New(
		process.WithCommands(commands),
		process.WithBaseDir(filepath.Dir(cc.File)),
		process.WithLogger(logger),
	), nil
}

// OpenStore opens the configured session store.
func OpenStore(cfg *config.Config) (ports.StateStore, func() error, error) {
	rt := &Runtime{Config: cfg}
	store, _, err := rt.openStore()
	if err != nil {
		return nil, nil, err
	}
	return store, rt.Close, nil
}

func (r *Runtime) openStore() (ports.StateStore, ports.DistributedLocker, error) {
	sc := r.Config.Store

	var (
		store  ports.StateStore
		locker ports.DistributedLocker
	)
	switch sc.Backend {
	case config.BackendFile:
		store = file.NewStore(sc.File.Path)
	case config.BackendRedis:
		rs := redis.New(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB,
			redis.WithPrefix(sc.Redis.Prefix),
			redis.WithTTL(sc.Redis.TTL),
		)
		r.closers = append(r.closers, rs.Close)
		store = rs
		var lockOpts []redis.LockerOption
		if r.Logger != nil {
			lockOpts = append(lockOpts, redis.WithLockerLogger(r.Logger))
		}
		locker = redis.NewLocker(rs.Client(), sc.Redis.Prefix+"lock:", lockOpts...)
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(sc.PIIKeys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(sc.PIIKeys))
	}
	if sc.EncryptionKey != "" {
		key, err := middleware.DecodeKey(sc.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...), locker, nil
}

// Journal opens the configured journal for reading.
func Journal(cfg *config.Config) (*bolt.Journal, error) {
	if cfg.Journal.Path == "" {
		return nil, errors.New("journal.path is not set")
	}
	return bolt.Open(cfg.Journal.Path)
}
