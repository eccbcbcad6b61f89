package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/neurosurgery/actionbridge"
	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/internal/presentation/tui"
	httpAdapter "github.com/neurosurgery/actionbridge/pkg/adapters/http"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

const shutdownGrace = 5 * time.Second

// start builds the bridge, its operator API and the procedure watcher.
func start(ctx context.Context) (*cli.Runtime, *httpAdapter.Server, error) {
	tui.PrintBanner(os.Stderr, actionbridge.Version)

	rt, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	b := rt.Bridge
	api := httpAdapter.NewServer(b.Manager(), b.Registry(), b.Procedure,
		httpAdapter.WithJournal(rt.Journal),
		httpAdapter.WithMetrics(rt.Metrics.Handler()),
		httpAdapter.WithVersion(actionbridge.Version),
		httpAdapter.WithLogger(logger),
	)
	b.AddHooks(api.Hooks())

	err = rt.Watch(ctx, func(def *domain.Procedure) {
		api.NotifyReload(def.ID)
	})
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, api, nil
}

// serveAPI runs the operator API on addr until ctx is done.
func serveAPI(ctx context.Context, addr string, api *httpAdapter.Server) {
	srv := &http.Server{Addr: addr, Handler: api.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
	}()

	logger.Info("Operator API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Operator API failed", "err", err)
	}
}

// stop aborts live sessions and releases the runtime.
func stop(rt *cli.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := rt.Bridge.Shutdown(ctx); err != nil {
		logger.Warn("Shutdown did not complete", "err", err)
	}
	if err := rt.Close(); err != nil {
		logger.Warn("Failed to close runtime", "err", err)
	}
}
