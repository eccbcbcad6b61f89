package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neurosurgery/actionbridge/internal/logging"
)

// Handler upgrades agent connections and serves each one on its own goroutine.
type Handler struct {
	serve        ServeFunc
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *slog.Logger
	base         context.Context
}

// NewHandler creates a handler; connections end when base is done.
func NewHandler(base context.Context, serve ServeFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		serve: serve,
		upgrader: websocket.Upgrader{
			// Agents are not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		logger:       logger,
		base:         base,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS Upgrade failed", "err", err)
		return
	}
	conn := NewConn(ws, h.pingInterval)
	defer conn.Close()

	h.logger.Info("Agent connected", "remote", r.RemoteAddr)
	if err := h.serve(h.base, conn); err != nil {
		h.logger.Info("Agent connection ended", "remote", r.RemoteAddr, "err", err)
	}
}

// ListenAndServe serves handler on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening for agents", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
