package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neurosurgery/actionbridge/internal/logging"
)

// DefaultURL is the agent endpoint used when none is configured.
const DefaultURL = "ws://localhost:8000"

// ServeFunc handles one connection and returns when it is done with it.
// A nil return ends the dial loop; an error triggers a reconnect.
type ServeFunc func(ctx context.Context, conn *Conn) error

// ReconnectConfig bounds the exponential backoff between dial attempts.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	MaxAttempts  int // 0 = infinite
}

// DefaultReconnect returns a ReconnectConfig with sensible defaults.
func DefaultReconnect() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
	}
}

// ErrMaxAttempts is returned when the dial loop gives up.
var ErrMaxAttempts = errors.New("websocket: max reconnection attempts reached")

// Client dials the agent endpoint and keeps reconnecting.
type Client struct {
	URL          string
	Reconnect    ReconnectConfig
	PingInterval time.Duration
	Logger       *slog.Logger

	dialer websocket.Dialer
}

// NewClient creates a client for url with default reconnection settings.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:          url,
		Reconnect:    DefaultReconnect(),
		PingInterval: 30 * time.Second,
		Logger:       logging.NewNop(),
		dialer:       websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run dials, hands each connection to serve, and redials with backoff
// until serve returns nil, attempts run out or ctx is done.
func (c *Client) Run(ctx context.Context, serve ServeFunc) error {
	delay := c.Reconnect.InitialDelay
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			c.Logger.Warn("Connection failed", "url", c.URL, "attempt", attempts, "err", err)
			if c.Reconnect.MaxAttempts > 0 && attempts >= c.Reconnect.MaxAttempts {
				return fmt.Errorf("%w: %v", ErrMaxAttempts, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * c.Reconnect.Factor)
			if delay > c.Reconnect.MaxDelay {
				delay = c.Reconnect.MaxDelay
			}
			continue
		}

		delay = c.Reconnect.InitialDelay
		attempts = 0

		err = serve(ctx, conn)
		_ = conn.Close()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("Connection lost", "url", c.URL, "err", err)
	}
}

func (c *Client) dial(ctx context.Context) (*Conn, error) {
	c.Logger.Info("Connecting to agent", "url", c.URL)
	ws, _, err := c.dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	c.Logger.Info("Connected to agent", "url", c.URL)
	return NewConn(ws, c.PingInterval), nil
}
