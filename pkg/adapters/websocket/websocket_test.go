package websocket_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/neurosurgery/actionbridge/pkg/adapters/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandler_ServesFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	h := websocket.NewHandler(ctx, func(ctx context.Context, conn *websocket.Conn) error {
		frame, err := conn.Read()
		if err != nil {
			return err
		}
		got <- string(frame)
		return conn.Write([]byte(`{"command":"startup"}`))
	}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws, _, err := gws.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(gws.TextMessage, []byte(`{"command":"action"}`)))
	_, reply, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"startup"}`, string(reply))
	assert.Equal(t, `{"command":"action"}`, <-got)
}

func TestConn_CleanCloseIsEOF(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	h := websocket.NewHandler(ctx, func(ctx context.Context, conn *websocket.Conn) error {
		_, err := conn.Read()
		result <- err
		return err
	}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws, _, err := gws.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "")))
	defer ws.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return")
	}
}

func TestClient_ReconnectsUntilServeSucceeds(t *testing.T) {
	upgrader := gws.Upgrader{}
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := accepted.Add(1)
		_ = ws.WriteMessage(gws.TextMessage, []byte{byte('0' + n)})
		// Keep the socket open until the client hangs up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := websocket.NewClient(wsURL(srv))
	client.Reconnect.InitialDelay = 10 * time.Millisecond

	var served []string
	err := client.Run(context.Background(), func(ctx context.Context, conn *websocket.Conn) error {
		frame, err := conn.Read()
		if err != nil {
			return err
		}
		served = append(served, string(frame))
		if len(served) == 1 {
			return errors.New("session lost")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, served)
}

func TestClient_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := websocket.NewClient(wsURL(srv))
	client.Reconnect = websocket.ReconnectConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2, MaxAttempts: 3}

	err := client.Run(context.Background(), func(ctx context.Context, conn *websocket.Conn) error {
		t.Fatal("serve must not be called")
		return nil
	})
	assert.ErrorIs(t, err, websocket.ErrMaxAttempts)
}

func TestClient_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := websocket.NewClient(wsURL(srv))
	client.Reconnect.InitialDelay = 10 * time.Millisecond
	err := client.Run(ctx, func(ctx context.Context, conn *websocket.Conn) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- websocket.ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
