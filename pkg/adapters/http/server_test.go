package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/adapters/memory"
	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/dsl"
	"github.com/neurosurgery/actionbridge/pkg/executor"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/neurosurgery/actionbridge/pkg/procedure"
	"github.com/neurosurgery/actionbridge/pkg/registry"
	"github.com/neurosurgery/actionbridge/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *Server
	core    *session.Core
	manager *session.Manager
	journal *memory.Journal
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterAll(
		domain.ActionSpec{Name: "incise", Description: "Open the scalp."},
		domain.ActionSpec{Name: "close"},
	))
	def := dsl.New("craniotomy").
		Step("open").Go("incise", "work").On("next", "work").
		Step("work").Go("close", "done").
		Step("done").Terminal().
		Builder().MustBuild()
	m, err := procedure.Load(def, reg)
	require.NoError(t, err)

	journal := memory.NewJournal()
	mux := capability.NewMux()
	mux.Handle("incise", func(ctx context.Context, params map[string]any) domain.ActionOutcome {
		return domain.Succeeded("cut", map[string]any{"incised": true})
	})
	exec := executor.New(reg, capability.NewGuard(mux), executor.WithJournal(journal))

	manager := session.NewManager(memory.NewStore())
	core, err := session.NewCore(context.Background(), "s1", m, exec, reg, session.WithManager(manager))
	require.NoError(t, err)
	require.NoError(t, manager.Attach(core))
	t.Cleanup(func() {
		manager.Detach("s1")
		core.Release(context.Background())
	})

	srv := NewServer(manager, reg, func() *domain.Procedure { return def },
		WithJournal(journal),
		WithVersion("test"),
		WithPollInterval(5*time.Millisecond),
		WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		})),
	)
	return &fixture{server: srv, core: core, manager: manager, journal: journal, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestServer_ReadOnlyRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1,"version":"test"}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, "# metrics\n", w.Body.String())

	w = f.do(t, http.MethodGet, "/actions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var actions []ActionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actions))
	require.Len(t, actions, 2)
	assert.Equal(t, "close", actions[0].Name)
	assert.Equal(t, "object", actions[1].Schema["type"])

	w = f.do(t, http.MethodGet, "/procedure", "")
	require.Equal(t, http.StatusOK, w.Code)
	var def domain.Procedure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &def))
	assert.Equal(t, "craniotomy", def.ID)

	w = f.do(t, http.MethodGet, "/procedure/graph?session=s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graph TD")
	assert.Contains(t, w.Body.String(), "open")

	w = f.do(t, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []SessionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, SessionSummary{ID: "s1", Live: true, StepID: "open", Status: domain.StatusActive}, rows[0])

	w = f.do(t, http.MethodGet, "/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodOptions, "/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Signal(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/sessions/s1/signal", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/sessions/s1/signal", `{"signal":"skip"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, "/sessions/s1/signal", `{"signal":"next"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "work", st.StepID)
	assert.Equal(t, "work", f.core.Snapshot().StepID)
}

func TestServer_Abort(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/sessions/s1/abort", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusAborted, f.core.Snapshot().Status)

	w = f.do(t, http.MethodPost, "/sessions/s1/abort", `{"reason":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_Journal(t *testing.T) {
	f := newFixture(t)
	res := f.core.Handle(context.Background(), domain.ActionRequest{Action: "incise", Token: "t1"})
	require.Equal(t, domain.OutcomeSucceeded, res.Outcome)

	w := f.do(t, http.MethodGet, "/sessions/s1/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []ports.JournalEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].Request.Token)
	assert.Equal(t, "open", entries[0].FromStep)

	w = f.do(t, http.MethodGet, "/sessions/other/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_SubscribeSession(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/s1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(substr string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", substr)
				}
				if strings.Contains(line, substr) {
					return line
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", substr)
			}
		}
	}

	waitFor("data: connected")
	waitFor(`"step_id":"open"`)

	res := f.core.Handle(context.Background(), domain.ActionRequest{Action: "incise", Token: "t1"})
	require.Equal(t, domain.OutcomeSucceeded, res.Outcome)

	line := waitFor(`"step_id":"work"`)
	assert.Contains(t, line, `"incised":true`)

	require.NoError(t, f.core.Abort(context.Background(), "done"))
	waitFor(`"status":"aborted"`)
}

func TestServer_HooksBroadcast(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.server.Streams.Subscribe("s1")
	defer cancel()
	global, cancelGlobal := f.server.Streams.Subscribe(GlobalTopic)
	defer cancelGlobal()

	hooks := f.server.Hooks()
	hooks.OnActionResult(context.Background(), &domain.ActionEvent{
		EventBase: domain.EventBase{Type: domain.EventActionResult, SessionID: "s1"},
		Action:    "incise",
		Outcome:   domain.OutcomeSucceeded,
	})

	msg := <-ch
	assert.Equal(t, "action_result", msg.Event)
	assert.Contains(t, msg.Data, `"action":"incise"`)
	assert.Equal(t, msg, <-global)

	f.server.NotifyReload("craniotomy")
	assert.Equal(t, Message{Event: "reload", Data: "craniotomy"}, <-global)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(logging.NewNop())
	ch, cancel := sm.Subscribe("t")

	for i := 0; i < 20; i++ {
		sm.Broadcast("t", Message{Data: "x"})
	}
	assert.Len(t, ch, 16)
	assert.Equal(t, 1, sm.Subscribers("t"))

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("t"))
}
