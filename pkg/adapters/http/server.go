// Package http exposes the operator API of the Action Bridge: read-only views
// of the procedure, the action catalog and the sessions, plus the operator
// controls (signals and aborts) and Server-Sent Event streams.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/internal/presentation/graph"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	"github.com/neurosurgery/actionbridge/pkg/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPollInterval is how often a session stream checks for new state.
const DefaultPollInterval = 250 * time.Millisecond

// Sessions is the view of the session manager the API needs.
type Sessions interface {
	List(ctx context.Context) ([]string, error)
	Live() []string
	Get(sessionID string) (session.Controller, error)
	Snapshot(ctx context.Context, sessionID string) (*domain.SessionState, error)
}

// Catalog is the view of the action registry the API needs.
type Catalog interface {
	List() []domain.ActionSpec
	JSONSchema(name string) (map[string]any, error)
}

// Server serves the operator API.
type Server struct {
	sessions  Sessions
	catalog   Catalog
	procedure func() *domain.Procedure
	journal   ports.Journal
	metrics   http.Handler
	version   string
	poll      time.Duration
	logger    *slog.Logger

	Streams *StreamManager
}

// Option configures the Server.
type Option func(*Server)

// WithJournal serves the audit trail of each session.
func WithJournal(j ports.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion reports v on /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithPollInterval sets how often session streams check for new state.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the API. procedure returns the definition new sessions
// run, so a reloaded procedure is visible without restarting the server.
func NewServer(sessions Sessions, catalog Catalog, procedure func() *domain.Procedure, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		catalog:   catalog,
		procedure: procedure,
		poll:      DefaultPollInterval,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/actions", s.GetActions)
	r.Get("/procedure", s.GetProcedure)
	r.Get("/procedure/graph", s.GetGraph)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Post("/signal", s.Signal)
			r.Post("/abort", s.Abort)
			r.Get("/journal", s.GetJournal)
			r.Get("/events", s.SubscribeSession)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Hooks broadcasts lifecycle events to the /events streams.
func (s *Server) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			s.broadcast(ev.SessionID, string(ev.Type), ev)
		},
		OnActionResult: func(_ context.Context, ev *domain.ActionEvent) {
			s.broadcast(ev.SessionID, string(ev.Type), ev)
		},
	}
}

// NotifyReload tells every global subscriber that procedure id was reloaded.
func (s *Server) NotifyReload(id string) {
	s.Streams.Broadcast(GlobalTopic, Message{Event: "reload", Data: id})
}

func (s *Server) broadcast(sessionID, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode stream event", "event", event, "err", err)
		return
	}
	msg := Message{Event: event, Data: string(data)}
	s.Streams.Broadcast(GlobalTopic, msg)
	s.Streams.Broadcast(sessionID, msg)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.Live()),
	}
	if s.version != "" {
		resp["version"] = s.version
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ActionView is one catalog entry with its wire schema.
type ActionView struct {
	domain.ActionSpec
	Schema map[string]any `json:"schema,omitempty"`
}

// GetActions handles GET /actions.
func (s *Server) GetActions(w http.ResponseWriter, r *http.Request) {
	specs := s.catalog.List()
	views := make([]ActionView, 0, len(specs))
	for _, spec := range specs {
		v := ActionView{ActionSpec: spec}
		if schema, err := s.catalog.JSONSchema(spec.Name); err == nil {
			v.Schema = schema
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, views)
}

// GetProcedure handles GET /procedure.
func (s *Server) GetProcedure(w http.ResponseWriter, r *http.Request) {
	def := s.procedure()
	if def == nil {
		s.writeError(w, http.StatusNotFound, "no procedure loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// GetGraph handles GET /procedure/graph. With ?session=id the current and
// visited steps of that session are highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	def := s.procedure()
	if def == nil {
		s.writeError(w, http.StatusNotFound, "no procedure loaded")
		return
	}

	var overlay *graph.Overlay
	if id := r.URL.Query().Get("session"); id != "" {
		st, err := s.sessions.Snapshot(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		overlay = graph.OverlayFor(st)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(def, overlay))
}

// SessionSummary is one row of GET /sessions.
type SessionSummary struct {
	ID     string               `json:"id"`
	Live   bool                 `json:"live"`
	StepID string               `json:"step_id,omitempty"`
	Status domain.SessionStatus `json:"status,omitempty"`
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list sessions", "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	live := make(map[string]bool)
	for _, id := range s.sessions.Live() {
		live[id] = true
	}

	out := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		row := SessionSummary{ID: id, Live: live[id]}
		if st, err := s.sessions.Snapshot(r.Context(), id); err == nil {
			row.StepID = st.StepID
			row.Status = st.Status
		}
		out = append(out, row)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.sessions.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// SignalRequest is the body of POST /sessions/{id}/signal.
type SignalRequest struct {
	Signal string `json:"signal"`
}

// Signal handles POST /sessions/{id}/signal.
func (s *Server) Signal(w http.ResponseWriter, r *http.Request) {
	var body SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signal == "" {
		s.writeError(w, http.StatusBadRequest, "body must be {\"signal\": \"<name>\"}")
		return
	}

	c, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	step, err := c.Signal(r.Context(), body.Signal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.logger.Info("Operator signal accepted", "session_id", c.ID(), "signal", body.Signal, "step", step.ID)
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

// AbortRequest is the optional body of POST /sessions/{id}/abort.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// Abort handles POST /sessions/{id}/abort.
func (s *Server) Abort(w http.ResponseWriter, r *http.Request) {
	var body AbortRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "operator request"
	}

	c, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := c.Abort(r.Context(), body.Reason); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

// GetJournal handles GET /sessions/{id}/journal.
func (s *Server) GetJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	entries, err := s.journal.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("Failed to read journal", "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []ports.JournalEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// SubscribeEvents handles GET /events (SSE): lifecycle events of every
// session and procedure reloads.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	startStream(w, flusher)

	ch, cancel := s.Streams.Subscribe(GlobalTopic)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()
		}
	}
}

// SubscribeSession handles GET /sessions/{id}/events (SSE). The first event
// carries the full state; later ones carry only what changed. The stream
// ends once the session is no longer active.
func (s *Server) SubscribeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	last, err := s.sessions.Snapshot(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	startStream(w, flusher)

	s.writeDiff(w, domain.Diff(nil, last))
	flusher.Flush()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for last.Active() {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			st, err := s.sessions.Snapshot(r.Context(), id)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					writeEvent(w, Message{Event: "closed", Data: id})
					flusher.Flush()
				}
				return
			}
			if diff := domain.Diff(last, st); diff != nil {
				s.writeDiff(w, diff)
				flusher.Flush()
			}
			last = st
		}
	}
}

func (s *Server) writeDiff(w io.Writer, diff *domain.StateDiff) {
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Warn("Failed to encode state diff", "session_id", diff.SessionID, "err", err)
		return
	}
	writeEvent(w, Message{Event: "state", Data: string(data)})
}

func startStream(w http.ResponseWriter, flusher http.Flusher) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
}

func writeEvent(w io.Writer, msg Message) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps bridge errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnhandledSignal):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeError(w, status, err.Error())
}
