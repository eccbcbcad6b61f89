// Package mcp binds a session to the Model Context Protocol: every action
// enabled in the current step is exposed as an MCP tool, and the tool list
// follows the procedure as it advances.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/internal/presentation/graph"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/neuro"
	"github.com/neurosurgery/actionbridge/pkg/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// StatusTool reports the session state; it is always listed.
	StatusTool = "procedure_status"
	// GraphURI is the resource holding the procedure as a Mermaid graph.
	GraphURI = "actionbridge://procedure/graph"
)

// Status is the payload of the procedure_status tool.
type Status struct {
	SessionID   string               `json:"session_id"`
	ProcedureID string               `json:"procedure_id"`
	StepID      string               `json:"step_id"`
	Status      domain.SessionStatus `json:"status"`
	Sequence    uint64               `json:"sequence"`
	Context     map[string]any       `json:"context,omitempty"`
	Enabled     []string             `json:"enabled"`
	Description string               `json:"description"`
}

// Server exposes one session over MCP.
type Server struct {
	core      *session.Core
	mcpServer *server.MCPServer
	manager   *session.Manager
	logger    *slog.Logger

	mu    sync.Mutex // serializes tool list updates
	tools map[string]struct{}
}

// Option configures the Server.
type Option func(*Server)

// WithManager makes the session visible to the operator API.
func WithManager(m *session.Manager) Option {
	return func(s *Server) {
		s.manager = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server for core and publishes the tools of the
// initial step.
func NewServer(core *session.Core, version string, opts ...Option) *Server {
	s := &Server{
		core:      core,
		mcpServer: server.NewMCPServer("actionbridge", version, server.WithToolCapabilities(true), server.WithResourceCapabilities(false, false)),
		logger:    logging.NewNop(),
		tools:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer.AddTool(mcp.NewTool(StatusTool,
		mcp.WithDescription("Report the current procedure step, the session context and the actions available now."),
	), s.handleStatus)
	s.registerResources()
	s.resync(core.Sync())
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ID implements session.Controller.
func (s *Server) ID() string { return s.core.ID() }

// Snapshot implements session.Controller.
func (s *Server) Snapshot() *domain.SessionState { return s.core.Snapshot() }

// Signal implements session.Controller.
func (s *Server) Signal(ctx context.Context, name string) (domain.Step, error) {
	step, err := s.core.Signal(ctx, name)
	if err != nil {
		return step, err
	}
	s.afterTransition()
	return step, nil
}

// Abort implements session.Controller.
func (s *Server) Abort(ctx context.Context, reason string) error {
	if err := s.core.Abort(ctx, reason); err != nil {
		return err
	}
	s.withdraw()
	return nil
}

// Tools returns the action tools currently listed, sorted.
func (s *Server) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeStdio serves MCP on stdin and stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP on the given streams until ctx is done or in closes.
// The session is aborted if still active and its state released on return.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.manager != nil {
		if err := s.manager.Attach(s); err != nil {
			return err
		}
		defer s.manager.Detach(s.ID())
	}
	defer s.core.Release(ctx)
	defer func() {
		if s.core.Active() {
			if err := s.core.Abort(context.WithoutCancel(ctx), "shutdown"); err != nil {
				s.logger.Debug("Abort on shutdown failed", "err", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchCatalog(ctx)

	s.logger.Info("MCP session started", "session_id", s.ID(), "procedure", s.core.Machine().ID())
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) watchCatalog(ctx context.Context) {
	events := s.core.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.core.Active() {
				s.resync(s.core.Apply(ev))
			}
		}
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Procedure graph",
		mcp.WithResourceDescription("The procedure as a Mermaid flowchart with the session's path highlighted."),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		def := s.core.Machine().Definition()
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "text/plain",
				Text:     graph.GenerateMermaid(&def, graph.OverlayFor(s.core.Snapshot())),
			},
		}, nil
	})
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.core.Snapshot()
	enabled := s.core.Enabled()
	status := Status{
		SessionID:   st.SessionID,
		ProcedureID: st.ProcedureID,
		StepID:      st.StepID,
		Status:      st.Status,
		Sequence:    st.Sequence,
		Context:     st.Context,
		Enabled:     enabled,
		Description: session.StepContext(s.core.Machine(), st, enabled),
	}
	data, err := json.Marshal(status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleAction runs one agent request. Each call gets a fresh token, so the
// agent may retry a failed call.
func (s *Server) handleAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := domain.ActionRequest{
		Action: request.Params.Name,
		Params: request.GetArguments(),
		Token:  uuid.NewString(),
	}
	s.logger.Debug("MCP tool call", "action", req.Action, "token", req.Token)

	res := s.core.Handle(ctx, req)
	s.afterTransition()

	success, message := neuro.RenderResult(res)
	text := message + "\n" + session.ResultContext(res)
	if res.Completed {
		text += "\n" + session.MsgProcedureComplete
	}
	if !success {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) afterTransition() {
	if !s.core.Active() {
		s.withdraw()
		return
	}
	s.resync(s.core.Sync())
}

// withdraw removes every action tool once the session has ended.
func (s *Server) withdraw() {
	s.resync(session.Delta{Unregister: s.core.Retract()})
}

func (s *Server) resync(d session.Delta) {
	if d.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(d.Unregister) > 0 {
		s.mcpServer.DeleteTools(d.Unregister...)
		for _, name := range d.Unregister {
			delete(s.tools, name)
		}
	}

	var add []server.ServerTool
	for _, name := range d.Register {
		tool, err := s.tool(name)
		if err != nil {
			s.logger.Warn("Action not exposed", "action", name, "err", err)
			continue
		}
		add = append(add, server.ServerTool{Tool: tool, Handler: s.handleAction})
		s.tools[name] = struct{}{}
	}
	if len(add) > 0 {
		s.mcpServer.AddTools(add...)
	}
	s.logger.Debug("MCP tools resynced", "added", d.Register, "removed", d.Unregister)
}

func (s *Server) tool(name string) (mcp.Tool, error) {
	catalog := s.core.Catalog()
	spec, err := catalog.Lookup(name)
	if err != nil {
		return mcp.Tool{}, err
	}
	schema, err := catalog.JSONSchema(name)
	if err != nil {
		return mcp.Tool{}, err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to encode schema for %s: %w", name, err)
	}
	return mcp.NewToolWithRawSchema(name, spec.Description, raw), nil
}
