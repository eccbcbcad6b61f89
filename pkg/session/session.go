package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/neuro"
)

// ErrAgentDisconnected ends a session whose connection went away.
var ErrAgentDisconnected = errors.New("agent disconnected")

// Conn is a message-oriented connection to the agent.
// Read returns io.EOF when the peer closed the connection cleanly.
type Conn interface {
	Read() ([]byte, error)
	Write(frame []byte) error
	Close() error
}

// Config configures a Session.
type Config struct {
	// Game is the name announced in every frame.
	Game   string
	Logger *slog.Logger
}

type signalReply struct {
	step domain.Step
	err  error
}

type signalRequest struct {
	name  string
	reply chan signalReply
}

type abortRequest struct {
	reason string
	reply  chan error
}

// Session speaks the Neuro SDK protocol for one Core over one Conn.
type Session struct {
	core   *Core
	conn   Conn
	enc    neuro.Encoder
	logger *slog.Logger

	signals chan signalRequest
	aborts  chan abortRequest
	done    chan struct{}
}

// New binds core to conn.
func New(core *Core, conn Conn, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		core:    core,
		conn:    conn,
		enc:     neuro.NewEncoder(cfg.Game),
		logger:  logger.With("session_id", core.ID()),
		signals: make(chan signalRequest),
		aborts:  make(chan abortRequest),
		done:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.core.ID() }

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() *domain.SessionState { return s.core.Snapshot() }

// Signal routes an operator signal through the session loop.
func (s *Session) Signal(ctx context.Context, name string) (domain.Step, error) {
	req := signalRequest{name: name, reply: make(chan signalReply, 1)}
	select {
	case s.signals <- req:
	case <-s.done:
		return domain.Step{}, domain.ErrSessionClosed
	case <-ctx.Done():
		return domain.Step{}, ctx.Err()
	}
	r := <-req.reply
	return r.step, r.err
}

// Abort terminates the session through the session loop.
func (s *Session) Abort(ctx context.Context, reason string) error {
	req := abortRequest{reason: reason, reply: make(chan error, 1)}
	select {
	case s.aborts <- req:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Run serves the connection until the procedure completes, the session is
// aborted, the agent disconnects or ctx is cancelled. It returns nil for a
// completed or aborted session and ErrAgentDisconnected when the connection
// was lost. The session state is released in every case.
func (s *Session) Run(ctx context.Context) (err error) {
	defer close(s.done)
	defer s.conn.Close()
	defer s.core.Release(ctx)

	if m := s.core.manager; m != nil {
		if err := m.Attach(s); err != nil {
			return err
		}
		defer m.Detach(s.ID())
	}

	s.logger.Info("Session started", "procedure", s.core.Machine().ID(), "step", s.core.Step().ID)
	defer func() {
		s.logger.Info("Session ended", "err", err)
	}()

	if err := s.open(); err != nil {
		return err
	}
	if !s.core.Active() {
		return s.finish(MsgProcedureComplete)
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go s.readLoop(frames, readErr, stop)

	events := s.core.Events()
	for {
		select {
		case <-ctx.Done():
			if ferr := s.finish(MsgSessionTerminated); ferr != nil {
				s.logger.Debug("Termination notice not delivered", "err", ferr)
			}
			return ctx.Err()

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return ErrAgentDisconnected
			}
			return fmt.Errorf("%w: %v", ErrAgentDisconnected, err)

		case frame := <-frames:
			finished, err := s.handleFrame(ctx, frame)
			if err != nil {
				// The agent is gone; the result is discarded with the state.
				return fmt.Errorf("%w: %v", ErrAgentDisconnected, err)
			}
			if finished {
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := s.push(s.core.Apply(ev)); err != nil {
				return fmt.Errorf("%w: %v", ErrAgentDisconnected, err)
			}

		case req := <-s.signals:
			finished, err := s.handleSignal(ctx, req)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrAgentDisconnected, err)
			}
			if finished {
				return nil
			}

		case req := <-s.aborts:
			if err := s.core.Abort(ctx, req.reason); err != nil {
				req.reply <- err
				continue
			}
			req.reply <- nil
			return s.finish(MsgSessionTerminated)
		}
	}
}

func (s *Session) readLoop(frames chan<- []byte, readErr chan<- error, stop <-chan struct{}) {
	for {
		frame, err := s.conn.Read()
		if err != nil {
			readErr <- err
			return
		}
		s.logger.Debug("Received message", "frame", string(frame))
		select {
		case frames <- frame:
		case <-stop:
			return
		}
	}
}

// open announces the game, the procedure and the first actions.
func (s *Session) open() error {
	if err := s.send(s.enc.Startup()); err != nil {
		return err
	}
	st := s.core.Snapshot()
	if err := s.send(s.enc.Context(StepContext(s.core.Machine(), st, s.core.Enabled()), false)); err != nil {
		return err
	}
	if err := s.push(s.core.Sync()); err != nil {
		return err
	}
	return s.force()
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) (bool, error) {
	msg, err := neuro.Decode(frame)
	if err != nil {
		return false, s.diagnose(err)
	}

	switch msg.Command {
	case neuro.CommandAction:
	case neuro.CommandReregisterAll:
		s.core.Retract()
		return false, s.push(s.core.Sync())
	default:
		return false, s.diagnose(&domain.ProtocolError{Reason: fmt.Sprintf("unexpected command %q", msg.Command)})
	}

	call, err := neuro.ParseAction(frame)
	if err != nil {
		if call.ID == "" {
			return false, s.diagnose(err)
		}
		s.logger.Warn("Rejected malformed action", "token", call.ID, "err", err)
		return false, s.send(s.enc.Result(call.ID, false, fmt.Sprintf("[%s] %v", domain.OutcomeRejected, err)))
	}

	from := s.core.Step().ID
	res := s.core.Handle(ctx, call.Request())

	success, text := neuro.RenderResult(res)
	if err := s.send(s.enc.Result(call.ID, success, text)); err != nil {
		return false, err
	}
	if err := s.send(s.enc.Context(ResultContext(res), true)); err != nil {
		return false, err
	}
	return s.afterTransition(from)
}

func (s *Session) handleSignal(ctx context.Context, req signalRequest) (bool, error) {
	from := s.core.Step().ID
	step, err := s.core.Signal(ctx, req.name)
	req.reply <- signalReply{step: step, err: err}
	if err != nil {
		return false, nil
	}
	st := s.core.Snapshot()
	if err := s.send(s.enc.Context(fmt.Sprintf("Operator signal %q. %s", req.name, StepContext(s.core.Machine(), st, s.core.Enabled())), false)); err != nil {
		return false, err
	}
	return s.afterTransition(from)
}

// afterTransition completes the session or resyncs the agent's actions.
func (s *Session) afterTransition(from string) (bool, error) {
	if !s.core.Active() {
		return true, s.finish(MsgProcedureComplete)
	}
	if err := s.push(s.core.Sync()); err != nil {
		return false, err
	}
	if s.core.Step().ID != from {
		return false, s.force()
	}
	return false, nil
}

// finish tells the agent the session is over and withdraws every action.
func (s *Session) finish(notice string) error {
	if err := s.send(s.enc.Context(notice, false)); err != nil {
		return err
	}
	if names := s.core.Retract(); len(names) > 0 {
		return s.send(s.enc.Unregister(names))
	}
	return nil
}

func (s *Session) push(d Delta) error {
	if len(d.Unregister) > 0 {
		if err := s.send(s.enc.Unregister(d.Unregister)); err != nil {
			return err
		}
	}
	if len(d.Register) == 0 {
		return nil
	}

	catalog := s.core.Catalog()
	actions := make([]neuro.Action, 0, len(d.Register))
	for _, name := range d.Register {
		spec, err := catalog.Lookup(name)
		if err != nil {
			s.logger.Warn("Skipping action missing from catalog", "action", name, "err", err)
			continue
		}
		schema, err := catalog.JSONSchema(name)
		if err != nil {
			s.logger.Warn("Skipping action without schema", "action", name, "err", err)
			continue
		}
		actions = append(actions, neuro.Action{Name: name, Description: spec.Description, Schema: schema})
	}
	if len(actions) == 0 {
		return nil
	}
	return s.send(s.enc.Register(actions))
}

// force asks the agent to act if the current step defines a prompt.
func (s *Session) force() error {
	step := s.core.Step()
	enabled := s.core.Enabled()
	if step.Force == nil || len(enabled) == 0 {
		return nil
	}
	return s.send(s.enc.Force(neuro.ForceData{
		State:            step.Force.State,
		Query:            step.Force.Query,
		EphemeralContext: step.Force.EphemeralContext,
		Priority:         neuro.Priority(step.Force.Priority),
		ActionNames:      enabled,
	}))
}

// diagnose reports a malformed frame without an id as a silent context.
func (s *Session) diagnose(err error) error {
	s.logger.Warn("Malformed frame", "err", err)
	return s.send(s.enc.Context(err.Error(), true))
}

func (s *Session) send(frame []byte, err error) error {
	if err != nil {
		return err
	}
	s.logger.Debug("Sent message", "frame", string(frame))
	return s.conn.Write(frame)
}
