package neuro

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Encoder builds outbound frames for one game.
type Encoder struct {
	Game string
}

// NewEncoder creates an encoder; an empty game falls back to DefaultGame.
func NewEncoder(game string) Encoder {
	if game == "" {
		game = DefaultGame
	}
	return Encoder{Game: game}
}

func (e Encoder) frame(cmd Command, data any) ([]byte, error) {
	msg := Message{Command: cmd, Game: e.Game}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", cmd, err)
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// Startup clears any actions the agent remembers from a previous run.
func (e Encoder) Startup() ([]byte, error) {
	return e.frame(CommandStartup, nil)
}

// Context sends an informational message.
func (e Encoder) Context(message string, silent bool) ([]byte, error) {
	return e.frame(CommandContext, ContextData{Message: message, Silent: silent})
}

// Result answers the action with the given id.
func (e Encoder) Result(id string, success bool, message string) ([]byte, error) {
	return e.frame(CommandActionResult, ActionResultData{ID: id, Success: success, Message: message})
}

// Register advertises actions.
func (e Encoder) Register(actions []Action) ([]byte, error) {
	return e.frame(CommandRegister, RegisterData{Actions: actions})
}

// Unregister withdraws actions by name.
func (e Encoder) Unregister(names []string) ([]byte, error) {
	return e.frame(CommandUnregister, UnregisterData{ActionNames: names})
}

// Force makes the agent choose one of the named actions.
func (e Encoder) Force(data ForceData) ([]byte, error) {
	if data.Priority == "" {
		data.Priority = PriorityLow
	}
	return e.frame(CommandForce, data)
}

// Decode parses a frame envelope.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, &domain.ProtocolError{Reason: "malformed frame", Err: err}
	}
	if msg.Command == "" {
		return Message{}, &domain.ProtocolError{Reason: "frame has no command"}
	}
	return msg, nil
}

// Call is a decoded inbound action.
type Call struct {
	ID     string
	Name   string
	Params map[string]any
}

// Request converts the call into an executor request; the frame id is the token.
func (c Call) Request() domain.ActionRequest {
	return domain.ActionRequest{Action: c.Name, Params: c.Params, Token: c.ID}
}

// ParseAction decodes an inbound action frame. On a *domain.ProtocolError the
// returned Call still carries whatever id could be read, so the caller can
// answer the agent.
func ParseAction(frame []byte) (Call, error) {
	msg, err := Decode(frame)
	if err != nil {
		return Call{}, err
	}
	if msg.Command != CommandAction {
		return Call{}, &domain.ProtocolError{Reason: fmt.Sprintf("unexpected command %q", msg.Command)}
	}
	if len(msg.Data) == 0 {
		return Call{}, &domain.ProtocolError{Reason: "action frame has no data"}
	}

	var data ActionData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return Call{}, &domain.ProtocolError{Reason: "malformed action data", Err: err}
	}
	call := Call{ID: data.ID, Name: data.Name}
	if data.ID == "" {
		return call, &domain.ProtocolError{Reason: "action has no id"}
	}
	if data.Name == "" {
		return call, &domain.ProtocolError{Reason: "action has no name"}
	}

	params, err := decodeParams(data.Data)
	if err != nil {
		return call, &domain.ProtocolError{Reason: "action parameters are not a JSON object", Err: err}
	}
	call.Params = params
	return call, nil
}

func decodeParams(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		raw = []byte(strings.TrimSpace(inner))
		if len(raw) == 0 {
			return map[string]any{}, nil
		}
	}
	if raw[0] != '{' {
		return nil, errors.New("expected an object")
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// RenderResult maps an executor result onto the action/result fields.
// Only a succeeded outcome counts as success; the outcome tag and any
// context delta are carried in the message text.
func RenderResult(res domain.ActionResult) (bool, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", res.Outcome)
	if res.Message != "" {
		b.WriteString(" ")
		b.WriteString(res.Message)
	}
	if len(res.ContextDelta) > 0 {
		b.WriteString(" context: ")
		b.WriteString(FormatContext(res.ContextDelta))
	}
	return res.Outcome == domain.OutcomeSucceeded, b.String()
}

// FormatContext renders a context map as key=value pairs in key order.
func FormatContext(ctx map[string]any) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(ctx[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", ctx[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, ", ")
}
