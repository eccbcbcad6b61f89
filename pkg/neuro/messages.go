package neuro

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultGame is the game name announced when none is configured.
const DefaultGame = "Neuro-Sama Surgery"

// Command names a frame kind.
type Command string

const (
	// Bridge → agent
	CommandStartup      Command = "startup"
	CommandContext      Command = "context"
	CommandActionResult Command = "action/result"
	CommandRegister     Command = "actions/register"
	CommandUnregister   Command = "actions/unregister"
	CommandForce        Command = "actions/force"

	// Agent → bridge
	CommandAction        Command = "action"
	CommandReregisterAll Command = "actions/reregister_all"
)

// Priority of a forced action.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Message is the envelope shared by every frame.
type Message struct {
	Command Command             `json:"command"`
	Game    string              `json:"game,omitempty"`
	Data    jsoniter.RawMessage `json:"data,omitempty"`
}

// ContextData tells the agent something about the world.
type ContextData struct {
	Message string `json:"message"`
	Silent  bool   `json:"silent"`
}

// ActionResultData answers exactly one inbound action.
type ActionResultData struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Action describes one invokable action to the agent.
type Action struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// RegisterData advertises actions.
type RegisterData struct {
	Actions []Action `json:"actions"`
}

// UnregisterData withdraws actions.
type UnregisterData struct {
	ActionNames []string `json:"action_names"`
}

// ForceData asks the agent to pick one of ActionNames now.
type ForceData struct {
	State            string   `json:"state,omitempty"`
	Query            string   `json:"query"`
	EphemeralContext bool     `json:"ephemeral_context"`
	Priority         Priority `json:"priority,omitempty"`
	ActionNames      []string `json:"action_names"`
}

// ActionData is the payload of an inbound action frame.
// Data normally holds a JSON string; a raw object is accepted too.
type ActionData struct {
	ID   string              `json:"id"`
	Name string              `json:"name"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}
