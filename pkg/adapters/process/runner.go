// Package process performs actions by running allow-listed local commands.
//
// Parameters reach the command as BRIDGE_ARG_<NAME> environment variables,
// never as command-line arguments. A command that prints a JSON object on
// stdout may set "message" and a "context" delta; any other output becomes
// the result message. A non-zero exit is a failed outcome.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// EnvPrefix prefixes every parameter variable.
const EnvPrefix = "BRIDGE_ARG_"

// DefaultGracePeriod is how long a cancelled command may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Adapter implements ports.CapabilityAdapter over local processes.
type Adapter struct {
	registry map[string]CommandConfig
	baseDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// Option configures the adapter.
type Option func(*Adapter)

// WithCommands populates the allow-list from a loaded config.
func WithCommands(commands map[string]CommandConfig) Option {
	return func(a *Adapter) {
		for _, c := range commands {
			a.registry[c.Action] = c
		}
	}
}

// WithBaseDir sets the working directory for commands that set none.
func WithBaseDir(dir string) Option {
	return func(a *Adapter) {
		a.baseDir = dir
	}
}

// WithGracePeriod sets the interrupt-to-kill delay.
func WithGracePeriod(d time.Duration) Option {
	return func(a *Adapter) {
		a.grace = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a process adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		registry: make(map[string]CommandConfig),
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds a trusted command to the allow-list.
func (a *Adapter) Register(action, command string, args ...string) {
	a.registry[action] = CommandConfig{Action: action, Command: command, Args: args}
}

// Actions returns the allow-listed action names, sorted.
func (a *Adapter) Actions() []string {
	out := make([]string, 0, len(a.registry))
	for name := range a.registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type commandOutput struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// Perform implements ports.CapabilityAdapter.
func (a *Adapter) Perform(ctx context.Context, action string, params map[string]any) domain.ActionOutcome {
	proc, ok := a.registry[action]
	if !ok {
		return domain.Failed(action, fmt.Errorf("process capability not registered: %s", action))
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = proc.Dir
	if cmd.Dir == "" {
		cmd.Dir = a.baseDir
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = a.grace

	env := cmd.Environ()
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env, "BRIDGE_ACTION="+action)
	for k, v := range params {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.logger.Debug("Process capability finished",
		"action", action,
		"command", proc.Command,
		"duration", time.Since(start),
		"err", err,
	)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return domain.Failed(action, fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String())))
	}

	trimmed := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var out commandOutput
		if jsonErr := json.Unmarshal([]byte(trimmed), &out); jsonErr == nil {
			return domain.Succeeded(out.Message, out.Context)
		}
	}
	return domain.Succeeded(trimmed, nil)
}

// envValue renders primitives as text and anything structured as JSON.
func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", val)
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}
