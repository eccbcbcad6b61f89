// Package sim is a simulated imaging host for the ventriculostomy example.
// It tracks a drill tip and a catheter in millimeters and degrees so that
// procedures can be exercised end to end without a real host attached.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/capability"
	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// Ventricle depth window, in millimeters from the burr hole.
const (
	VentricleMinDepth = 45.0
	VentricleMaxDepth = 65.0
)

// Pose is the simulated drill pose.
type Pose struct {
	X, Y, Z float64 // mm; Z grows towards the patient
	Yaw     float64 // degrees, right positive
	Pitch   float64 // degrees, up positive
}

// Host simulates the host capability surface.
type Host struct {
	mux     *capability.Mux
	latency time.Duration
	logger  *slog.Logger

	mu             sync.Mutex
	pose          Pose
	burrHole      bool
	catheterDepth float64
}

// Option configures the simulator.
type Option func(*Host)

// WithLatency delays every action, imitating host motion time.
func WithLatency(d time.Duration) Option {
	return func(h *Host) {
		h.latency = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// New creates a simulator at the origin pose.
func New(opts ...Option) *Host {
	h := &Host{
		mux:    capability.NewMux(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.Handle("begin_procedure", func(ctx context.Context, _ map[string]any) domain.ActionOutcome {
		return domain.Succeeded("Procedure started", map[string]any{"patient_positioned": true})
	})
	h.mux.Handle("move_drill", capability.Typed("move_drill", h.moveDrill))
	h.mux.Handle("pivot_drill", capability.Typed("pivot_drill", h.pivotDrill))
	h.mux.Handle("drill_burr_hole", func(ctx context.Context, _ map[string]any) domain.ActionOutcome {
		msg, delta, err := h.drillBurrHole(ctx)
		if err != nil {
			return domain.Failed("drill_burr_hole", err)
		}
		return domain.Succeeded(msg, delta)
	})
	h.mux.Handle("insert_catheter", capability.Typed("insert_catheter", h.insertCatheter))
	h.mux.Handle("verify_placement", func(ctx context.Context, _ map[string]any) domain.ActionOutcome {
		return h.verifyPlacement()
	})
	return h
}

// Actions lists the simulated capabilities.
func (h *Host) Actions() []string { return h.mux.Actions() }

// Pose returns the current drill pose.
func (h *Host) Pose() Pose {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pose
}

// Perform implements ports.CapabilityAdapter.
func (h *Host) Perform(ctx context.Context, action string, params map[string]any) domain.ActionOutcome {
	if h.latency > 0 {
		select {
		case <-time.After(h.latency):
		case <-ctx.Done():
			return domain.Failed(action, ctx.Err())
		}
	}
	out := h.mux.Perform(ctx, action, params)
	h.logger.Debug("Simulated action", "action", action, "outcome", out.Tag, "message", out.Message)
	return out
}

// MoveInput is the move_drill parameter set.
type MoveInput struct {
	Distance  float64 `mapstructure:"distance"`
	Direction string  `mapstructure:"direction"`
}

func (h *Host) moveDrill(_ context.Context, in MoveInput) (string, map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch in.Direction {
	case "left":
		h.pose.X -= in.Distance
	case "right":
		h.pose.X += in.Distance
	case "forward":
		h.pose.Y += in.Distance
	case "backward":
		h.pose.Y -= in.Distance
	default:
		return "", nil, fmt.Errorf("unsupported direction %q", in.Direction)
	}
	return fmt.Sprintf("Drill moved %s by %gmm", in.Direction, in.Distance), h.poseDelta(), nil
}

// PivotInput is the pivot_drill parameter set.
type PivotInput struct {
	Angle     float64 `mapstructure:"angle"`
	Direction string  `mapstructure:"direction"`
}

func (h *Host) pivotDrill(_ context.Context, in PivotInput) (string, map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch in.Direction {
	case "left":
		h.pose.Yaw -= in.Angle
	case "right":
		h.pose.Yaw += in.Angle
	case "up":
		h.pose.Pitch += in.Angle
	case "down":
		h.pose.Pitch -= in.Angle
	default:
		return "", nil, fmt.Errorf("unsupported direction %q", in.Direction)
	}
	if math.Abs(h.pose.Yaw) > 45 || math.Abs(h.pose.Pitch) > 45 {
		return "", nil, fmt.Errorf("drill angle out of range (yaw %g, pitch %g)", h.pose.Yaw, h.pose.Pitch)
	}
	return fmt.Sprintf("Drill pivoted %s by %g degrees", in.Direction, in.Angle), h.poseDelta(), nil
}

func (h *Host) drillBurrHole(_ context.Context) (string, map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.burrHole {
		return "", nil, fmt.Errorf("burr hole already drilled")
	}
	h.burrHole = true
	return "Burr hole drilled", map[string]any{"burr_hole": true}, nil
}

// InsertInput is the insert_catheter parameter set.
type InsertInput struct {
	Depth float64 `mapstructure:"depth"`
}

func (h *Host) insertCatheter(_ context.Context, in InsertInput) (string, map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.burrHole {
		return "", nil, fmt.Errorf("no burr hole to insert through")
	}
	h.catheterDepth = in.Depth
	return fmt.Sprintf("Catheter inserted to %gmm", in.Depth), map[string]any{"catheter_depth_mm": in.Depth}, nil
}

func (h *Host) verifyPlacement() domain.ActionOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	in := h.catheterDepth >= VentricleMinDepth && h.catheterDepth <= VentricleMaxDepth
	msg := "Catheter placement verified"
	if !in {
		msg = fmt.Sprintf("Catheter tip at %gmm is outside the ventricle", h.catheterDepth)
	}
	return domain.Succeeded(msg, map[string]any{"in_ventricle": in})
}

func (h *Host) poseDelta() map[string]any {
	return map[string]any{
		"drill_position_mm": []any{h.pose.X, h.pose.Y, h.pose.Z},
		"drill_yaw_deg":     h.pose.Yaw,
		"drill_pitch_deg":   h.pose.Pitch,
	}
}
