package observability

import (
	"context"
	"log/slog"

	"github.com/neurosurgery/actionbridge/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, and failed or
// rejected results at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_enter",
				"session_id", e.SessionID,
				"procedure_id", e.ProcedureID,
				"step", e.StepID,
				"terminal", e.Terminal,
			)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_leave", "session_id", e.SessionID, "step", e.StepID)
		},
		OnActionSubmit: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_submit",
				"session_id", e.SessionID,
				"action", e.Action,
				"token", e.Token,
				"step", e.StepID,
			)
		},
		OnActionResult: func(ctx context.Context, e *domain.ActionEvent) {
			level := slog.LevelDebug
			if e.Outcome != domain.OutcomeSucceeded {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "action_result",
				"session_id", e.SessionID,
				"action", e.Action,
				"token", e.Token,
				"outcome", e.Outcome,
				"duration", e.Duration,
			)
		},
	}
}
