package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/stageflow/pkg/domain"
)

// LogHooks writes an audit line for every stage movement and decider outcome.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.InfoContext(ctx, "Stage entered",
				"conversation_id", e.ConversationID,
				"stage", e.StageID,
				"type", e.StageType,
			)
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.DebugContext(ctx, "Decision accepted",
				"conversation_id", e.ConversationID,
				"from", e.StageID,
				"to", e.Accepted,
				"confidence", e.Confidence,
				"duration", e.Duration,
			)
		},
		OnTransitionRejected: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.WarnContext(ctx, "Decision rejected",
				"conversation_id", e.ConversationID,
				"from", e.StageID,
				"proposed", e.Proposed,
				"to", e.Accepted,
			)
		},
		OnUpstreamFailure: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.ErrorContext(ctx, "Decider failed",
				"conversation_id", e.ConversationID,
				"stage", e.StageID,
				"err", e.Err,
			)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			logger.InfoContext(ctx, "Turn complete",
				"conversation_id", e.ConversationID,
				"stage", e.StageID,
				"status", e.Status,
				"duration", e.Duration,
			)
		},
	}
}
