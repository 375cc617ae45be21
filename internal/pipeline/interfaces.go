package pipeline

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// SuggestionGenerator produces agent suggestions for one chunk
type SuggestionGenerator interface {
	Generate(ctx context.Context, callID string, emotions types.Emotions, convCtx types.ConversationContext, transcript string) []types.Suggestion
}

// Summarizer writes the post-call report
type Summarizer interface {
	Generate(ctx context.Context, call types.Call, turns []types.ConversationalTurn, metrics []types.EmotionalMetric) types.CallSummary
}

// Broadcaster pushes envelopes to live dashboards
type Broadcaster interface {
	Broadcast(env types.Envelope)
}
