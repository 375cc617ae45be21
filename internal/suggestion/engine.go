package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/llm"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Rule names, recorded on every suggestion they produce
const (
	RuleEscalation            = "escalation"
	RuleFrustrationEscalating = "frustration-escalating"
	RuleLowSatisfactionUrgent = "low-satisfaction-urgent"
	RulePositiveMomentum      = "positive-momentum"
	RuleLLMContextual         = "llm-contextual"
)

// Thresholds for the rule layer, in percent
const (
	angerHigh            = 60
	frustrationHigh      = 50
	satisfactionLow      = 30
	urgencyHigh          = 70
	satisfactionPositive = 60
	llmTrigger           = 40
	recentTranscriptLen  = 500
)

// rule is one independent threshold check
type rule struct {
	name     string
	priority types.Priority
	matches  func(e types.Emotions, c types.ConversationContext) bool
	text     string
	reason   func(e types.Emotions, c types.ConversationContext) string
}

var rules = []rule{
	{
		name:     RuleEscalation,
		priority: types.PriorityHigh,
		matches: func(e types.Emotions, _ types.ConversationContext) bool {
			return e.Anger > angerHigh
		},
		text: "Customer is showing high anger. Consider offering immediate escalation or compensation.",
		reason: func(e types.Emotions, _ types.ConversationContext) string {
			return fmt.Sprintf("Anger level at %.0f%%. Historical data shows this often leads to churn.", e.Anger)
		},
	},
	{
		name:     RuleFrustrationEscalating,
		priority: types.PriorityHigh,
		matches: func(e types.Emotions, c types.ConversationContext) bool {
			return e.Frustration > frustrationHigh && c.Trajectory == types.TrajectoryEscalating
		},
		text: "Frustration is building and conversation is escalating. Acknowledge their concerns and provide a clear action plan.",
		reason: func(e types.Emotions, _ types.ConversationContext) string {
			return fmt.Sprintf("Frustration at %.0f%% with escalating trajectory.", e.Frustration)
		},
	},
	{
		name:     RuleLowSatisfactionUrgent,
		priority: types.PriorityHigh,
		matches: func(e types.Emotions, c types.ConversationContext) bool {
			return e.Satisfaction < satisfactionLow && c.Urgency > urgencyHigh
		},
		text: "Low satisfaction with high urgency. Prioritize quick resolution and set clear expectations.",
		reason: func(e types.Emotions, c types.ConversationContext) string {
			return fmt.Sprintf("Satisfaction at %.0f%% with urgency level %s/100.", e.Satisfaction, strconv.FormatFloat(c.Urgency, 'f', -1, 64))
		},
	},
	{
		name:     RulePositiveMomentum,
		priority: types.PriorityMedium,
		matches: func(e types.Emotions, c types.ConversationContext) bool {
			return c.Trajectory == types.TrajectoryImproving && e.Satisfaction > satisfactionPositive
		},
		text: "Great job! Customer satisfaction is improving. Continue with current approach.",
		reason: func(e types.Emotions, _ types.ConversationContext) string {
			return fmt.Sprintf("Positive trajectory with %.0f%% satisfaction.", e.Satisfaction)
		},
	},
}

const llmPrompt = `
You are an AI assistant helping customer support agents. Based on the current call state, provide ONE specific, actionable suggestion.

CURRENT STATE:
- Anger: %.0f%%
- Frustration: %.0f%%
- Satisfaction: %.0f%%
- Trajectory: %s
- Sentiment: %s
- Topics: %s

RECENT TRANSCRIPT:
%s

Provide a JSON response:
{
  "text": "Specific action the agent should take",
  "reasoning": "Why this suggestion is relevant"
}

Only respond with valid JSON, no additional text.
`

// Engine turns the current emotion vector and context into suggestions.
// It keeps no memory between chunks, so a trigger fires on every chunk
// that crosses its threshold.
type Engine struct {
	llm    llm.Completer
	logger zerolog.Logger
}

// NewEngine creates an engine. A nil completer disables the LLM suggestion.
func NewEngine(c llm.Completer, logger zerolog.Logger) *Engine {
	return &Engine{
		llm:    c,
		logger: logger.With().Str("component", "suggestions").Logger(),
	}
}

// Generate evaluates every rule and, when the customer is upset, asks the
// LLM for one contextual suggestion. LLM failures are logged and dropped.
func (e *Engine) Generate(ctx context.Context, callID string, emotions types.Emotions, convCtx types.ConversationContext, transcript string) []types.Suggestion {
	out := make([]types.Suggestion, 0, len(rules)+1)
	now := time.Now().UTC()

	for _, r := range rules {
		if !r.matches(emotions, convCtx) {
			continue
		}
		out = append(out, types.Suggestion{
			ID:              uuid.New().String(),
			CallID:          callID,
			Priority:        r.priority,
			Rule:            r.name,
			Text:            r.text,
			Reasoning:       r.reason(emotions, convCtx),
			TimestampOffset: emotions.Timestamp,
			CreatedAt:       now,
		})
		metrics.SuggestionsGenerated.WithLabelValues(r.name).Inc()
	}

	if e.llm != nil && transcript != "" && (emotions.Anger > llmTrigger || emotions.Frustration > llmTrigger) {
		if s, err := e.contextual(ctx, callID, emotions, convCtx, transcript); err != nil {
			e.logger.Warn().Err(err).Str("call_id", callID).Msg("LLM suggestion generation failed")
		} else {
			s.CreatedAt = now
			out = append(out, s)
			metrics.SuggestionsGenerated.WithLabelValues(RuleLLMContextual).Inc()
		}
	}

	return out
}

func (e *Engine) contextual(ctx context.Context, callID string, emotions types.Emotions, convCtx types.ConversationContext, transcript string) (types.Suggestion, error) {
	prompt := fmt.Sprintf(llmPrompt,
		emotions.Anger, emotions.Frustration, emotions.Satisfaction,
		convCtx.Trajectory, convCtx.Sentiment, strings.Join(convCtx.Topics, ", "),
		recentTranscript(transcript),
	)

	text, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return types.Suggestion{}, err
	}
	raw, ok := llm.ExtractJSON(text)
	if !ok {
		return types.Suggestion{}, fmt.Errorf("no JSON object in suggestion response")
	}

	var parsed struct {
		Text      string `json:"text"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return types.Suggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}
	if parsed.Text == "" {
		return types.Suggestion{}, fmt.Errorf("suggestion response has no text")
	}

	return types.Suggestion{
		ID:              uuid.New().String(),
		CallID:          callID,
		Priority:        types.PriorityMedium,
		Rule:            RuleLLMContextual,
		Text:            parsed.Text,
		Reasoning:       parsed.Reasoning,
		TimestampOffset: emotions.Timestamp,
	}, nil
}

// recentTranscript keeps the last 500 characters of the transcript
func recentTranscript(transcript string) string {
	runes := []rune(transcript)
	if len(runes) <= recentTranscriptLen {
		return transcript
	}
	return string(runes[len(runes)-recentTranscriptLen:])
}
