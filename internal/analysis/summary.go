package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/llm"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

const summaryPrompt = `
Analyze this customer support call and generate a comprehensive summary.

CALL DETAILS:
- Duration: %d seconds
- Outcome: %s
- Overall Sentiment: %s

TRANSCRIPT:
%s

EMOTIONAL METRICS:
- Average Anger: %.0f%%
- Average Frustration: %.0f%%
- Average Satisfaction: %.0f%%

Provide a JSON response with this structure:
{
  "overview": "2-3 sentence summary of the call",
  "keyTopics": ["topic1", "topic2", "topic3"],
  "emotionalTrajectory": "Description of how emotions evolved",
  "criticalMoments": ["moment1", "moment2"],
  "outcome": "What was the final result",
  "agentPerformance": {
    "strengths": ["strength1", "strength2"],
    "improvements": ["improvement1", "improvement2"]
  },
  "recommendations": ["recommendation1", "recommendation2"]
}

Only respond with valid JSON, no additional text.
`

// SummaryGenerator writes the post-call report. It always returns a
// summary: when the LLM fails a plain fallback is built from the call row.
type SummaryGenerator struct {
	llm    llm.Completer
	logger zerolog.Logger
}

// NewSummaryGenerator creates a generator backed by c
func NewSummaryGenerator(c llm.Completer, logger zerolog.Logger) *SummaryGenerator {
	return &SummaryGenerator{
		llm:    c,
		logger: logger.With().Str("component", "summary").Logger(),
	}
}

// Generate summarizes call from its turns and emotion samples
func (g *SummaryGenerator) Generate(ctx context.Context, call types.Call, turns []types.ConversationalTurn, metrics []types.EmotionalMetric) types.CallSummary {
	avg, _ := emotion.Average(metrics)

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("[%s]: %s", strings.ToUpper(string(t.Speaker)), t.Transcript))
	}

	prompt := fmt.Sprintf(summaryPrompt,
		durationOf(call),
		outcomeOr(call, "unknown"),
		sentimentOr(call, "unknown"),
		strings.Join(lines, "\n"),
		avg.Anger, avg.Frustration, avg.Satisfaction,
	)

	text, err := g.llm.Complete(ctx, prompt)
	if err == nil {
		if raw, ok := llm.ExtractJSON(text); ok {
			var summary types.CallSummary
			if err = json.Unmarshal([]byte(raw), &summary); err == nil && summary.Overview != "" {
				return summary
			}
		}
	}

	g.logger.Warn().Err(err).Str("call_id", call.ID).Msg("summary generation failed, using fallback")
	return FallbackSummary(call, avg)
}

// FallbackSummary is the report used when the LLM is unavailable
func FallbackSummary(call types.Call, avg types.Emotions) types.CallSummary {
	return types.CallSummary{
		Overview:            fmt.Sprintf("Call lasted %d seconds with %s outcome.", durationOf(call), outcomeOr(call, "unknown")),
		KeyTopics:           []string{"General inquiry"},
		EmotionalTrajectory: fmt.Sprintf("Average satisfaction: %.0f%%", avg.Satisfaction),
		CriticalMoments:     []string{},
		Outcome:             outcomeOr(call, "Unknown"),
		AgentPerformance: types.AgentPerformance{
			Strengths:    []string{},
			Improvements: []string{},
		},
		Recommendations: []string{},
	}
}

func durationOf(call types.Call) int {
	if call.DurationSeconds == nil {
		return 0
	}
	return *call.DurationSeconds
}

func outcomeOr(call types.Call, def string) string {
	if call.Outcome == nil {
		return def
	}
	return string(*call.Outcome)
}

func sentimentOr(call types.Call, def string) string {
	if call.OverallSentiment == nil {
		return def
	}
	return string(*call.OverallSentiment)
}
