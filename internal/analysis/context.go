package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dennisdiepolder/monti/callmonitor/internal/llm"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// MalformedVendorResponseError is returned when a vendor answered but the
// answer does not satisfy the expected schema
type MalformedVendorResponseError struct {
	Vendor string
	Reason string
	Raw    string
}

func (e *MalformedVendorResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Vendor, e.Reason)
}

// ContextAnalyzer classifies where a conversation is heading
type ContextAnalyzer interface {
	Analyze(ctx context.Context, transcript string) (types.ConversationContext, error)
}

const contextPrompt = `
Analyze this customer support conversation and provide a JSON response.

Current segment: %s

Provide analysis in this exact JSON format:
{
  "trajectory": "improving" | "escalating" | "de-escalating" | "stable",
  "topics": ["topic1", "topic2"],
  "intent": "brief description of customer intent",
  "sentiment": "positive" | "negative" | "neutral",
  "urgency": 0-100
}

Only respond with valid JSON, no additional text.
`

// LLMContextAnalyzer asks an LLM for the conversation context and validates
// every field strictly
type LLMContextAnalyzer struct {
	llm    llm.Completer
	vendor string
}

// NewLLMContextAnalyzer creates an analyzer. vendor names the provider in errors.
func NewLLMContextAnalyzer(c llm.Completer, vendor string) *LLMContextAnalyzer {
	return &LLMContextAnalyzer{llm: c, vendor: vendor}
}

type rawContext struct {
	Trajectory *string   `json:"trajectory"`
	Topics     *[]string `json:"topics"`
	Intent     *string   `json:"intent"`
	Sentiment  *string   `json:"sentiment"`
	Urgency    *float64  `json:"urgency"`
}

func (a *LLMContextAnalyzer) Analyze(ctx context.Context, transcript string) (types.ConversationContext, error) {
	text, err := a.llm.Complete(ctx, fmt.Sprintf(contextPrompt, transcript))
	if err != nil {
		return types.ConversationContext{}, fmt.Errorf("analyze context: %w", err)
	}
	return a.parse(text)
}

func (a *LLMContextAnalyzer) parse(text string) (types.ConversationContext, error) {
	malformed := func(reason string) error {
		return &MalformedVendorResponseError{Vendor: a.vendor, Reason: reason, Raw: text}
	}

	raw, ok := llm.ExtractJSON(text)
	if !ok {
		return types.ConversationContext{}, malformed("no JSON object found")
	}
	var rc rawContext
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return types.ConversationContext{}, malformed("invalid JSON: " + err.Error())
	}

	var missing []string
	if rc.Trajectory == nil || *rc.Trajectory == "" {
		missing = append(missing, "trajectory")
	}
	if rc.Topics == nil {
		missing = append(missing, "topics")
	}
	if rc.Intent == nil || *rc.Intent == "" {
		missing = append(missing, "intent")
	}
	if rc.Sentiment == nil || *rc.Sentiment == "" {
		missing = append(missing, "sentiment")
	}
	if rc.Urgency == nil {
		missing = append(missing, "urgency")
	}
	if len(missing) > 0 {
		return types.ConversationContext{}, malformed("missing fields: " + strings.Join(missing, ", "))
	}

	trajectory := types.Trajectory(*rc.Trajectory)
	if !trajectory.Valid() {
		return types.ConversationContext{}, malformed(fmt.Sprintf("unknown trajectory %q", *rc.Trajectory))
	}
	sentiment := types.Sentiment(*rc.Sentiment)
	if !sentiment.Valid() {
		return types.ConversationContext{}, malformed(fmt.Sprintf("unknown sentiment %q", *rc.Sentiment))
	}

	urgency := *rc.Urgency
	if urgency < 0 {
		urgency = 0
	} else if urgency > 100 {
		urgency = 100
	}

	return types.ConversationContext{
		Trajectory: trajectory,
		Topics:     *rc.Topics,
		Intent:     *rc.Intent,
		Sentiment:  sentiment,
		Urgency:    urgency,
	}, nil
}
