package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dennisdiepolder/monti/callmonitor/internal/llm"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

const textConfidence = 0.85

// ErrEmptyTranscript is returned when there is no text to score
var ErrEmptyTranscript = errors.New("emotion: empty transcript")

const textPrompt = `Analyze the emotional tone of this speech and return ONLY a JSON object with emotion percentages (0-100):

Speech: "%s"

Return format:
{"anger": 0-100, "frustration": 0-100, "satisfaction": 0-100, "neutral": 0-100}

Only JSON, no explanation.`

// TextScorer scores a transcript with a single LLM prompt. It is the fast
// strategy used on the live path.
type TextScorer struct {
	llm llm.Completer
}

// NewTextScorer creates a scorer backed by c
func NewTextScorer(c llm.Completer) *TextScorer {
	return &TextScorer{llm: c}
}

type textScores struct {
	Anger        *float64 `json:"anger"`
	Frustration  *float64 `json:"frustration"`
	Satisfaction *float64 `json:"satisfaction"`
	Neutral      *float64 `json:"neutral"`
}

func (s *TextScorer) Score(ctx context.Context, in Input) (types.Emotions, error) {
	if in.Transcript == "" {
		return types.Emotions{}, ErrEmptyTranscript
	}

	text, err := s.llm.Complete(ctx, fmt.Sprintf(textPrompt, in.Transcript))
	if err != nil {
		return types.Emotions{}, err
	}

	raw, ok := llm.ExtractJSON(text)
	if !ok {
		return types.Emotions{}, fmt.Errorf("emotion: no JSON object in response")
	}
	var scores textScores
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return types.Emotions{}, fmt.Errorf("emotion: decode response: %w", err)
	}

	e := types.Emotions{
		Anger:        valueOr(scores.Anger, 0),
		Frustration:  valueOr(scores.Frustration, 0),
		Satisfaction: valueOr(scores.Satisfaction, 50),
		Neutral:      valueOr(scores.Neutral, 50),
		Confidence:   textConfidence,
		Timestamp:    nowMillis(),
	}
	return e.Clamp(), nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
