package transcription

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
)

// segmentConfidence is reported for every Groq segment; the JSON response
// format carries no per-segment confidence.
const segmentConfidence = 0.9

// GroqTranscriber calls Groq's OpenAI-compatible whisper endpoint
type GroqTranscriber struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

// NewGroqTranscriber creates a transcriber for baseURL using model
func NewGroqTranscriber(apiKey, baseURL, model string, logger zerolog.Logger, opts ...option.RequestOption) *GroqTranscriber {
	all := []option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}
	all = append(all, opts...)

	return &GroqTranscriber{
		client: openai.NewClient(all...),
		model:  model,
		logger: logger.With().Str("component", "transcription").Logger(),
	}
}

// Transcribe never fails: a vendor error is logged and yields an empty
// result, since a chunk without speech is a normal outcome.
func (g *GroqTranscriber) Transcribe(ctx context.Context, audio []byte) (types.TranscriptionResult, error) {
	start := time.Now()
	name, contentType := AudioFile(audio)

	resp, err := g.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio), name, contentType),
		Model:          openai.AudioModel(g.model),
		Language:       openai.String("en"),
		ResponseFormat: openai.AudioResponseFormatJSON,
	})
	metrics.ObserveVendor("groq", "transcription", start, err)
	if err != nil {
		g.logger.Warn().Err(err).Int("bytes", len(audio)).Msg("transcription failed, continuing without transcript")
		return types.TranscriptionResult{Segments: []types.TranscriptSegment{}}, nil
	}

	return resultFromText(resp.Text), nil
}

func resultFromText(text string) types.TranscriptionResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.TranscriptionResult{Segments: []types.TranscriptSegment{}}
	}
	return types.TranscriptionResult{
		Segments: []types.TranscriptSegment{{
			Text:       text,
			Confidence: segmentConfidence,
			Speaker:    types.SpeakerCustomer,
			Timestamp:  0,
			IsFinal:    true,
		}},
		FullTranscript: text,
	}
}
