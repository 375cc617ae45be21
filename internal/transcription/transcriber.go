package transcription

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// DefaultLowConfidence is the confidence below which a segment is flagged for review
const DefaultLowConfidence = 0.7

// Transcriber turns an audio blob into text segments
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (types.TranscriptionResult, error)
}

// FlagLowConfidence reports whether a segment should be reviewed by a human
func FlagLowConfidence(segment types.TranscriptSegment, threshold float64) bool {
	return segment.Confidence < threshold
}
