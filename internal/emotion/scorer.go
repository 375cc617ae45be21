package emotion

import (
	"context"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// Input is what a scorer works from. Text scorers read Transcript, audio
// scorers read Audio.
type Input struct {
	Transcript string
	Audio      []byte
}

// Scorer produces an emotion vector for one chunk or recording
type Scorer interface {
	Score(ctx context.Context, in Input) (types.Emotions, error)
}

// Neutral is the vector reported when an audio job yields nothing usable
func Neutral() types.Emotions {
	return types.Emotions{
		Anger:        0,
		Frustration:  0,
		Satisfaction: 50,
		Neutral:      50,
		Confidence:   0.5,
		Timestamp:    nowMillis(),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
