package emotion

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// Outcome says whether a resolved vector came from the scorer
type Outcome string

const (
	OutcomeScored   Outcome = "scored"
	OutcomeDegraded Outcome = "degraded"
)

const degradedConfidence = 0.8

// Policy decides what the live path shows when scoring fails. The live view
// never blocks on emotions: a failure degrades to the last known vector of
// the call, or to a randomized plausible default when there is none.
type Policy struct {
	mu     sync.Mutex
	rand   *rand.Rand
	logger zerolog.Logger
}

// NewPolicy creates a policy. A nil src seeds from the clock.
func NewPolicy(logger zerolog.Logger, src rand.Source) *Policy {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Policy{
		rand:   rand.New(src),
		logger: logger.With().Str("component", "emotion-policy").Logger(),
	}
}

// Resolve scores in with scorer and never fails
func (p *Policy) Resolve(ctx context.Context, scorer Scorer, in Input, lastKnown *types.Emotions) (types.Emotions, Outcome) {
	e, err := scorer.Score(ctx, in)
	if err == nil {
		return e, OutcomeScored
	}

	metrics.EmotionDegraded.Inc()
	p.logger.Warn().Err(err).Bool("last_known", lastKnown != nil).Msg("emotion scoring failed, degrading")
	return p.Fallback(lastKnown), OutcomeDegraded
}

// Fallback returns the vector shown when there was nothing to score:
// the last known vector when present, else the randomized default
func (p *Policy) Fallback(lastKnown *types.Emotions) types.Emotions {
	if lastKnown != nil {
		e := *lastKnown
		e.Timestamp = nowMillis()
		return e
	}
	return p.randomDefault()
}

func (p *Policy) randomDefault() types.Emotions {
	p.mu.Lock()
	defer p.mu.Unlock()

	return types.Emotions{
		Anger:        p.rand.Float64() * 20,
		Frustration:  p.rand.Float64() * 30,
		Satisfaction: 50 + p.rand.Float64()*30,
		Neutral:      40 + p.rand.Float64()*20,
		Confidence:   degradedConfidence,
		Timestamp:    nowMillis(),
	}
}
