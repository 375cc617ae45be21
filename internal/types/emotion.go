package types

import "time"

// Emotions is the 4-axis emotion vector. Axes are percentages in [0,100],
// Confidence is in [0,1] and Timestamp is milliseconds since the epoch.
type Emotions struct {
	Anger        float64 `json:"anger"`
	Frustration  float64 `json:"frustration"`
	Satisfaction float64 `json:"satisfaction"`
	Neutral      float64 `json:"neutral"`
	Confidence   float64 `json:"confidence"`
	Timestamp    int64   `json:"timestamp"`
}

// Clamp returns a copy of e with every axis forced into its valid range
func (e Emotions) Clamp() Emotions {
	e.Anger = clamp(e.Anger, 0, 100)
	e.Frustration = clamp(e.Frustration, 0, 100)
	e.Satisfaction = clamp(e.Satisfaction, 0, 100)
	e.Neutral = clamp(e.Neutral, 0, 100)
	e.Confidence = clamp(e.Confidence, 0, 1)
	return e
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EmotionalMetric is a persisted emotion sample for a call
type EmotionalMetric struct {
	ID              string    `json:"id" dynamodbav:"ID"`
	CallID          string    `json:"callId" dynamodbav:"CallID"`
	TurnID          *string   `json:"turnId,omitempty" dynamodbav:"TurnID,omitempty"`
	TimestampOffset int64     `json:"timestampOffset" dynamodbav:"TimestampOffset"`
	Anger           float64   `json:"anger" dynamodbav:"Anger"`
	Frustration     float64   `json:"frustration" dynamodbav:"Frustration"`
	Satisfaction    float64   `json:"satisfaction" dynamodbav:"Satisfaction"`
	Neutral         float64   `json:"neutral" dynamodbav:"Neutral"`
	Confidence      float64   `json:"confidence" dynamodbav:"Confidence"`
	CreatedAt       time.Time `json:"createdAt" dynamodbav:"CreatedAt"`
}

// NewEmotionalMetric builds an unsaved metric row from an emotion vector
func NewEmotionalMetric(callID string, offset int64, e Emotions) EmotionalMetric {
	return EmotionalMetric{
		CallID:          callID,
		TimestampOffset: offset,
		Anger:           e.Anger,
		Frustration:     e.Frustration,
		Satisfaction:    e.Satisfaction,
		Neutral:         e.Neutral,
		Confidence:      e.Confidence,
	}
}

// Emotions converts the row back into a vector, using the offset as timestamp
func (m EmotionalMetric) Emotions() Emotions {
	return Emotions{
		Anger:        m.Anger,
		Frustration:  m.Frustration,
		Satisfaction: m.Satisfaction,
		Neutral:      m.Neutral,
		Confidence:   m.Confidence,
		Timestamp:    m.TimestampOffset,
	}
}
