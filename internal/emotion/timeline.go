package emotion

import "github.com/dennisdiepolder/monti/callmonitor/internal/types"

// Timeline converts stored metrics into vectors stamped with their offset
func Timeline(metrics []types.EmotionalMetric) []types.Emotions {
	out := make([]types.Emotions, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, m.Emotions())
	}
	return out
}

// Average returns the mean vector of metrics. ok is false when there are none.
func Average(metrics []types.EmotionalMetric) (avg types.Emotions, ok bool) {
	if len(metrics) == 0 {
		return types.Emotions{}, false
	}

	for _, m := range metrics {
		avg.Anger += m.Anger
		avg.Frustration += m.Frustration
		avg.Satisfaction += m.Satisfaction
		avg.Neutral += m.Neutral
		avg.Confidence += m.Confidence
	}

	n := float64(len(metrics))
	avg.Anger /= n
	avg.Frustration /= n
	avg.Satisfaction /= n
	avg.Neutral /= n
	avg.Confidence /= n
	avg.Timestamp = nowMillis()
	return avg, true
}

// OverallSentiment classifies a call from its average emotions
func OverallSentiment(avg types.Emotions) types.Sentiment {
	negative := avg.Anger + avg.Frustration
	switch {
	case avg.Satisfaction >= 60 && avg.Satisfaction > negative:
		return types.SentimentPositive
	case negative >= 60 || avg.Satisfaction < 30:
		return types.SentimentNegative
	default:
		return types.SentimentNeutral
	}
}
