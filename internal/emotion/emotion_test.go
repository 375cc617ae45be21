package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

type fakeScorer struct {
	e   types.Emotions
	err error
}

func (f fakeScorer) Score(context.Context, Input) (types.Emotions, error) {
	return f.e, f.err
}

func TestTextScorer(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     types.Emotions
	}{
		{
			name:     "all fields",
			response: `{"anger": 70, "frustration": 55, "satisfaction": 10, "neutral": 20}`,
			want:     types.Emotions{Anger: 70, Frustration: 55, Satisfaction: 10, Neutral: 20, Confidence: 0.85},
		},
		{
			name:     "missing fields take defaults",
			response: "```json\n{\"anger\": 12}\n```",
			want:     types.Emotions{Anger: 12, Frustration: 0, Satisfaction: 50, Neutral: 50, Confidence: 0.85},
		},
		{
			name:     "out of range values are clamped",
			response: `{"anger": 140, "frustration": -5, "satisfaction": 50, "neutral": 50}`,
			want:     types.Emotions{Anger: 100, Frustration: 0, Satisfaction: 50, Neutral: 50, Confidence: 0.85},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{response: tt.response}
			got, err := NewTextScorer(c).Score(context.Background(), Input{Transcript: "I am very upset"})
			require.NoError(t, err)
			require.Contains(t, c.prompt, `Speech: "I am very upset"`)
			require.NotZero(t, got.Timestamp)

			got.Timestamp = 0
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTextScorerErrors(t *testing.T) {
	_, err := NewTextScorer(&fakeCompleter{}).Score(context.Background(), Input{})
	require.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = NewTextScorer(&fakeCompleter{response: "no idea"}).Score(context.Background(), Input{Transcript: "hi"})
	require.Error(t, err)

	vendorErr := errors.New("quota exceeded")
	_, err = NewTextScorer(&fakeCompleter{err: vendorErr}).Score(context.Background(), Input{Transcript: "hi"})
	require.ErrorIs(t, err, vendorErr)
}

func TestPolicyScored(t *testing.T) {
	p := NewPolicy(zerolog.Nop(), rand.NewSource(1))
	want := types.Emotions{Anger: 80, Satisfaction: 10, Confidence: 0.85, Timestamp: 42}

	got, outcome := p.Resolve(context.Background(), fakeScorer{e: want}, Input{Transcript: "x"}, nil)
	require.Equal(t, OutcomeScored, outcome)
	require.Equal(t, want, got)
}

func TestPolicyDegradesToLastKnown(t *testing.T) {
	p := NewPolicy(zerolog.Nop(), rand.NewSource(1))
	last := types.Emotions{Anger: 65, Frustration: 40, Satisfaction: 20, Neutral: 30, Confidence: 0.85, Timestamp: 1}

	got, outcome := p.Resolve(context.Background(), fakeScorer{err: errors.New("boom")}, Input{Transcript: "x"}, &last)
	require.Equal(t, OutcomeDegraded, outcome)
	require.Equal(t, last.Anger, got.Anger)
	require.Equal(t, last.Frustration, got.Frustration)
	require.Equal(t, last.Satisfaction, got.Satisfaction)
	require.Greater(t, got.Timestamp, last.Timestamp)
}

func TestPolicyDegradesToRandomDefault(t *testing.T) {
	p := NewPolicy(zerolog.Nop(), rand.NewSource(7))

	for i := 0; i < 50; i++ {
		got, outcome := p.Resolve(context.Background(), fakeScorer{err: errors.New("boom")}, Input{}, nil)
		require.Equal(t, OutcomeDegraded, outcome)
		require.True(t, got.Anger >= 0 && got.Anger < 20, "anger %v", got.Anger)
		require.True(t, got.Frustration >= 0 && got.Frustration < 30, "frustration %v", got.Frustration)
		require.True(t, got.Satisfaction >= 50 && got.Satisfaction < 80, "satisfaction %v", got.Satisfaction)
		require.True(t, got.Neutral >= 40 && got.Neutral < 60, "neutral %v", got.Neutral)
		require.Equal(t, 0.8, got.Confidence)
	}
}

func TestPolicyDeterministicWithSeed(t *testing.T) {
	a := NewPolicy(zerolog.Nop(), rand.NewSource(99))
	b := NewPolicy(zerolog.Nop(), rand.NewSource(99))
	failing := fakeScorer{err: errors.New("boom")}

	ea, _ := a.Resolve(context.Background(), failing, Input{}, nil)
	eb, _ := b.Resolve(context.Background(), failing, Input{}, nil)
	require.Equal(t, ea.Anger, eb.Anger)
	require.Equal(t, ea.Satisfaction, eb.Satisfaction)
}

func TestTimelineAndAverage(t *testing.T) {
	_, ok := Average(nil)
	require.False(t, ok)

	metrics := []types.EmotionalMetric{
		{TimestampOffset: 0, Anger: 10, Frustration: 20, Satisfaction: 60, Neutral: 40, Confidence: 0.8},
		{TimestampOffset: 5, Anger: 30, Frustration: 40, Satisfaction: 40, Neutral: 60, Confidence: 0.6},
	}

	timeline := Timeline(metrics)
	require.Len(t, timeline, 2)
	require.Equal(t, int64(5), timeline[1].Timestamp)
	require.Equal(t, 30.0, timeline[1].Anger)

	avg, ok := Average(metrics)
	require.True(t, ok)
	require.Equal(t, 20.0, avg.Anger)
	require.Equal(t, 30.0, avg.Frustration)
	require.Equal(t, 50.0, avg.Satisfaction)
	require.Equal(t, 50.0, avg.Neutral)
	require.InDelta(t, 0.7, avg.Confidence, 1e-9)
}

func TestOverallSentiment(t *testing.T) {
	require.Equal(t, types.SentimentPositive, OverallSentiment(types.Emotions{Satisfaction: 75, Anger: 5}))
	require.Equal(t, types.SentimentNegative, OverallSentiment(types.Emotions{Satisfaction: 40, Anger: 50, Frustration: 30}))
	require.Equal(t, types.SentimentNegative, OverallSentiment(types.Emotions{Satisfaction: 20}))
	require.Equal(t, types.SentimentNeutral, OverallSentiment(types.Emotions{Satisfaction: 50, Neutral: 50}))
}

// humeServer answers the job creation and then reports the given states in order
func humeServer(t *testing.T, states []string, predictions string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Hume-Api-Key") != "hume-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodPost {
			var body humeJobRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Files) != 1 || body.Files[0].ContentType != "audio/wav" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if _, ok := body.Models["prosody"]; !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"job_id":"job-1"}`))
			return
		}

		if !strings.HasSuffix(r.URL.Path, "/job-1") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := int(atomic.AddInt32(&polls, 1)) - 1
		state := states[len(states)-1]
		if n < len(states) {
			state = states[n]
		}
		w.Write([]byte(`{"state":"` + state + `","predictions":` + predictions + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestHume(url string, attempts int) *HumeScorer {
	return NewHumeScorer(HumeConfig{
		APIKey:       "hume-key",
		BaseURL:      url + "/v0/batch/jobs",
		PollAttempts: attempts,
		PollInterval: time.Millisecond,
	}, zerolog.Nop())
}

func TestHumeScorerCompleted(t *testing.T) {
	predictions := `[{"results":{"predictions":[{"emotions":[
		{"name":"Anger","score":0.7},
		{"name":"Annoyance","score":0.5},
		{"name":"Joy","score":0.1},
		{"name":"Calmness","score":0.2}
	],"confidence":0.9}]}}]`
	srv, polls := humeServer(t, []string{"QUEUED", "IN_PROGRESS", "COMPLETED"}, predictions)

	got, err := newTestHume(srv.URL, 10).Score(context.Background(), Input{Audio: []byte("RIFF....")})
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(polls))
	require.InDelta(t, 70, got.Anger, 1e-9)
	require.InDelta(t, 50, got.Frustration, 1e-9)
	require.InDelta(t, 10, got.Satisfaction, 1e-9)
	require.InDelta(t, 20, got.Neutral, 1e-9)
	require.Equal(t, 0.9, got.Confidence)
}

func TestHumeScorerDefaultConfidence(t *testing.T) {
	predictions := `[{"results":{"predictions":[{"emotions":[{"name":"Joy","score":0.9}]}]}}]`
	srv, _ := humeServer(t, []string{"COMPLETED"}, predictions)

	got, err := newTestHume(srv.URL, 3).Score(context.Background(), Input{Audio: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, 0.8, got.Confidence)
	require.InDelta(t, 90, got.Satisfaction, 1e-9)
	require.Zero(t, got.Anger)
}

func TestHumeScorerEmptyPredictionsIsNeutral(t *testing.T) {
	srv, _ := humeServer(t, []string{"COMPLETED"}, `[]`)

	got, err := newTestHume(srv.URL, 3).Score(context.Background(), Input{Audio: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, 50.0, got.Satisfaction)
	require.Equal(t, 50.0, got.Neutral)
	require.Equal(t, 0.5, got.Confidence)
}

func TestHumeScorerTimeoutIsNeutral(t *testing.T) {
	srv, polls := humeServer(t, []string{"IN_PROGRESS"}, `[]`)

	got, err := newTestHume(srv.URL, 4).Score(context.Background(), Input{Audio: []byte("a")})
	require.NoError(t, err)
	require.Equal(t, int32(4), atomic.LoadInt32(polls))
	require.Equal(t, 0.5, got.Confidence)
	require.Equal(t, 50.0, got.Satisfaction)
}

func TestHumeScorerFailedJob(t *testing.T) {
	srv, _ := humeServer(t, []string{"FAILED"}, `[]`)

	_, err := newTestHume(srv.URL, 4).Score(context.Background(), Input{Audio: []byte("a")})
	require.ErrorIs(t, err, ErrJobFailed)
}

func TestHumeScorerHonoursCancellation(t *testing.T) {
	srv, _ := humeServer(t, []string{"IN_PROGRESS"}, `[]`)
	h := NewHumeScorer(HumeConfig{
		APIKey:       "hume-key",
		BaseURL:      srv.URL + "/v0/batch/jobs",
		PollAttempts: 1000,
		PollInterval: 50 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Score(ctx, Input{Audio: []byte("a")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicyFallback(t *testing.T) {
	p := NewPolicy(zerolog.Nop(), rand.NewSource(3))

	last := types.Emotions{Anger: 33, Confidence: 0.85}
	got := p.Fallback(&last)
	require.Equal(t, 33.0, got.Anger)
	require.NotZero(t, got.Timestamp)

	got = p.Fallback(nil)
	require.Equal(t, 0.8, got.Confidence)
	require.True(t, got.Satisfaction >= 50 && got.Satisfaction < 80)
}
