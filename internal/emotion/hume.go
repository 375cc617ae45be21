package emotion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// ErrJobFailed is returned when Hume reports the batch job as FAILED
var ErrJobFailed = errors.New("emotion: hume job failed")

const defaultPredictionConfidence = 0.8

// HumeConfig configures the Hume batch job client
type HumeConfig struct {
	APIKey       string
	BaseURL      string // e.g. https://api.hume.ai/v0/batch/jobs
	PollAttempts int
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// HumeScorer scores recorded audio with a Hume prosody batch job:
// submit, then poll until the job completes or the attempts run out.
type HumeScorer struct {
	cfg    HumeConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHumeScorer creates an audio scorer
func NewHumeScorer(cfg HumeConfig, logger zerolog.Logger) *HumeScorer {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &HumeScorer{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "hume").Logger(),
	}
}

type humeFile struct {
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
}

type humeJobRequest struct {
	Models map[string]struct{} `json:"models"`
	Files  []humeFile          `json:"files"`
}

type humeJobStatus struct {
	State       string           `json:"state"`
	Predictions []humePrediction `json:"predictions"`
}

type humePrediction struct {
	Results *struct {
		Predictions []struct {
			Emotions []struct {
				Name  string  `json:"name"`
				Score float64 `json:"score"`
			} `json:"emotions"`
			Confidence *float64 `json:"confidence"`
		} `json:"predictions"`
	} `json:"results"`
}

func (h *HumeScorer) Score(ctx context.Context, in Input) (types.Emotions, error) {
	start := time.Now()
	e, err := h.score(ctx, in.Audio)
	metrics.ObserveVendor("hume", "prosody", start, err)
	return e, err
}

func (h *HumeScorer) score(ctx context.Context, audio []byte) (types.Emotions, error) {
	jobID, err := h.createJob(ctx, audio)
	if err != nil {
		return types.Emotions{}, err
	}

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < h.cfg.PollAttempts; attempt++ {
		status, err := h.jobStatus(ctx, jobID)
		if err != nil {
			return types.Emotions{}, err
		}

		switch status.State {
		case "COMPLETED":
			return parsePredictions(status.Predictions), nil
		case "FAILED":
			return types.Emotions{}, ErrJobFailed
		}

		select {
		case <-ctx.Done():
			return types.Emotions{}, ctx.Err()
		case <-ticker.C:
		}
	}

	h.logger.Warn().Str("job_id", jobID).Int("attempts", h.cfg.PollAttempts).Msg("emotion job timed out, returning neutral defaults")
	return Neutral(), nil
}

func (h *HumeScorer) createJob(ctx context.Context, audio []byte) (string, error) {
	body, err := json.Marshal(humeJobRequest{
		Models: map[string]struct{}{"prosody": {}},
		Files: []humeFile{{
			Data:        base64.StdEncoding.EncodeToString(audio),
			ContentType: "audio/wav",
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal hume job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create hume request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hume-Api-Key", h.cfg.APIKey)

	var created struct {
		JobID string `json:"job_id"`
	}
	if err := h.do(req, &created); err != nil {
		return "", fmt.Errorf("create hume job: %w", err)
	}
	if created.JobID == "" {
		return "", fmt.Errorf("create hume job: response has no job_id")
	}
	return created.JobID, nil
}

func (h *HumeScorer) jobStatus(ctx context.Context, jobID string) (humeJobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.BaseURL+"/"+jobID, nil)
	if err != nil {
		return humeJobStatus{}, fmt.Errorf("create hume request: %w", err)
	}
	req.Header.Set("X-Hume-Api-Key", h.cfg.APIKey)

	var status humeJobStatus
	if err := h.do(req, &status); err != nil {
		return humeJobStatus{}, fmt.Errorf("get hume job status: %w", err)
	}
	return status, nil
}

func (h *HumeScorer) do(req *http.Request, out interface{}) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, errBody)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parsePredictions maps Hume's prosody emotions onto the four axes
func parsePredictions(predictions []humePrediction) types.Emotions {
	if len(predictions) == 0 || predictions[0].Results == nil || len(predictions[0].Results.Predictions) == 0 {
		return Neutral()
	}

	first := predictions[0].Results.Predictions[0]
	find := func(name string) float64 {
		for _, e := range first.Emotions {
			if e.Name == name {
				return e.Score * 100
			}
		}
		return 0
	}

	confidence := defaultPredictionConfidence
	if first.Confidence != nil && *first.Confidence > 0 {
		confidence = *first.Confidence
	}

	e := types.Emotions{
		Anger:        find("Anger"),
		Frustration:  find("Annoyance"),
		Satisfaction: find("Joy"),
		Neutral:      find("Calmness"),
		Confidence:   confidence,
		Timestamp:    nowMillis(),
	}
	return e.Clamp()
}
