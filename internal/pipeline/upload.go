package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

const (
	DemoAgentID    = "demo-agent"
	DemoCustomerID = "demo-customer"
)

// UploadResult is the full analysis bundle of an uploaded recording
type UploadResult struct {
	Success     bool                      `json:"success"`
	CallID      string                    `json:"callId"`
	Transcript  string                    `json:"transcript"`
	Emotions    types.Emotions            `json:"emotions"`
	Context     types.ConversationContext `json:"context"`
	Summary     types.CallSummary         `json:"summary"`
	Suggestions []types.Suggestion        `json:"suggestions"`
}

// ProcessUpload analyzes a complete recording as a new call. Unlike the live
// path the context analysis is strict: its failure fails the upload.
func (c *Coordinator) ProcessUpload(ctx context.Context, audio []byte) (UploadResult, error) {
	started := time.Now().UTC()

	call, err := c.store.CreateCall(ctx, types.Call{
		AgentID:    DemoAgentID,
		CustomerID: DemoCustomerID,
		StartTime:  started,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("create call: %w", err)
	}
	logger := c.logger.With().Str("call_id", call.ID).Logger()

	var (
		wg       sync.WaitGroup
		result   types.TranscriptionResult
		emotions types.Emotions
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result = c.transcribe(ctx, audio)
	}()
	go func() {
		defer wg.Done()
		emotions = c.scoreAudio(ctx, audio)
	}()
	wg.Wait()

	for i, seg := range result.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = types.SpeakerCustomer
		}
		_, err := c.store.CreateTurn(ctx, types.ConversationalTurn{
			CallID:          call.ID,
			TurnNumber:      i + 1,
			Speaker:         speaker,
			Transcript:      seg.Text,
			Confidence:      seg.Confidence,
			TimestampOffset: int64(seg.Timestamp * 1000),
		})
		if err != nil {
			c.storageError("turn", call.ID, err)
		}
	}
	if _, err := c.store.CreateMetric(ctx, types.NewEmotionalMetric(call.ID, 0, emotions)); err != nil {
		c.storageError("metric", call.ID, err)
	}

	start := time.Now()
	convCtx, err := c.analyzer.Analyze(ctx, result.FullTranscript)
	metrics.ObserveStage("context", start)
	if err != nil {
		metrics.Errors.WithLabelValues("context", "upload").Inc()
		return UploadResult{}, fmt.Errorf("analyze upload context: %w", err)
	}

	turns, err := c.store.ListTurns(ctx, call.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to reload turns for summary")
		turns = nil
	}
	stored, err := c.store.ListMetrics(ctx, call.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to reload metrics for summary")
		stored = []types.EmotionalMetric{types.NewEmotionalMetric(call.ID, 0, emotions)}
	}

	summary := c.summaries.Generate(ctx, call, turns, stored)
	suggestions := c.suggestions.Generate(ctx, call.ID, emotions, convCtx, result.FullTranscript)
	for _, s := range suggestions {
		if _, err := c.store.CreateSuggestion(ctx, s); err != nil {
			c.storageError("suggestion", call.ID, err)
		}
	}

	end := time.Now().UTC()
	duration := int(end.Sub(started).Seconds())
	sentiment := convCtx.Sentiment
	overview := summary.Overview
	if _, err := c.store.UpdateCall(ctx, call.ID, types.CallUpdate{
		EndTime:          &end,
		DurationSeconds:  &duration,
		OverallSentiment: &sentiment,
		Summary:          &overview,
	}); err != nil {
		c.storageError("call", call.ID, err)
	}

	logger.Info().
		Int("segments", len(result.Segments)).
		Int("suggestions", len(suggestions)).
		Str("sentiment", string(sentiment)).
		Msg("upload processed")

	return UploadResult{
		Success:     true,
		CallID:      call.ID,
		Transcript:  result.FullTranscript,
		Emotions:    emotions,
		Context:     convCtx,
		Summary:     summary,
		Suggestions: suggestions,
	}, nil
}

// scoreAudio runs the audio scorer; a missing scorer or a failure yields neutral
func (c *Coordinator) scoreAudio(ctx context.Context, audio []byte) types.Emotions {
	if c.audioScorer == nil {
		return emotion.Neutral()
	}

	start := time.Now()
	e, err := c.audioScorer.Score(ctx, emotion.Input{Audio: audio})
	metrics.ObserveStage("emotion", start)
	if err != nil {
		metrics.EmotionDegraded.Inc()
		c.logger.Warn().Err(err).Msg("audio emotion scoring failed, using neutral")
		return emotion.Neutral()
	}
	return e
}
