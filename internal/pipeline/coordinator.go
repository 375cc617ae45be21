package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/analysis"
	"github.com/dennisdiepolder/monti/callmonitor/internal/cache"
	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/transcription"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultMinChunkBytes is the size below which a chunk is treated as silence
	DefaultMinChunkBytes = 1000

	LiveAgentID    = "live-agent"
	LiveCustomerID = "live-customer"
)

// Options wires a Coordinator. Every vendor is an injected capability.
type Options struct {
	Store       storage.Store
	Transcriber transcription.Transcriber
	TextScorer  emotion.Scorer // live path
	AudioScorer emotion.Scorer // upload path, may be nil
	Policy      *emotion.Policy
	Analyzer    analysis.ContextAnalyzer
	Suggestions SuggestionGenerator
	Summaries   Summarizer
	Sessions    *cache.SessionTracker
	Broadcaster Broadcaster // may be nil

	MinChunkBytes int
	Logger        zerolog.Logger
}

// Coordinator runs the per-chunk analysis pipeline: transcribe, score,
// analyze, suggest, persist and publish. Vendor failures degrade the
// chunk instead of failing it; storage writes are isolated per entity.
type Coordinator struct {
	store       storage.Store
	transcriber transcription.Transcriber
	textScorer  emotion.Scorer
	audioScorer emotion.Scorer
	policy      *emotion.Policy
	analyzer    analysis.ContextAnalyzer
	suggestions SuggestionGenerator
	summaries   Summarizer
	sessions    *cache.SessionTracker
	broadcaster Broadcaster

	minChunkBytes int
	sequencer     *TurnSequencer
	locks         *callLocks
	logger        zerolog.Logger
}

// NewCoordinator creates a coordinator from opts
func NewCoordinator(opts Options) *Coordinator {
	minChunk := opts.MinChunkBytes
	if minChunk <= 0 {
		minChunk = DefaultMinChunkBytes
	}
	policy := opts.Policy
	if policy == nil {
		policy = emotion.NewPolicy(opts.Logger, nil)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = cache.NewSessionTracker()
	}

	return &Coordinator{
		store:         opts.Store,
		transcriber:   opts.Transcriber,
		textScorer:    opts.TextScorer,
		audioScorer:   opts.AudioScorer,
		policy:        policy,
		analyzer:      opts.Analyzer,
		suggestions:   opts.Suggestions,
		summaries:     opts.Summaries,
		sessions:      sessions,
		broadcaster:   opts.Broadcaster,
		minChunkBytes: minChunk,
		sequencer:     NewTurnSequencer(opts.Store),
		locks:         newCallLocks(),
		logger:        opts.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Sessions returns the tracker holding live call state
func (c *Coordinator) Sessions() *cache.SessionTracker {
	return c.sessions
}

// Forget drops per-call state kept by the coordinator
func (c *Coordinator) Forget(callID string) {
	c.sequencer.Forget(callID)
}

// ProcessChunk analyzes one live audio chunk of callID. It only fails when
// the call record cannot be read or created.
func (c *Coordinator) ProcessChunk(ctx context.Context, callID string, audio []byte) (types.IncrementalUpdate, error) {
	metrics.ChunksReceived.Inc()
	if len(audio) < c.minChunkBytes {
		metrics.ChunksSkipped.Inc()
		c.logger.Debug().Str("call_id", callID).Int("bytes", len(audio)).Msg("chunk below minimum size, skipping")
		return types.EmptyUpdate(), nil
	}

	call, err := c.ensureCall(ctx, callID)
	if err != nil {
		metrics.Errors.WithLabelValues("call", "storage").Inc()
		return types.IncrementalUpdate{}, err
	}

	result := c.transcribe(ctx, audio)
	transcript := result.FullTranscript
	lastKnown := c.sessions.LastEmotions(call.ID)

	var (
		emotions    types.Emotions
		convCtx     *types.ConversationContext
		suggestions = []types.Suggestion{}
	)

	if transcript != "" {
		start := time.Now()
		var outcome emotion.Outcome
		emotions, outcome = c.policy.Resolve(ctx, c.textScorer, emotion.Input{Transcript: transcript}, lastKnown)
		metrics.ObserveStage("emotion", start)
		if outcome == emotion.OutcomeDegraded {
			metrics.Errors.WithLabelValues("emotion", "degraded").Inc()
		}

		if analyzed, ok := c.analyzeContext(ctx, call.ID, transcript); ok {
			convCtx = &analyzed

			start = time.Now()
			suggestions = c.suggestions.Generate(ctx, call.ID, emotions, analyzed, transcript)
			metrics.ObserveStage("suggestions", start)
		}
	} else {
		emotions = c.policy.Fallback(lastKnown)
	}

	c.persistChunk(ctx, call, result.Segments, emotions, suggestions)

	update := types.IncrementalUpdate{
		Success:     true,
		CallID:      call.ID,
		Transcript:  transcript,
		Emotions:    emotions,
		Context:     convCtx,
		Suggestions: suggestions,
	}
	c.sessions.Apply(update)
	c.publish(types.MessageTypeUpdate, call.ID, update)

	c.logger.Debug().
		Str("call_id", call.ID).
		Int("transcript_len", len(transcript)).
		Int("suggestions", len(suggestions)).
		Bool("context", convCtx != nil).
		Msg("chunk processed")

	return update, nil
}

// ensureCall is an idempotent get-or-create of the call under callID
func (c *Coordinator) ensureCall(ctx context.Context, callID string) (types.Call, error) {
	unlock := c.locks.lock(callID)
	defer unlock()

	call, err := c.store.GetCall(ctx, callID)
	if err == nil {
		return call, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return types.Call{}, fmt.Errorf("get call: %w", err)
	}

	call, err = c.store.CreateCall(ctx, types.Call{
		ID:         callID,
		AgentID:    LiveAgentID,
		CustomerID: LiveCustomerID,
		StartTime:  time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrConflict) {
		// created by another instance between our read and write
		return c.store.GetCall(ctx, callID)
	}
	if err != nil {
		return types.Call{}, fmt.Errorf("create call: %w", err)
	}

	c.logger.Info().Str("call_id", callID).Msg("call record created")
	return call, nil
}

func (c *Coordinator) transcribe(ctx context.Context, audio []byte) types.TranscriptionResult {
	start := time.Now()
	result, err := c.transcriber.Transcribe(ctx, audio)
	metrics.ObserveStage("transcription", start)
	if err != nil {
		metrics.Errors.WithLabelValues("transcription", "vendor").Inc()
		c.logger.Warn().Err(err).Msg("transcription failed, continuing with empty transcript")
		return types.TranscriptionResult{Segments: []types.TranscriptSegment{}}
	}
	return result
}

// analyzeContext reports ok=false when the context could not be produced;
// the chunk then carries no context and no suggestions
func (c *Coordinator) analyzeContext(ctx context.Context, callID, transcript string) (types.ConversationContext, bool) {
	start := time.Now()
	analyzed, err := c.analyzer.Analyze(ctx, transcript)
	metrics.ObserveStage("context", start)
	if err == nil {
		return analyzed, true
	}

	var malformed *analysis.MalformedVendorResponseError
	if errors.As(err, &malformed) {
		metrics.Errors.WithLabelValues("context", "malformed").Inc()
		c.logger.Warn().
			Str("call_id", callID).
			Str("vendor", malformed.Vendor).
			Str("reason", malformed.Reason).
			Msg("context response rejected, skipping context and suggestions")
	} else {
		metrics.Errors.WithLabelValues("context", "vendor").Inc()
		c.logger.Warn().Err(err).Str("call_id", callID).Msg("context analysis failed, skipping context and suggestions")
	}
	return types.ConversationContext{}, false
}

// persistChunk writes turns, one metric and the suggestions. Every write is
// attempted regardless of the others failing.
func (c *Coordinator) persistChunk(ctx context.Context, call types.Call, segments []types.TranscriptSegment, emotions types.Emotions, suggestions []types.Suggestion) {
	start := time.Now()
	defer metrics.ObserveStage("persist", start)

	var lastTurnID string
	for _, seg := range segments {
		turn, err := c.storeTurn(ctx, call.ID, seg)
		if err != nil {
			c.storageError("turn", call.ID, err)
			continue
		}
		lastTurnID = turn.ID
	}

	offset := int64(time.Since(call.StartTime).Seconds())
	if offset < 0 {
		offset = 0
	}
	metric := types.NewEmotionalMetric(call.ID, offset, emotions)
	if lastTurnID != "" {
		metric.TurnID = &lastTurnID
	}
	if _, err := c.store.CreateMetric(ctx, metric); err != nil {
		c.storageError("metric", call.ID, err)
	}

	for _, s := range suggestions {
		if _, err := c.store.CreateSuggestion(ctx, s); err != nil {
			c.storageError("suggestion", call.ID, err)
		}
	}
}

// storeTurn numbers and writes one segment. A duplicate number means the
// counter is behind storage, so it is reseeded and the write retried once.
func (c *Coordinator) storeTurn(ctx context.Context, callID string, seg types.TranscriptSegment) (types.ConversationalTurn, error) {
	speaker := seg.Speaker
	if speaker == "" {
		speaker = types.SpeakerCustomer
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var n int
		n, err = c.sequencer.Next(ctx, callID)
		if err != nil {
			return types.ConversationalTurn{}, fmt.Errorf("next turn number: %w", err)
		}

		var turn types.ConversationalTurn
		turn, err = c.store.CreateTurn(ctx, types.ConversationalTurn{
			CallID:          callID,
			TurnNumber:      n,
			Speaker:         speaker,
			Transcript:      seg.Text,
			Confidence:      seg.Confidence,
			TimestampOffset: int64(seg.Timestamp * 1000),
		})
		if err == nil {
			return turn, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return types.ConversationalTurn{}, err
		}
		c.sequencer.Reseed(callID)
	}
	return types.ConversationalTurn{}, err
}

func (c *Coordinator) storageError(entity, callID string, err error) {
	metrics.StorageErrors.WithLabelValues(entity).Inc()
	c.logger.Error().Err(err).Str("entity", entity).Str("call_id", callID).Msg("failed to store entity")
}

// publish sends payload to the call's websocket subscribers
func (c *Coordinator) publish(msgType types.MessageType, callID string, payload interface{}) {
	if c.broadcaster == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal broadcast payload")
		return
	}
	c.broadcaster.Broadcast(types.Envelope{
		Type:      msgType,
		CallID:    callID,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	})
}
