package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/transcription"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CallCloser ends a live call
type CallCloser interface {
	EndCall(ctx context.Context, callID string, outcome *types.CallOutcome) (pipeline.EndResult, error)
}

// EmotionsResponse is the emotion history of a call
type EmotionsResponse struct {
	Timeline []types.Emotions `json:"timeline"`
	Average  *types.Emotions  `json:"average"`
}

// CallsHandler provides REST endpoints over stored calls and their children
type CallsHandler struct {
	store  storage.Store
	closer CallCloser
	logger zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler
func NewCallsHandler(store storage.Store, closer CallCloser, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		store:  store,
		closer: closer,
		logger: logger.With().Str("component", "calls_handler").Logger(),
	}
}

// List returns calls, newest first
// GET /api/calls?agentId&customerId&outcome&from&to&limit
func (h *CallsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, limit, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}

	calls, err := h.store.ListCalls(r.Context(), filters, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list calls")
		writeError(w, http.StatusInternalServerError, "Failed to list calls", "")
		return
	}
	if calls == nil {
		calls = []types.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func parseListQuery(r *http.Request) (types.CallFilters, int, error) {
	q := r.URL.Query()
	filters := types.CallFilters{
		AgentID:    q.Get("agentId"),
		CustomerID: q.Get("customerId"),
	}

	if v := q.Get("outcome"); v != "" {
		o := types.CallOutcome(v)
		if !o.Valid() {
			return filters, 0, fmt.Errorf("unknown outcome %q", v)
		}
		filters.Outcome = o
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, 0, fmt.Errorf("invalid from: %w", err)
		}
		filters.StartTimeFrom = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, 0, fmt.Errorf("invalid to: %w", err)
		}
		filters.StartTimeTo = &t
	}

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filters, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return filters, limit, nil
}

// Get returns one call
// GET /api/calls/{id}
func (h *CallsHandler) Get(w http.ResponseWriter, r *http.Request) {
	call, ok := h.requireCall(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Update patches outcome, sentiment, summary or recording of a call
// PATCH /api/calls/{id}
func (h *CallsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update types.CallUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if update.Outcome != nil && !update.Outcome.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid outcome", string(*update.Outcome))
		return
	}
	if update.OverallSentiment != nil && !update.OverallSentiment.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid sentiment", string(*update.OverallSentiment))
		return
	}

	call, err := h.store.UpdateCall(r.Context(), id, update)
	if err != nil {
		h.storeError(w, err, "call", id)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type endCallRequest struct {
	Outcome *types.CallOutcome `json:"outcome"`
}

// End closes a call and returns it with its summary
// POST /api/calls/{id}/end
func (h *CallsHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req endCallRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.Outcome != nil && !req.Outcome.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid outcome", string(*req.Outcome))
		return
	}

	result, err := h.closer.EndCall(r.Context(), id, req.Outcome)
	if err != nil {
		h.storeError(w, err, "call", id)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Delete removes a call and everything recorded for it
// DELETE /api/calls/{id}
func (h *CallsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteCall(r.Context(), id); err != nil {
		h.storeError(w, err, "call", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Turns returns the call's turns in order
// GET /api/calls/{id}/turns
func (h *CallsHandler) Turns(w http.ResponseWriter, r *http.Request) {
	call, ok := h.requireCall(w, r)
	if !ok {
		return
	}

	turns, err := h.store.ListTurns(r.Context(), call.ID)
	if err != nil {
		h.storeError(w, err, "turn", call.ID)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// LowConfidenceTurns returns the turns that need human review
// GET /api/calls/{id}/turns/low-confidence?threshold=0.7
func (h *CallsHandler) LowConfidenceTurns(w http.ResponseWriter, r *http.Request) {
	threshold := transcription.DefaultLowConfidence
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			writeError(w, http.StatusBadRequest, "Invalid threshold", v)
			return
		}
		threshold = t
	}

	call, ok := h.requireCall(w, r)
	if !ok {
		return
	}

	turns, err := h.store.ListTurns(r.Context(), call.ID)
	if err != nil {
		h.storeError(w, err, "turn", call.ID)
		return
	}

	flagged := make([]types.ConversationalTurn, 0)
	for _, t := range turns {
		seg := types.TranscriptSegment{Text: t.Transcript, Confidence: t.Confidence, Speaker: t.Speaker}
		if transcription.FlagLowConfidence(seg, threshold) {
			flagged = append(flagged, t)
		}
	}
	writeJSON(w, http.StatusOK, flagged)
}

// Emotions returns the emotion timeline and its average
// GET /api/calls/{id}/emotions
func (h *CallsHandler) Emotions(w http.ResponseWriter, r *http.Request) {
	call, ok := h.requireCall(w, r)
	if !ok {
		return
	}

	metrics, err := h.store.ListMetrics(r.Context(), call.ID)
	if err != nil {
		h.storeError(w, err, "metric", call.ID)
		return
	}

	resp := EmotionsResponse{Timeline: emotion.Timeline(metrics)}
	if avg, ok := emotion.Average(metrics); ok {
		resp.Average = &avg
	}
	writeJSON(w, http.StatusOK, resp)
}

// Suggestions returns the suggestions made during the call
// GET /api/calls/{id}/suggestions
func (h *CallsHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	call, ok := h.requireCall(w, r)
	if !ok {
		return
	}

	suggestions, err := h.store.ListSuggestions(r.Context(), call.ID)
	if err != nil {
		h.storeError(w, err, "suggestion", call.ID)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// UpdateSuggestion records agent feedback on a suggestion
// PATCH /api/suggestions/{id}
func (h *CallsHandler) UpdateSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update types.SuggestionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	sg, err := h.store.UpdateSuggestion(r.Context(), id, update)
	if err != nil {
		h.storeError(w, err, "suggestion", id)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (h *CallsHandler) requireCall(w http.ResponseWriter, r *http.Request) (types.Call, bool) {
	id := chi.URLParam(r, "id")
	call, err := h.store.GetCall(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "call", id)
		return types.Call{}, false
	}
	return call, true
}

func (h *CallsHandler) storeError(w http.ResponseWriter, err error, entity, id string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", entity+" "+id)
		return
	}
	h.logger.Error().Err(err).Str("entity", entity).Str("id", id).Msg("storage request failed")
	writeError(w, http.StatusInternalServerError, "Internal error", "")
}
