package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/stretchr/testify/require"
)

func newCall(t *testing.T, s *MemoryStore, call types.Call) types.Call {
	t.Helper()
	created, err := s.CreateCall(context.Background(), call)
	require.NoError(t, err)
	return created
}

func TestMemoryStoreCallLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	call := newCall(t, s, types.Call{AgentID: "agent-1", CustomerID: "cust-1"})
	require.NotEmpty(t, call.ID)
	require.False(t, call.StartTime.IsZero())
	require.False(t, call.CreatedAt.IsZero())

	got, err := s.GetCall(ctx, call.ID)
	require.NoError(t, err)
	require.Equal(t, call, got)

	outcome := types.OutcomeEscalated
	summary := "customer escalated"
	updated, err := s.UpdateCall(ctx, call.ID, types.CallUpdate{Outcome: &outcome, Summary: &summary})
	require.NoError(t, err)
	require.Equal(t, outcome, *updated.Outcome)
	require.Equal(t, summary, *updated.Summary)
	require.Nil(t, updated.EndTime)
	require.False(t, updated.UpdatedAt.Before(call.UpdatedAt))

	require.NoError(t, s.DeleteCall(ctx, call.ID))
	_, err = s.GetCall(ctx, call.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateCallWithGivenID(t *testing.T) {
	s := NewMemoryStore()

	call := newCall(t, s, types.Call{ID: "call-123", AgentID: "a", CustomerID: "c"})
	require.Equal(t, "call-123", call.ID)

	_, err := s.CreateCall(context.Background(), types.Call{ID: "call-123"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreMissingRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.UpdateCall(ctx, "nope", types.CallUpdate{})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteCall(ctx, "nope"), ErrNotFound)
	require.ErrorIs(t, s.DeleteTurn(ctx, "nope"), ErrNotFound)
	require.ErrorIs(t, s.DeleteMetric(ctx, "nope"), ErrNotFound)
	require.ErrorIs(t, s.DeleteSuggestion(ctx, "nope"), ErrNotFound)

	_, err = s.CreateTurn(ctx, types.ConversationalTurn{CallID: "nope", TurnNumber: 1})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateMetric(ctx, types.EmotionalMetric{CallID: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateSuggestion(ctx, types.Suggestion{CallID: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListCallsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	newCall(t, s, types.Call{ID: "c1", AgentID: "a1", CustomerID: "x", StartTime: base})
	newCall(t, s, types.Call{ID: "c2", AgentID: "a2", CustomerID: "x", StartTime: base.Add(time.Hour)})
	newCall(t, s, types.Call{ID: "c3", AgentID: "a1", CustomerID: "y", StartTime: base.Add(2 * time.Hour)})

	churn := types.OutcomeChurn
	_, err := s.UpdateCall(ctx, "c2", types.CallUpdate{Outcome: &churn})
	require.NoError(t, err)

	from := base.Add(30 * time.Minute)

	tests := []struct {
		name    string
		filters types.CallFilters
		limit   int
		want    []string
	}{
		{"all newest first", types.CallFilters{}, 0, []string{"c3", "c2", "c1"}},
		{"limit", types.CallFilters{}, 2, []string{"c3", "c2"}},
		{"agent", types.CallFilters{AgentID: "a1"}, 0, []string{"c3", "c1"}},
		{"customer", types.CallFilters{CustomerID: "x"}, 0, []string{"c2", "c1"}},
		{"outcome", types.CallFilters{Outcome: types.OutcomeChurn}, 0, []string{"c2"}},
		{"from", types.CallFilters{StartTimeFrom: &from}, 0, []string{"c3", "c2"}},
		{"to", types.CallFilters{StartTimeTo: &from}, 0, []string{"c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := s.ListCalls(ctx, tt.filters, tt.limit)
			require.NoError(t, err)

			ids := make([]string, 0, len(calls))
			for _, c := range calls {
				ids = append(ids, c.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryStoreTurns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	call := newCall(t, s, types.Call{AgentID: "a", CustomerID: "c"})

	highest, err := s.MaxTurnNumber(ctx, call.ID)
	require.NoError(t, err)
	require.Zero(t, highest)

	for _, n := range []int{2, 1, 3} {
		_, err := s.CreateTurn(ctx, types.ConversationalTurn{
			CallID:     call.ID,
			TurnNumber: n,
			Speaker:    types.SpeakerCustomer,
			Transcript: "hello",
			Confidence: 0.9,
		})
		require.NoError(t, err)
	}

	_, err = s.CreateTurn(ctx, types.ConversationalTurn{CallID: call.ID, TurnNumber: 2})
	require.ErrorIs(t, err, ErrConflict)

	turns, err := s.ListTurns(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		require.Equal(t, i+1, turn.TurnNumber)
	}

	highest, err = s.MaxTurnNumber(ctx, call.ID)
	require.NoError(t, err)
	require.Equal(t, 3, highest)

	got, err := s.GetTurn(ctx, turns[0].ID)
	require.NoError(t, err)
	require.Equal(t, turns[0], got)
}

func TestMemoryStoreMetricsAndSuggestions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	call := newCall(t, s, types.Call{AgentID: "a", CustomerID: "c"})

	for _, offset := range []int64{30, 10, 20} {
		_, err := s.CreateMetric(ctx, types.NewEmotionalMetric(call.ID, offset, types.Emotions{Satisfaction: 70, Confidence: 0.8}))
		require.NoError(t, err)
	}
	metrics, err := s.ListMetrics(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	require.Equal(t, []int64{10, 20, 30}, []int64{metrics[0].TimestampOffset, metrics[1].TimestampOffset, metrics[2].TimestampOffset})

	sg, err := s.CreateSuggestion(ctx, types.Suggestion{
		CallID:   call.ID,
		Priority: types.PriorityHigh,
		Rule:     "escalation",
		Text:     "offer escalation",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sg.ID)
	require.Nil(t, sg.WasFollowed)

	followed := true
	updated, err := s.UpdateSuggestion(ctx, sg.ID, types.SuggestionUpdate{WasFollowed: &followed})
	require.NoError(t, err)
	require.True(t, *updated.WasFollowed)

	_, err = s.UpdateSuggestion(ctx, "missing", types.SuggestionUpdate{WasFollowed: &followed})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteCallCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	keep := newCall(t, s, types.Call{AgentID: "a", CustomerID: "c"})
	drop := newCall(t, s, types.Call{AgentID: "a", CustomerID: "c"})

	for _, call := range []types.Call{keep, drop} {
		_, err := s.CreateTurn(ctx, types.ConversationalTurn{CallID: call.ID, TurnNumber: 1})
		require.NoError(t, err)
		_, err = s.CreateMetric(ctx, types.EmotionalMetric{CallID: call.ID})
		require.NoError(t, err)
		_, err = s.CreateSuggestion(ctx, types.Suggestion{CallID: call.ID})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteCall(ctx, drop.ID))

	turns, _ := s.ListTurns(ctx, drop.ID)
	metrics, _ := s.ListMetrics(ctx, drop.ID)
	suggestions, _ := s.ListSuggestions(ctx, drop.ID)
	require.Empty(t, turns)
	require.Empty(t, metrics)
	require.Empty(t, suggestions)

	turns, _ = s.ListTurns(ctx, keep.ID)
	require.Len(t, turns, 1)
}

func TestLoadConfigFallsBackToMemory(t *testing.T) {
	t.Setenv("STORE_MODE", "bogus")
	cfg := LoadConfig()
	require.Equal(t, ModeMemory, cfg.Mode)

	t.Setenv("STORE_MODE", "dynamo-local")
	t.Setenv("DYNAMO_CALLS_TABLE", "calls-test")
	cfg = LoadConfig()
	require.Equal(t, ModeDynamoLocal, cfg.Mode)
	require.True(t, cfg.Dynamo.Local)
	require.Equal(t, "calls-test", cfg.Dynamo.CallsTable)
}

func TestStoreErrorsWrap(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetSuggestion(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}
