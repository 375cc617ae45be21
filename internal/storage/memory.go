package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// MemoryStore keeps everything in process memory. It is the default for
// local development and the store used by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	calls       map[string]types.Call
	turns       map[string]types.ConversationalTurn
	metrics     map[string]types.EmotionalMetric
	suggestions map[string]types.Suggestion
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:       make(map[string]types.Call),
		turns:       make(map[string]types.ConversationalTurn),
		metrics:     make(map[string]types.EmotionalMetric),
		suggestions: make(map[string]types.Suggestion),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateCall(_ context.Context, call types.Call) (types.Call, error) {
	call = prepareCall(call)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calls[call.ID]; exists {
		return types.Call{}, ErrConflict
	}
	s.calls[call.ID] = call
	return call, nil
}

func (s *MemoryStore) GetCall(_ context.Context, id string) (types.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return types.Call{}, ErrNotFound
	}
	return call, nil
}

func (s *MemoryStore) UpdateCall(_ context.Context, id string, update types.CallUpdate) (types.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		return types.Call{}, ErrNotFound
	}
	update.Apply(&call)
	call.UpdatedAt = now()
	s.calls[id] = call
	return call, nil
}

func (s *MemoryStore) ListCalls(_ context.Context, filters types.CallFilters, limit int) ([]types.Call, error) {
	s.mu.RLock()
	calls := make([]types.Call, 0, len(s.calls))
	for _, c := range s.calls {
		if filters.Match(c) {
			calls = append(calls, c)
		}
	}
	s.mu.RUnlock()

	sortCallsByStartDesc(calls)
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

func (s *MemoryStore) DeleteCall(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[id]; !ok {
		return ErrNotFound
	}
	delete(s.calls, id)

	for tid, t := range s.turns {
		if t.CallID == id {
			delete(s.turns, tid)
		}
	}
	for mid, m := range s.metrics {
		if m.CallID == id {
			delete(s.metrics, mid)
		}
	}
	for sid, sg := range s.suggestions {
		if sg.CallID == id {
			delete(s.suggestions, sid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateTurn(_ context.Context, turn types.ConversationalTurn) (types.ConversationalTurn, error) {
	turn = prepareTurn(turn)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[turn.CallID]; !ok {
		return types.ConversationalTurn{}, ErrNotFound
	}
	for _, t := range s.turns {
		if t.CallID == turn.CallID && t.TurnNumber == turn.TurnNumber {
			return types.ConversationalTurn{}, ErrConflict
		}
	}
	s.turns[turn.ID] = turn
	return turn, nil
}

func (s *MemoryStore) GetTurn(_ context.Context, id string) (types.ConversationalTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, ok := s.turns[id]
	if !ok {
		return types.ConversationalTurn{}, ErrNotFound
	}
	return turn, nil
}

func (s *MemoryStore) ListTurns(_ context.Context, callID string) ([]types.ConversationalTurn, error) {
	s.mu.RLock()
	turns := make([]types.ConversationalTurn, 0)
	for _, t := range s.turns {
		if t.CallID == callID {
			turns = append(turns, t)
		}
	}
	s.mu.RUnlock()

	sortTurns(turns)
	return turns, nil
}

func (s *MemoryStore) DeleteTurn(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.turns[id]; !ok {
		return ErrNotFound
	}
	delete(s.turns, id)
	return nil
}

func (s *MemoryStore) MaxTurnNumber(_ context.Context, callID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, t := range s.turns {
		if t.CallID == callID && t.TurnNumber > highest {
			highest = t.TurnNumber
		}
	}
	return highest, nil
}

func (s *MemoryStore) CreateMetric(_ context.Context, metric types.EmotionalMetric) (types.EmotionalMetric, error) {
	metric = prepareMetric(metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[metric.CallID]; !ok {
		return types.EmotionalMetric{}, ErrNotFound
	}
	s.metrics[metric.ID] = metric
	return metric, nil
}

func (s *MemoryStore) GetMetric(_ context.Context, id string) (types.EmotionalMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metric, ok := s.metrics[id]
	if !ok {
		return types.EmotionalMetric{}, ErrNotFound
	}
	return metric, nil
}

func (s *MemoryStore) ListMetrics(_ context.Context, callID string) ([]types.EmotionalMetric, error) {
	s.mu.RLock()
	metrics := make([]types.EmotionalMetric, 0)
	for _, m := range s.metrics {
		if m.CallID == callID {
			metrics = append(metrics, m)
		}
	}
	s.mu.RUnlock()

	sortMetrics(metrics)
	return metrics, nil
}

func (s *MemoryStore) DeleteMetric(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metrics[id]; !ok {
		return ErrNotFound
	}
	delete(s.metrics, id)
	return nil
}

func (s *MemoryStore) CreateSuggestion(_ context.Context, sg types.Suggestion) (types.Suggestion, error) {
	sg = prepareSuggestion(sg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[sg.CallID]; !ok {
		return types.Suggestion{}, ErrNotFound
	}
	if _, exists := s.suggestions[sg.ID]; exists {
		return types.Suggestion{}, ErrConflict
	}
	s.suggestions[sg.ID] = sg
	return sg, nil
}

func (s *MemoryStore) GetSuggestion(_ context.Context, id string) (types.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sg, ok := s.suggestions[id]
	if !ok {
		return types.Suggestion{}, ErrNotFound
	}
	return sg, nil
}

func (s *MemoryStore) ListSuggestions(_ context.Context, callID string) ([]types.Suggestion, error) {
	s.mu.RLock()
	out := make([]types.Suggestion, 0)
	for _, sg := range s.suggestions {
		if sg.CallID == callID {
			out = append(out, sg)
		}
	}
	s.mu.RUnlock()

	sortSuggestions(out)
	return out, nil
}

func (s *MemoryStore) UpdateSuggestion(_ context.Context, id string, update types.SuggestionUpdate) (types.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg, ok := s.suggestions[id]
	if !ok {
		return types.Suggestion{}, ErrNotFound
	}
	update.Apply(&sg)
	s.suggestions[id] = sg
	return sg, nil
}

func (s *MemoryStore) DeleteSuggestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suggestions[id]; !ok {
		return ErrNotFound
	}
	delete(s.suggestions, id)
	return nil
}

// Ordering helpers shared by the stores that sort in process.

func sortCallsByStartDesc(calls []types.Call) {
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].StartTime.After(calls[j].StartTime)
	})
}

func sortTurns(turns []types.ConversationalTurn) {
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].TurnNumber != turns[j].TurnNumber {
			return turns[i].TurnNumber < turns[j].TurnNumber
		}
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
}

func sortMetrics(metrics []types.EmotionalMetric) {
	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].TimestampOffset != metrics[j].TimestampOffset {
			return metrics[i].TimestampOffset < metrics[j].TimestampOffset
		}
		return metrics[i].CreatedAt.Before(metrics[j].CreatedAt)
	})
}

func sortSuggestions(s []types.Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].TimestampOffset != s[j].TimestampOffset {
			return s[i].TimestampOffset < s[j].TimestampOffset
		}
		return s[i].CreatedAt.Before(s[j].CreatedAt)
	})
}
