package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/cache"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

type recorder struct {
	mu        sync.Mutex
	envelopes []types.Envelope
}

func (r *recorder) Broadcast(env types.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envelopes)
}

func update(callID string) types.IncrementalUpdate {
	return types.IncrementalUpdate{
		Success:     true,
		CallID:      callID,
		Transcript:  "hello",
		Emotions:    types.Emotions{Satisfaction: 70, Confidence: 0.85},
		Suggestions: []types.Suggestion{},
	}
}

func TestTickBroadcastsActiveSessions(t *testing.T) {
	sessions := cache.NewSessionTracker()
	sessions.Apply(update("call-1"))
	sessions.Apply(update("call-2"))

	rec := &recorder{}
	agg := NewAggregator(sessions, rec, time.Hour, nil, zerolog.Nop())

	if got := agg.tick(0); got != 2 {
		t.Fatalf("expected 2 live sessions, got %d", got)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", rec.count())
	}

	env := rec.envelopes[0]
	if env.Type != types.MessageTypeSessions {
		t.Errorf("expected sessions envelope, got %s", env.Type)
	}
	if env.CallID != "" {
		t.Errorf("sessions envelope should address every client, got call %q", env.CallID)
	}

	var summaries []types.SessionSummary
	if err := json.Unmarshal(env.Payload, &summaries); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("expected 2 summaries, got %d", len(summaries))
	}
	for _, s := range summaries {
		if s.Lines != 1 {
			t.Errorf("%s: expected 1 line, got %d", s.CallID, s.Lines)
		}
	}
}

func TestTickEvictsStaleSessions(t *testing.T) {
	sessions := cache.NewSessionTracker()
	sessions.Apply(update("call-old"))
	time.Sleep(5 * time.Millisecond)

	var evicted []string
	rec := &recorder{}
	agg := NewAggregator(sessions, rec, time.Millisecond, func(id string) {
		evicted = append(evicted, id)
	}, zerolog.Nop())

	// the previous cycle saw one session, so the now empty list is sent once
	if got := agg.tick(1); got != 0 {
		t.Fatalf("expected 0 live sessions, got %d", got)
	}
	if len(evicted) != 1 || evicted[0] != "call-old" {
		t.Errorf("expected call-old to be evicted, got %v", evicted)
	}
	if sessions.Count() != 0 {
		t.Errorf("expected tracker to be empty, got %d", sessions.Count())
	}
	if rec.count() != 1 {
		t.Errorf("expected one empty sessions broadcast, got %d", rec.count())
	}

	agg.tick(0)
	if rec.count() != 1 {
		t.Errorf("expected no broadcast while idle, got %d", rec.count())
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	sessions := cache.NewSessionTracker()
	agg := NewAggregator(sessions, &recorder{}, 0, nil, zerolog.Nop())
	agg.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop")
	}
}
