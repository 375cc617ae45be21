package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

const (
	// DefaultSessionTTL is how long a call may go without chunks before its session is dropped
	DefaultSessionTTL = 5 * time.Minute

	// maxHistory bounds the per-session emotion history kept in memory
	maxHistory = 720
)

// Session is the in-memory view of one live call
type Session struct {
	CallID       string             `json:"callId"`
	StartedAt    time.Time          `json:"startedAt"`
	LastActivity time.Time          `json:"lastActivity"`
	Lines        []string           `json:"lines"`
	Emotions     []types.Emotions   `json:"emotions"`
	Suggestions  []types.Suggestion `json:"suggestions"`
	LastEmotions *types.Emotions    `json:"lastEmotions,omitempty"`
}

func (s *Session) summary() types.SessionSummary {
	out := types.SessionSummary{
		CallID:          s.CallID,
		StartedAt:       s.StartedAt,
		LastActivity:    s.LastActivity,
		Lines:           len(s.Lines),
		SuggestionCount: len(s.Suggestions),
	}
	if s.LastEmotions != nil {
		e := *s.LastEmotions
		out.LastEmotions = &e
	}
	return out
}

func (s *Session) clone() Session {
	c := *s
	c.Lines = append([]string(nil), s.Lines...)
	c.Emotions = append([]types.Emotions(nil), s.Emotions...)
	c.Suggestions = append([]types.Suggestion(nil), s.Suggestions...)
	if s.LastEmotions != nil {
		e := *s.LastEmotions
		c.LastEmotions = &e
	}
	return c
}

// SessionTracker keeps the transcript, emotion history and suggestions of
// every call that is receiving live chunks
type SessionTracker struct {
	sessions map[string]*Session // callID -> session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewSessionTracker creates an empty tracker
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Apply folds one processed chunk into the call's session, creating it on first use
func (t *SessionTracker) Apply(update types.IncrementalUpdate) {
	if update.CallID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s, exists := t.sessions[update.CallID]
	if !exists {
		s = &Session{CallID: update.CallID, StartedAt: now}
		t.sessions[update.CallID] = s
	}
	s.LastActivity = now

	if update.Transcript != "" {
		s.Lines = append(s.Lines, update.Transcript)
	}
	if update.Emotions != (types.Emotions{}) {
		e := update.Emotions
		s.LastEmotions = &e
		s.Emotions = append(s.Emotions, e)
		if len(s.Emotions) > maxHistory {
			s.Emotions = s.Emotions[len(s.Emotions)-maxHistory:]
		}
	}
	s.Suggestions = append(s.Suggestions, update.Suggestions...)
}

// LastEmotions returns the most recent emotion vector of the call, if any
func (t *SessionTracker) LastEmotions(callID string) *types.Emotions {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[callID]
	if !ok || s.LastEmotions == nil {
		return nil
	}
	e := *s.LastEmotions
	return &e
}

// Snapshot returns a copy of the call's session
func (t *SessionTracker) Snapshot(callID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Active returns a summary of every tracked session, most recent activity first
func (t *SessionTracker) Active() []types.SessionSummary {
	t.mu.RLock()
	out := make([]types.SessionSummary, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.summary())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Remove drops the call's session
func (t *SessionTracker) Remove(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, callID)
}

// EvictStale removes sessions idle for longer than ttl and returns their call ids
func (t *SessionTracker) EvictStale(ttl time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	threshold := t.now().Add(-ttl)
	var removed []string
	for id, s := range t.sessions {
		if s.LastActivity.Before(threshold) {
			delete(t.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Count returns the number of tracked sessions
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
