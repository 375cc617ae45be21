package types

import (
	"encoding/json"
	"time"
)

// IncrementalUpdate is what the pipeline returns for one processed chunk
type IncrementalUpdate struct {
	Success     bool                 `json:"success"`
	CallID      string               `json:"callId,omitempty"`
	Transcript  string               `json:"transcript"`
	Emotions    Emotions             `json:"emotions"`
	Context     *ConversationContext `json:"context"`
	Suggestions []Suggestion         `json:"suggestions"`
}

// EmptyUpdate is the well-formed "nothing happened" update for silent chunks
func EmptyUpdate() IncrementalUpdate {
	return IncrementalUpdate{
		Success:     true,
		Transcript:  "",
		Emotions:    Emotions{},
		Context:     nil,
		Suggestions: []Suggestion{},
	}
}

// MessageType identifies envelopes pushed to websocket subscribers
type MessageType string

const (
	MessageTypeUpdate   MessageType = "update"
	MessageTypeSessions MessageType = "sessions"
	MessageTypeCallEnd  MessageType = "call_end"
)

// Envelope wraps every websocket message. An empty CallID means the
// message is for every subscriber.
type Envelope struct {
	Type      MessageType     `json:"type"`
	CallID    string          `json:"callId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionSummary is the per-call line of the live sessions broadcast
type SessionSummary struct {
	CallID          string    `json:"callId"`
	StartedAt       time.Time `json:"startedAt"`
	LastActivity    time.Time `json:"lastActivity"`
	Lines           int       `json:"lines"`
	SuggestionCount int       `json:"suggestionCount"`
	LastEmotions    *Emotions `json:"lastEmotions,omitempty"`
}
