package types

import "time"

// CallOutcome represents how a call ended
type CallOutcome string

const (
	OutcomeSuccessful CallOutcome = "successful"
	OutcomeEscalated  CallOutcome = "escalated"
	OutcomeUnresolved CallOutcome = "unresolved"
	OutcomeChurn      CallOutcome = "churn"
)

// Valid reports whether o is one of the known outcomes
func (o CallOutcome) Valid() bool {
	switch o {
	case OutcomeSuccessful, OutcomeEscalated, OutcomeUnresolved, OutcomeChurn:
		return true
	}
	return false
}

// Sentiment represents the overall tone of a call or segment
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is one of the known sentiments
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Call is one monitored customer support conversation
type Call struct {
	ID               string       `json:"id" dynamodbav:"ID"`
	AgentID          string       `json:"agentId" dynamodbav:"AgentID"`
	CustomerID       string       `json:"customerId" dynamodbav:"CustomerID"`
	StartTime        time.Time    `json:"startTime" dynamodbav:"StartTime"`
	EndTime          *time.Time   `json:"endTime,omitempty" dynamodbav:"EndTime,omitempty"`
	DurationSeconds  *int         `json:"durationSeconds,omitempty" dynamodbav:"DurationSeconds,omitempty"`
	Outcome          *CallOutcome `json:"outcome,omitempty" dynamodbav:"Outcome,omitempty"`
	OverallSentiment *Sentiment   `json:"overallSentiment,omitempty" dynamodbav:"OverallSentiment,omitempty"`
	Summary          *string      `json:"summary,omitempty" dynamodbav:"Summary,omitempty"`
	RecordingURL     *string      `json:"recordingUrl,omitempty" dynamodbav:"RecordingURL,omitempty"`
	CreatedAt        time.Time    `json:"createdAt" dynamodbav:"CreatedAt"`
	UpdatedAt        time.Time    `json:"updatedAt" dynamodbav:"UpdatedAt"`
}

// CallUpdate carries the fields to change on a call; nil fields are left untouched
type CallUpdate struct {
	EndTime          *time.Time   `json:"endTime,omitempty"`
	DurationSeconds  *int         `json:"durationSeconds,omitempty"`
	Outcome          *CallOutcome `json:"outcome,omitempty"`
	OverallSentiment *Sentiment   `json:"overallSentiment,omitempty"`
	Summary          *string      `json:"summary,omitempty"`
	RecordingURL     *string      `json:"recordingUrl,omitempty"`
}

// Apply copies the set fields of u onto c
func (u CallUpdate) Apply(c *Call) {
	if u.EndTime != nil {
		c.EndTime = u.EndTime
	}
	if u.DurationSeconds != nil {
		c.DurationSeconds = u.DurationSeconds
	}
	if u.Outcome != nil {
		c.Outcome = u.Outcome
	}
	if u.OverallSentiment != nil {
		c.OverallSentiment = u.OverallSentiment
	}
	if u.Summary != nil {
		c.Summary = u.Summary
	}
	if u.RecordingURL != nil {
		c.RecordingURL = u.RecordingURL
	}
}

// CallFilters narrows a call listing. Zero values mean "no filter".
type CallFilters struct {
	AgentID       string
	CustomerID    string
	Outcome       CallOutcome
	StartTimeFrom *time.Time
	StartTimeTo   *time.Time
}

// Match reports whether c satisfies every set filter
func (f CallFilters) Match(c Call) bool {
	if f.AgentID != "" && c.AgentID != f.AgentID {
		return false
	}
	if f.CustomerID != "" && c.CustomerID != f.CustomerID {
		return false
	}
	if f.Outcome != "" && (c.Outcome == nil || *c.Outcome != f.Outcome) {
		return false
	}
	if f.StartTimeFrom != nil && c.StartTime.Before(*f.StartTimeFrom) {
		return false
	}
	if f.StartTimeTo != nil && c.StartTime.After(*f.StartTimeTo) {
		return false
	}
	return true
}
