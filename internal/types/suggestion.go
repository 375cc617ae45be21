package types

import "time"

// Priority ranks a suggestion for the agent
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Suggestion is a piece of advice surfaced to the agent
type Suggestion struct {
	ID                    string    `json:"id" dynamodbav:"ID"`
	CallID                string    `json:"callId" dynamodbav:"CallID"`
	Priority              Priority  `json:"priority" dynamodbav:"Priority"`
	Rule                  string    `json:"rule,omitempty" dynamodbav:"Rule,omitempty"`
	Text                  string    `json:"text" dynamodbav:"Text"`
	Reasoning             string    `json:"reasoning" dynamodbav:"Reasoning"`
	HistoricalSuccessRate *float64  `json:"historicalSuccessRate,omitempty" dynamodbav:"HistoricalSuccessRate,omitempty"`
	SimilarCaseIDs        []string  `json:"similarCaseIds,omitempty" dynamodbav:"SimilarCaseIDs,omitempty"`
	WasFollowed           *bool     `json:"wasFollowed,omitempty" dynamodbav:"WasFollowed,omitempty"`
	TimestampOffset       int64     `json:"timestampOffset" dynamodbav:"TimestampOffset"`
	CreatedAt             time.Time `json:"createdAt" dynamodbav:"CreatedAt"`
}

// SuggestionUpdate carries feedback about a suggestion; nil fields are left untouched
type SuggestionUpdate struct {
	WasFollowed           *bool    `json:"wasFollowed,omitempty"`
	HistoricalSuccessRate *float64 `json:"historicalSuccessRate,omitempty"`
	SimilarCaseIDs        []string `json:"similarCaseIds,omitempty"`
}

// Apply copies the set fields of u onto s
func (u SuggestionUpdate) Apply(s *Suggestion) {
	if u.WasFollowed != nil {
		s.WasFollowed = u.WasFollowed
	}
	if u.HistoricalSuccessRate != nil {
		s.HistoricalSuccessRate = u.HistoricalSuccessRate
	}
	if u.SimilarCaseIDs != nil {
		s.SimilarCaseIDs = u.SimilarCaseIDs
	}
}
