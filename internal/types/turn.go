package types

import "time"

// Speaker identifies who said a turn
type Speaker string

const (
	SpeakerAgent    Speaker = "agent"
	SpeakerCustomer Speaker = "customer"
)

// ConversationalTurn is one attributed utterance within a call
type ConversationalTurn struct {
	ID              string    `json:"id" dynamodbav:"ID"`
	CallID          string    `json:"callId" dynamodbav:"CallID"`
	TurnNumber      int       `json:"turnNumber" dynamodbav:"TurnNumber"`
	Speaker         Speaker   `json:"speaker" dynamodbav:"Speaker"`
	Transcript      string    `json:"transcript" dynamodbav:"Transcript"`
	Confidence      float64   `json:"confidence" dynamodbav:"Confidence"`
	TimestampOffset int64     `json:"timestampOffset" dynamodbav:"TimestampOffset"`
	CreatedAt       time.Time `json:"createdAt" dynamodbav:"CreatedAt"`
}

// TranscriptSegment is one piece of text returned by the transcription vendor
type TranscriptSegment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Speaker    Speaker `json:"speaker"`
	Timestamp  float64 `json:"timestamp"`
	IsFinal    bool    `json:"isFinal"`
}

// TranscriptionResult is the output of a transcription call
type TranscriptionResult struct {
	Segments       []TranscriptSegment `json:"segments"`
	FullTranscript string              `json:"fullTranscript"`
}
