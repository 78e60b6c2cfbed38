// Package models defines the data structures for transcription events.
package models

// Event types carried in published payloads.
const (
	EventTypeInterim = "session.transcript.interim"
	EventTypeFinal   = "session.transcript.final"
)

// TranscriptInterim represents an interim transcript update of a session.
type TranscriptInterim struct {
	EventType string `json:"eventType" validate:"required,eq=session.transcript.interim"`
	SessionID string `json:"sessionId" validate:"required"`
	Source    string `json:"source" validate:"required,oneof=file microphone"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Text      string `json:"text" validate:"required"`
	Display   string `json:"display"`
}

// TranscriptFinal represents a committed transcript segment together with the
// full transcript assembled so far.
type TranscriptFinal struct {
	EventType string `json:"eventType" validate:"required,eq=session.transcript.final"`
	SessionID string `json:"sessionId" validate:"required"`
	Source    string `json:"source" validate:"required,oneof=file microphone"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Text      string `json:"text" validate:"required"`
	FinalText string `json:"finalText" validate:"required"`
	Sequence  int    `json:"sequence" validate:"gt=0"`
}
