// Package stt defines the recognition source that turns audio into an ordered
// stream of transcription events.
package stt

import (
	"context"
	"errors"
	"io"

	"live-transcription-service/internal/models"
)

// Sink receives events in arrival order. The transcript queue implements it.
type Sink interface {
	Push(ev models.Event)
}

// Input is LINEAR16 PCM audio to recognize.
type Input struct {
	// Reader yields little-endian 16-bit PCM until io.EOF.
	Reader       io.Reader
	SampleRateHz int
	Channels     int
	// Name identifies the input in logs (file name or "microphone").
	Name string
}

// Source is a speech recognition backend (Google, mock).
//
// Start begins recognition of in and returns once the session is established;
// events are pushed to sink asynchronously from the source's own goroutines.
// Exactly one terminal event (Ended or Canceled) is pushed last. Stop asks the
// source to finish early and releases its resources.
type Source interface {
	Name() string
	Start(ctx context.Context, in Input, sink Sink) error
	Stop() error
}

// Factory creates a fresh source for every session.
type Factory func(ctx context.Context) (Source, error)

var (
	ErrAlreadyStarted = errors.New("stt: source already started")
	ErrNoInput        = errors.New("stt: input has no reader")
)
