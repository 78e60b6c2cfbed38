package models

import (
	"fmt"
	"time"
)

// EventKind tags a recognition event.
type EventKind int

const (
	// Interim is a provisional ("recognizing") result that later events supersede.
	Interim EventKind = iota
	// Final is a committed ("recognized") segment that will not be revised.
	Final
	// Ended signals that the recognizer finished normally. Carries no text.
	Ended
	// Canceled signals that the recognizer gave up (auth failure, network drop).
	// Carries no text and no structured reason.
	Canceled
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case Interim:
		return "interim"
	case Final:
		return "final"
	case Ended:
		return "ended"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// IsTerminal returns true for the session-ending signals.
func (k EventKind) IsTerminal() bool {
	return k == Ended || k == Canceled
}

// Event is one item of the recognition stream, in arrival order.
type Event struct {
	Kind       EventKind
	Text       string
	ReceivedAt time.Time
}

// NewInterim builds an interim event stamped with the current time.
func NewInterim(text string) Event {
	return Event{Kind: Interim, Text: text, ReceivedAt: time.Now()}
}

// NewFinal builds a final event stamped with the current time.
func NewFinal(text string) Event {
	return Event{Kind: Final, Text: text, ReceivedAt: time.Now()}
}

// NewTerminal builds an Ended or Canceled signal.
func NewTerminal(kind EventKind) Event {
	return Event{Kind: kind, ReceivedAt: time.Now()}
}
