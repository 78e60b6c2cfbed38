// Package transcript folds an ordered stream of recognition events into a
// display-ready transcript.
package transcript

import (
	"strings"

	"live-transcription-service/internal/models"
)

// State is the transcript of one session.
// FinalText only grows; InterimText is replaced wholesale by each interim event
// and cleared once a final event commits text.
type State struct {
	FinalText   string
	InterimText string
}

// Display returns the string shown to a human for the given state.
func Display(s State) string {
	switch {
	case s.InterimText == "":
		return s.FinalText
	case s.FinalText == "":
		return s.InterimText
	default:
		return s.FinalText + "\n" + s.InterimText
	}
}

// Apply applies one event to the state.
// It returns the new state, the display string and whether anything changed.
// Empty or whitespace-only text is discarded for both kinds, and terminal
// signals never touch the text.
func Apply(s State, ev models.Event) (State, string, bool) {
	if strings.TrimSpace(ev.Text) == "" {
		return s, Display(s), false
	}

	switch ev.Kind {
	case models.Interim:
		s.InterimText = ev.Text
	case models.Final:
		if s.FinalText == "" {
			s.FinalText = ev.Text
		} else {
			s.FinalText = s.FinalText + "\n" + ev.Text
		}
		s.InterimText = ""
	default:
		return s, Display(s), false
	}
	return s, Display(s), true
}

// Assembler owns the state of a single session. Not safe for concurrent use:
// exactly one loop applies events to it.
type Assembler struct {
	state   State
	updates int
	finals  int
}

// NewAssembler creates an assembler with an empty transcript.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Apply folds ev into the owned state. See Apply.
func (a *Assembler) Apply(ev models.Event) (string, bool) {
	next, display, changed := Apply(a.state, ev)
	if !changed {
		return display, false
	}
	a.state = next
	a.updates++
	if ev.Kind == models.Final {
		a.finals++
	}
	return display, true
}

// State returns a copy of the current state.
func (a *Assembler) State() State {
	return a.state
}

// Display returns the current display string.
func (a *Assembler) Display() string {
	return Display(a.state)
}

// Updates returns the number of events that changed the state.
func (a *Assembler) Updates() int {
	return a.updates
}

// Finals returns the number of committed segments.
func (a *Assembler) Finals() int {
	return a.finals
}
