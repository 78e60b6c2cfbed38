// Package display renders transcript updates to humans: browser clients over
// WebSocket, or a terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Placeholders shown before a session has produced any text.
const (
	UploadPlaceholder = "Click Transcribe to start..."
	RecordPlaceholder = "Start recording to see transcription..."
)

// Update is one display refresh for a session.
type Update struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Tick      int       `json:"tick"`
	State     string    `json:"state"`
	At        time.Time `json:"at"`
}

// Sink accepts display updates. Render must not block the session loop and
// returns no acknowledgement.
type Sink interface {
	Render(u Update)
}

// Func adapts a function to Sink.
type Func func(u Update)

func (f Func) Render(u Update) { f(u) }

// Multi fans an update out to every sink in order.
type Multi []Sink

func (m Multi) Render(u Update) {
	for _, s := range m {
		if s != nil {
			s.Render(u)
		}
	}
}

// Console writes each update as one line.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Render(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := strings.ReplaceAll(u.Text, "\n", " | ")
	fmt.Fprintf(c.w, "[%04d %s] %s\n", u.Tick, u.State, text)
}
