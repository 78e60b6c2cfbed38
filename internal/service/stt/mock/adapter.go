// Package mock provides a mock STT source for running without cloud credentials.
// It simulates realistic recognition with progressive partial transcripts,
// exactly one final transcript per utterance and a terminal event once the
// input is exhausted.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string // Progressive partial transcripts
	Final    string
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"Hello", "Hello and", "Hello and welcome"},
		Final:    "Hello and welcome to the live transcription demo.",
	},
	{
		Partials: []string{"This", "This is", "This is a test"},
		Final:    "This is a test of streaming recognition.",
	},
	{
		Partials: []string{"Interim", "Interim results appear"},
		Final:    "Interim results appear before the final text.",
	},
	{
		Partials: []string{"Thank you"},
		Final:    "Thank you for listening.",
	},
}

// Config controls pacing of the simulation.
type Config struct {
	// PartialDelay is the pause before each emitted event.
	PartialDelay time.Duration
	// Utterances is how many utterances to emit. Zero or less cycles until the
	// input ends.
	Utterances int
	// Script replaces DefaultUtterances when set.
	Script []SimulatedUtterance
}

// utteranceCounter rotates the starting utterance between sessions.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// Adapter implements stt.Source with scripted responses.
type Adapter struct {
	cfg    Config
	script []SimulatedUtterance
	offset int

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a new mock source.
func New(cfg Config) *Adapter {
	script := cfg.Script
	offset := 0
	if len(script) == 0 {
		script = DefaultUtterances
		counterMu.Lock()
		offset = utteranceCounter % len(script)
		utteranceCounter++
		counterMu.Unlock()
	}
	return &Adapter{
		cfg:    cfg,
		script: script,
		offset: offset,
		stopCh: make(chan struct{}),
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "mock"
}

// Start consumes the input in the background and emits scripted events.
func (a *Adapter) Start(ctx context.Context, in stt.Input, sink stt.Sink) error {
	if in.Reader == nil {
		return stt.ErrNoInput
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return stt.ErrAlreadyStarted
	}
	a.started = true
	a.done = make(chan struct{})

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		n, err := io.Copy(io.Discard, in.Reader)
		log.Debug().Int64("bytes", n).Err(err).Str("input", in.Name).Msg("Mock input drained")
	}()
	go a.run(ctx, sink, inputDone)
	return nil
}

func (a *Adapter) run(ctx context.Context, sink stt.Sink, inputDone <-chan struct{}) {
	defer close(a.done)

	for i := 0; a.cfg.Utterances <= 0 || i < a.cfg.Utterances; i++ {
		utt := a.script[(a.offset+i)%len(a.script)]
		for _, p := range utt.Partials {
			if kind, ok := a.wait(ctx); !ok {
				sink.Push(models.NewTerminal(kind))
				return
			}
			sink.Push(models.NewInterim(p))
		}
		if kind, ok := a.wait(ctx); !ok {
			sink.Push(models.NewTerminal(kind))
			return
		}
		sink.Push(models.NewFinal(utt.Final))

		if a.cfg.Utterances <= 0 {
			select {
			case <-inputDone:
				sink.Push(models.NewTerminal(models.Ended))
				return
			default:
			}
		}
	}

	select {
	case <-inputDone:
		sink.Push(models.NewTerminal(models.Ended))
	case <-a.stopCh:
		sink.Push(models.NewTerminal(models.Ended))
	case <-ctx.Done():
		sink.Push(models.NewTerminal(models.Canceled))
	}
}

// wait sleeps for the partial delay. It reports false with the terminal kind
// to emit when the source is stopped or the context ends first.
func (a *Adapter) wait(ctx context.Context) (models.EventKind, bool) {
	t := time.NewTimer(a.cfg.PartialDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return 0, true
	case <-a.stopCh:
		return models.Ended, false
	case <-ctx.Done():
		return models.Canceled, false
	}
}

// Stop ends the simulation early and waits for the terminal event.
func (a *Adapter) Stop() error {
	a.stopOnce.Do(func() { close(a.stopCh) })

	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}
