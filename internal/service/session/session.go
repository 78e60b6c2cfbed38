package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-transcription-service/internal/display"
	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/store"
	"live-transcription-service/internal/transcript"
)

// Input sources of a session.
const (
	SourceFile       = "file"
	SourceMicrophone = "microphone"
)

// DefaultPollInterval is how often the loop drains the event queue.
const DefaultPollInterval = 100 * time.Millisecond

// Publisher publishes applied transcript events. *events.Publisher implements it.
type Publisher interface {
	PublishInterim(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// Config describes one session.
type Config struct {
	ID     string
	Source string // SourceFile or SourceMicrophone
	Input  stt.Input
	// Recognizer is owned by the session and stopped when it ends.
	Recognizer   stt.Source
	Sink         display.Sink
	Publisher    Publisher // optional
	PollInterval time.Duration
	Metrics      *metrics.Metrics
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID         string     `json:"sessionId"`
	Source     string     `json:"source"`
	Provider   string     `json:"provider,omitempty"`
	State      string     `json:"state"`
	Display    string     `json:"display"`
	FinalText  string     `json:"finalText"`
	StopReason StopReason `json:"stopReason,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Updates    int        `json:"updates"`
}

// Session connects a recognition source to an assembler. Events flow from the
// source into the queue; one loop goroutine drains the queue on every tick and
// is the only owner of the transcript state.
type Session struct {
	cfg     Config
	queue   *transcript.Queue
	asm     *transcript.Assembler
	lc      *Lifecycle
	metrics *metrics.Metrics
	logger  zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	mu        sync.RWMutex
	state     transcript.State
	updates   int
	startedAt time.Time
	endedAt   time.Time
}

// New creates an idle session.
func New(cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.Sink == nil {
		cfg.Sink = display.Func(func(display.Update) {})
	}
	return &Session{
		cfg:     cfg,
		queue:   transcript.NewQueue(),
		asm:     transcript.NewAssembler(),
		lc:      NewLifecycle(cfg.ID),
		metrics: cfg.Metrics,
		logger:  logging.WithSession(cfg.ID, cfg.Source),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.cfg.ID
}

// Start moves the session to STREAMING and starts the recognizer. The caller
// must then run Loop, or use Run which does both.
func (s *Session) Start(ctx context.Context) error {
	if err := s.lc.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if err := s.cfg.Recognizer.Start(ctx, s.cfg.Input, s.queue); err != nil {
		s.lc.Stop(ReasonError)
		s.finish()
		s.logger.Error().Err(err).Msg("Could not start recognizer")
		return err
	}

	s.metrics.RecordSessionStart(s.cfg.Source)
	s.logger.Info().
		Str("provider", s.cfg.Recognizer.Name()).
		Str("input", s.cfg.Input.Name).
		Msg("Session started")
	return nil
}

// Run starts the session and blocks until it stops.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.Loop(ctx)
	return nil
}

// Loop polls the event queue until a terminal event arrives, Stop is called
// or ctx is done. Events still queued at that point are dropped.
func (s *Session) Loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	tick := 0
	reason := ReasonRequested
loop:
	for {
		select {
		case <-ctx.Done():
			reason = ReasonCanceled
			break loop
		case <-s.stopCh:
			reason = ReasonRequested
			break loop
		case <-ticker.C:
			tick++
			if r, terminal := s.poll(ctx, tick); terminal {
				reason = r
				break loop
			}
		}
	}

	s.lc.Stop(reason)
	s.finish()
}

// poll drains the queue and applies events in arrival order.
func (s *Session) poll(ctx context.Context, tick int) (StopReason, bool) {
	events := s.queue.Drain()
	s.metrics.RecordDrain(len(events))

	for _, ev := range events {
		switch ev.Kind {
		case models.Ended:
			return ReasonEnded, true
		case models.Canceled:
			return ReasonCanceled, true
		}

		text, changed := s.asm.Apply(ev)
		s.metrics.RecordEvent(ev.Kind.String(), changed)
		if !changed {
			continue
		}

		s.mu.Lock()
		s.state = s.asm.State()
		s.updates = s.asm.Updates()
		s.mu.Unlock()

		s.cfg.Sink.Render(display.Update{
			SessionID: s.cfg.ID,
			Text:      text,
			Tick:      tick,
			State:     StateStreaming.String(),
			At:        time.Now(),
		})
		s.metrics.RecordDisplayUpdate()
		s.publish(ctx, ev, text)
	}
	return "", false
}

func (s *Session) publish(ctx context.Context, ev models.Event, text string) {
	if s.cfg.Publisher == nil {
		return
	}
	ts := ev.ReceivedAt.UnixMilli()
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}

	var err error
	switch ev.Kind {
	case models.Interim:
		err = s.cfg.Publisher.PublishInterim(ctx, s.cfg.ID, &models.TranscriptInterim{
			EventType: models.EventTypeInterim,
			SessionID: s.cfg.ID,
			Source:    s.cfg.Source,
			Timestamp: ts,
			Text:      ev.Text,
			Display:   text,
		})
	case models.Final:
		err = s.cfg.Publisher.PublishFinal(ctx, s.cfg.ID, &models.TranscriptFinal{
			EventType: models.EventTypeFinal,
			SessionID: s.cfg.ID,
			Source:    s.cfg.Source,
			Timestamp: ts,
			Text:      ev.Text,
			FinalText: s.asm.State().FinalText,
			Sequence:  s.asm.Finals(),
		})
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", ev.Kind.String()).Msg("Failed to publish transcript event")
	}
}

// finish stops the recognizer, releases the input and renders the final view.
func (s *Session) finish() {
	if err := s.cfg.Recognizer.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Recognizer stop failed")
	}
	if c, ok := s.cfg.Input.Reader.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Input close failed")
		}
	}

	s.mu.Lock()
	s.endedAt = time.Now()
	started, ended := s.startedAt, s.endedAt
	final := s.state.FinalText
	s.mu.Unlock()

	reason := s.lc.Reason()
	if reason != ReasonError {
		// Interim text is provisional and is not kept once the session stops.
		s.cfg.Sink.Render(display.Update{
			SessionID: s.cfg.ID,
			Text:      final,
			State:     StateStopped.String(),
			At:        ended,
		})
		s.metrics.RecordSessionEnd(string(reason), ended.Sub(started).Seconds())
	}

	s.logger.Info().
		Str("reason", string(reason)).
		Int("updates", s.Updates()).
		Dur("duration", ended.Sub(started)).
		Msg("Session stopped")
	close(s.done)
}

// Stop asks the loop to end. The loop observes it immediately, not at the
// next tick. Use Done to wait for completion.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once the session has fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Updates returns the number of display updates rendered so far.
func (s *Session) Updates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.lc.State()
	snap := Snapshot{
		ID:         s.cfg.ID,
		Source:     s.cfg.Source,
		Provider:   s.cfg.Recognizer.Name(),
		State:      state.String(),
		Display:    transcript.Display(s.state),
		FinalText:  s.state.FinalText,
		StopReason: s.lc.Reason(),
		StartedAt:  s.startedAt,
		Updates:    s.updates,
	}
	if state.IsTerminal() && !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
		snap.Display = s.state.FinalText
	}
	return snap
}

// Record converts the session outcome into an archive record.
func (s *Session) Record() store.Record {
	snap := s.Snapshot()
	rec := store.Record{
		SessionID:  snap.ID,
		Source:     snap.Source,
		FinalText:  snap.FinalText,
		StopReason: string(snap.StopReason),
		StartedAt:  snap.StartedAt,
	}
	if snap.EndedAt != nil {
		rec.EndedAt = *snap.EndedAt
	}
	return rec
}

// FromRecord rebuilds a stopped snapshot from an archive record.
func FromRecord(rec store.Record) Snapshot {
	ended := rec.EndedAt
	return Snapshot{
		ID:         rec.SessionID,
		Source:     rec.Source,
		State:      StateStopped.String(),
		Display:    rec.FinalText,
		FinalText:  rec.FinalText,
		StopReason: StopReason(rec.StopReason),
		StartedAt:  rec.StartedAt,
		EndedAt:    &ended,
	}
}
