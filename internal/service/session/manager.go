package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"live-transcription-service/internal/display"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/store"
)

// Archive stores finished sessions. *store.Store implements it.
type Archive interface {
	Save(ctx context.Context, rec store.Record) error
	Get(ctx context.Context, sessionID string) (store.Record, error)
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	PollInterval time.Duration
	// MaxActive bounds concurrently streaming sessions. Zero means unlimited.
	MaxActive int
}

// Manager owns all sessions of the process. Every session gets a new ID, a
// new recognizer and a fresh transcript state.
type Manager struct {
	cfg       ManagerConfig
	newSource stt.Factory
	sink      display.Sink
	publisher Publisher
	archive   Archive
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	starting int // sessions admitted but not yet in sessions
}

// NewManager creates a manager. publisher and archive may be nil.
func NewManager(cfg ManagerConfig, newSource stt.Factory, sink display.Sink, publisher Publisher, archive Archive) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		newSource: newSource,
		sink:      sink,
		publisher: publisher,
		archive:   archive,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("session-manager"),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}
}

// StartFile transcribes a PCM WAV file.
func (m *Manager) StartFile(ctx context.Context, path string) (*Session, error) {
	f, err := audio.OpenWAV(path)
	if err != nil {
		return nil, err
	}
	in := stt.Input{
		Reader:       f,
		SampleRateHz: f.Format.SampleRateHz,
		Channels:     f.Format.Channels,
		Name:         filepath.Base(path),
	}
	s, err := m.start(ctx, SourceFile, in)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// StartMicrophone transcribes live audio read from tap.
func (m *Manager) StartMicrophone(ctx context.Context, tap *audio.Tap, format audio.Format) (*Session, error) {
	in := stt.Input{
		Reader:       tap,
		SampleRateHz: format.SampleRateHz,
		Channels:     format.Channels,
		Name:         SourceMicrophone,
	}
	s, err := m.start(ctx, SourceMicrophone, in)
	if err != nil {
		tap.Close()
		return nil, err
	}
	return s, nil
}

func (m *Manager) start(ctx context.Context, source string, in stt.Input) (*Session, error) {
	m.mu.Lock()
	if m.cfg.MaxActive > 0 && m.activeLocked()+m.starting >= m.cfg.MaxActive {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.starting++
	m.mu.Unlock()

	src, err := m.newSource(ctx)
	if err != nil {
		m.release()
		return nil, fmt.Errorf("create recognizer: %w", err)
	}

	s := New(Config{
		ID:           uuid.NewString(),
		Source:       source,
		Input:        in,
		Recognizer:   src,
		Sink:         m.sink,
		Publisher:    m.publisher,
		PollInterval: m.cfg.PollInterval,
		Metrics:      m.metrics,
	})

	// Sessions outlive the request that created them.
	if err := s.Start(m.ctx); err != nil {
		m.release()
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	m.starting--
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Loop(m.ctx)
		m.archiveSession(s)
	}()
	return s, nil
}

// archiveSession stores a finished session and forgets it. Sessions that
// could not be archived stay in memory so they remain visible.
func (m *Manager) archiveSession(s *Session) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.archive.Save(ctx, s.Record()); err != nil {
		m.logger.Error().Err(err).Str("sessionId", s.ID()).Msg("Failed to archive session")
		return
	}
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()
}

// release gives back a slot taken by a start that failed.
func (m *Manager) release() {
	m.mu.Lock()
	m.starting--
	m.mu.Unlock()
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		if !s.lc.IsStopped() {
			n++
		}
	}
	return n
}

// Get returns the snapshot of a live or archived session.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s.Snapshot(), nil
	}

	if m.archive != nil {
		rec, err := m.archive.Get(ctx, id)
		if err == nil {
			return FromRecord(rec), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
	}
	return Snapshot{}, ErrSessionNotFound
}

// Stop stops a session and waits for it to finish. Stopping an already
// archived session returns its archived snapshot.
func (m *Manager) Stop(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return m.Get(ctx, id)
	}

	s.Stop()
	select {
	case <-s.Done():
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return s.Snapshot(), nil
}

// Active returns snapshots of sessions that are still streaming, oldest first.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.lc.IsStopped() {
			out = append(out, s.Snapshot())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Shutdown stops every session and waits for them to be archived.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, s := range m.sessions {
		s.Stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		m.logger.Info().Msg("All sessions stopped")
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}
