package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-transcription-service/internal/config"
	"live-transcription-service/internal/display"
	"live-transcription-service/internal/events"
	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/session"
	"live-transcription-service/internal/service/stt"
	"live-transcription-service/internal/store"
)

var (
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
	ErrUnsupportedUpload = errors.New("only .wav uploads are supported")
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Sessions  *session.Manager
	Recorder  *audio.Recorder
	Hub       *display.Hub
	Store     *store.Store
	Publisher *events.Publisher

	metrics *metrics.Metrics

	mu        sync.Mutex
	recording string // ID of the microphone session while recording
}

// RecordingResult is returned when a recording stops.
type RecordingResult struct {
	Session session.Snapshot `json:"session"`
	Saved   bool             `json:"saved"`
	File    string           `json:"file,omitempty"`
}

// New constructs the application from cfg. device captures microphone audio
// and newSource creates the recognizer of every session.
func New(ctx context.Context, cfg *config.Config, device audio.Device, newSource stt.Factory) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		metrics: metrics.DefaultMetrics,
	}

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	a.Store = st

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})

	a.Hub = display.NewHub()
	a.Recorder = audio.NewRecorder(device, audio.Format{
		SampleRateHz: cfg.Audio.SampleRateHz,
		Channels:     cfg.Audio.Channels,
	})
	a.Sessions = session.NewManager(session.ManagerConfig{
		PollInterval: cfg.Session.PollInterval,
		MaxActive:    cfg.Session.MaxActive,
	}, newSource, a.Hub, a.Publisher, a.Store)

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Bool("ephemeralStore", st.Ephemeral()).
		Msg("Live transcription application created")
	return a, nil
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()

	for _, dir := range []string{a.Cfg.Audio.OutputDir, a.Cfg.Audio.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Str("outputDir", a.Cfg.Audio.OutputDir).
		Msg("Live transcription service starting")
	return nil
}

// TranscribeUpload stages an uploaded WAV file as temp_<random>_<name> and
// starts a file session on it. The staged file is removed once the session ends.
func (a *Application) TranscribeUpload(ctx context.Context, filename string, r io.Reader) (session.Snapshot, error) {
	base := filepath.Base(filename)
	if !strings.EqualFold(filepath.Ext(base), ".wav") {
		a.metrics.RecordUpload("rejected")
		return session.Snapshot{}, ErrUnsupportedUpload
	}

	path, err := stage(a.Cfg.Audio.UploadDir, base, r)
	if err != nil {
		a.metrics.RecordUpload("error")
		return session.Snapshot{}, err
	}

	s, err := a.Sessions.StartFile(ctx, path)
	if err != nil {
		os.Remove(path)
		if errors.Is(err, audio.ErrNotWAV) || errors.Is(err, audio.ErrUnsupportedFormat) {
			a.metrics.RecordUpload("rejected")
		} else {
			a.metrics.RecordUpload("error")
		}
		return session.Snapshot{}, err
	}
	a.metrics.RecordUpload("accepted")

	go func() {
		<-s.Done()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.Logger.Warn().Err(err).Str("path", path).Msg("Could not remove staged upload")
		}
	}()
	return s.Snapshot(), nil
}

// stage copies r into a new file in dir. Every upload gets its own file so
// concurrent uploads with the same name never share one.
func stage(dir, base string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "temp_*_"+base)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	path := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return path, nil
}

// StartRecording starts the microphone and a session transcribing it live.
func (a *Application) StartRecording(ctx context.Context) (session.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recording != "" {
		return session.Snapshot{}, ErrAlreadyRecording
	}

	if err := a.Recorder.Start(); err != nil {
		return session.Snapshot{}, err
	}
	s, err := a.Sessions.StartMicrophone(ctx, a.Recorder.Tap(), a.Recorder.Format())
	if err != nil {
		if stopErr := a.Recorder.Stop(); stopErr != nil {
			a.Logger.Warn().Err(stopErr).Msg("Could not stop recorder")
		}
		return session.Snapshot{}, err
	}

	a.recording = s.ID()
	a.Logger.Info().Str("sessionId", s.ID()).Msg("Recording started")
	return s.Snapshot(), nil
}

// StopRecording stops the microphone session and the recorder, then saves
// the captured audio as recording_<timestamp>.wav. Saved is false when no
// audio was captured.
func (a *Application) StopRecording(ctx context.Context) (RecordingResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recording == "" {
		return RecordingResult{}, ErrNotRecording
	}
	id := a.recording
	a.recording = ""

	var res RecordingResult
	snap, err := a.Sessions.Stop(ctx, id)
	if err != nil {
		a.Logger.Warn().Err(err).Str("sessionId", id).Msg("Could not stop microphone session")
	}
	res.Session = snap

	if err := a.Recorder.Stop(); err != nil {
		return res, err
	}

	path := filepath.Join(a.Cfg.Audio.OutputDir, audio.RecordingName(time.Now()))
	saved, err := a.Recorder.Save(path)
	switch {
	case err != nil:
		return res, err
	case !saved:
		a.Logger.Warn().Str("sessionId", id).Msg("No audio captured, nothing saved")
	default:
		res.Saved = true
		res.File = path
		a.Logger.Info().
			Str("sessionId", id).
			Str("file", path).
			Dur("duration", a.Recorder.Duration()).
			Msg("Recording saved")
	}
	return res, nil
}

// Recording returns the microphone session ID while recording.
func (a *Application) Recording() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording, a.recording != ""
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Msg("Live transcription service shutting down")

	if _, ok := a.Recording(); ok {
		if _, err := a.StopRecording(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Could not stop recording")
		}
	}
	if err := a.Sessions.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Sessions did not stop in time")
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Could not close publisher")
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Could not close store")
	}
}
