// Package google provides a Google Cloud Speech-to-Text recognition source.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/service/stt"
)

const providerName = "google"

// Config holds Google STT settings.
type Config struct {
	LanguageCode    string
	InterimResults  bool
	Punctuation     bool
	CredentialsFile string
	// AudioEncoding names a speechpb encoding; captured and uploaded audio is LINEAR16.
	AudioEncoding string
	// ChunkBytes is the size of each audio request sent on the stream.
	ChunkBytes int
}

// DefaultConfig returns the recognition settings used by the demo.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-IN",
		InterimResults: true,
		Punctuation:    true,
		AudioEncoding:  "LINEAR16",
		ChunkBytes:     8820, // 100ms of 44.1kHz 16-bit mono
	}
}

// Adapter implements stt.Source using Cloud Speech streaming recognition.
type Adapter struct {
	cfg     Config
	client  *speech.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	stream  speechpb.Speech_StreamingRecognizeClient
	done    chan struct{}
}

// New creates a Google STT adapter. Credentials come from cfg.CredentialsFile
// or Application Default Credentials.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultConfig().ChunkBytes
	}
	return &Adapter{
		cfg:     cfg,
		client:  c,
		metrics: metrics.DefaultMetrics,
		logger:  log.With().Str("sttProvider", providerName).Logger(),
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return providerName
}

// Start opens the stream, sends the recognition config and starts the send
// and receive loops.
func (a *Adapter) Start(ctx context.Context, in stt.Input, sink stt.Sink) error {
	if in.Reader == nil {
		return stt.ErrNoInput
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return stt.ErrAlreadyStarted
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		a.metrics.RecordSTTError(providerName, "open_stream")
		return fmt.Errorf("open recognition stream: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(a.cfg, in),
		},
	}); err != nil {
		cancel()
		a.metrics.RecordSTTError(providerName, "send_config")
		return fmt.Errorf("send streaming config: %w", err)
	}

	a.started = true
	a.cancel = cancel
	a.stream = stream
	a.done = make(chan struct{})
	a.logger = a.logger.With().Str("input", in.Name).Logger()

	go a.sendLoop(stream, in.Reader)
	go a.receiveLoop(stream, sink, time.Now())

	a.logger.Info().
		Str("languageCode", a.cfg.LanguageCode).
		Int("sampleRateHz", in.SampleRateHz).
		Msg("Recognition started")
	return nil
}

func streamingConfig(cfg Config, in stt.Input) *speechpb.StreamingRecognitionConfig {
	channels := in.Channels
	if channels <= 0 {
		channels = 1
	}
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
			SampleRateHertz:            int32(in.SampleRateHz),
			AudioChannelCount:          int32(channels),
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: cfg.Punctuation,
		},
		InterimResults: cfg.InterimResults,
	}
}

// parseAudioEncoding converts the configured name to a speechpb encoding,
// falling back to LINEAR16.
func parseAudioEncoding(enc string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[enc]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// sendLoop pipes audio to the stream in ChunkBytes requests until the reader
// is exhausted, then half-closes the stream.
func (a *Adapter) sendLoop(stream speechpb.Speech_StreamingRecognizeClient, r io.Reader) {
	buf := make([]byte, a.cfg.ChunkBytes)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if serr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			}); serr != nil {
				// The receive loop reports the stream failure.
				a.logger.Debug().Err(serr).Msg("Audio send stopped")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				a.logger.Error().Err(err).Msg("Could not read audio input")
				a.metrics.RecordSTTError(providerName, "read_input")
			}
			if cerr := stream.CloseSend(); cerr != nil {
				a.logger.Debug().Err(cerr).Msg("CloseSend failed")
			}
			return
		}
	}
}

// receiveLoop converts responses into events and pushes one terminal event
// when the stream ends.
func (a *Adapter) receiveLoop(stream speechpb.Speech_StreamingRecognizeClient, sink stt.Sink, startedAt time.Time) {
	defer close(a.done)
	first := true

	for {
		resp, err := stream.Recv()
		if err != nil {
			sink.Push(models.NewTerminal(a.classify(err)))
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			a.logger.Error().
				Int32("code", st.GetCode()).
				Str("message", st.GetMessage()).
				Msg("Recognition canceled by service")
			a.metrics.RecordSTTError(providerName, codes.Code(st.GetCode()).String())
			sink.Push(models.NewTerminal(models.Canceled))
			return
		}

		for _, ev := range resultEvents(resp) {
			if first {
				first = false
				latency := time.Since(startedAt)
				a.metrics.RecordFirstResult(providerName, latency.Seconds())
				a.logger.Info().Dur("initialResponseTime", latency).Msg("First recognition result")
			}
			sink.Push(ev)
		}
	}
}

// classify maps a stream error to the terminal kind.
func (a *Adapter) classify(err error) models.EventKind {
	if errors.Is(err, io.EOF) {
		a.logger.Info().Msg("Recognition stream ended")
		return models.Ended
	}

	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()

	code := status.Code(err)
	if stopped && (code == codes.Canceled || errors.Is(err, context.Canceled)) {
		a.logger.Info().Msg("Recognition stopped")
		return models.Ended
	}

	a.logger.Error().Err(err).Str("code", code.String()).Msg("Recognition canceled")
	a.metrics.RecordSTTError(providerName, code.String())
	return models.Canceled
}

// resultEvents converts one response into events. Only the top alternative
// of each result is used.
func resultEvents(resp *speechpb.StreamingRecognizeResponse) []models.Event {
	var out []models.Event
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		text := r.GetAlternatives()[0].GetTranscript()
		if r.GetIsFinal() {
			out = append(out, models.NewFinal(text))
		} else {
			out = append(out, models.NewInterim(text))
		}
	}
	return out
}

// Stop cancels the stream, waits for the receive loop to exit and closes the
// client. An adapter serves a single session.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	started, cancel, done := a.started, a.cancel, a.done
	a.mu.Unlock()

	if started {
		cancel()
		<-done
	}
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
