// Package audio captures microphone audio into bounded recordings and exposes
// recorded or uploaded WAV files as PCM streams.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/observability/metrics"
)

const (
	// BitDepth is the sample width of every recording (signed 16-bit PCM).
	BitDepth = 16
	// wavFormatPCM is the WAVE format tag for uncompressed PCM.
	wavFormatPCM = 1
)

// Format describes the PCM layout produced by a capture device.
type Format struct {
	SampleRateHz int
	Channels     int
}

// DefaultFormat is mono 44.1 kHz.
func DefaultFormat() Format {
	return Format{SampleRateHz: 44100, Channels: 1}
}

// BytesPerSecond returns the PCM data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRateHz * f.Channels * BitDepth / 8
}

// Device is a platform capture device delivering little-endian S16 PCM.
// onData may be called from a device thread; the slice is only valid for the
// duration of the call.
type Device interface {
	Start(onData func(pcm []byte)) error
	Stop() error
}

var ErrDeviceStart = errors.New("audio: capture device failed to start")

// Recorder accumulates captured buffers between Start and Stop.
type Recorder struct {
	device  Device
	format  Format
	metrics *metrics.Metrics

	mu        sync.Mutex
	frames    [][]byte
	bytes     int
	recording bool
	startedAt time.Time
	stoppedAt time.Time
	taps      []*Tap
}

// NewRecorder creates a recorder reading from device.
func NewRecorder(device Device, format Format) *Recorder {
	return &Recorder{
		device:  device,
		format:  format,
		metrics: metrics.DefaultMetrics,
	}
}

// Format returns the PCM layout of the recording.
func (r *Recorder) Format() Format {
	return r.format
}

// Start clears previous frames and starts capturing. No-op while recording.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	r.frames = nil
	r.bytes = 0
	r.recording = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	if err := r.device.Start(r.onData); err != nil {
		r.mu.Lock()
		r.recording = false
		r.closeTapsLocked()
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceStart, err)
	}

	log.Info().
		Int("sampleRateHz", r.format.SampleRateHz).
		Int("channels", r.format.Channels).
		Msg("Recording started")
	return nil
}

// Stop stops capturing and waits for the device to stop. Live taps are closed.
// Frames are kept for Save.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	r.stoppedAt = time.Now()
	r.closeTapsLocked()
	frames, bytes := len(r.frames), r.bytes
	r.mu.Unlock()

	err := r.device.Stop()

	log.Info().
		Int("buffers", frames).
		Int("bytes", bytes).
		Dur("duration", r.Duration()).
		Msg("Recording stopped")
	return err
}

// IsRecording reports whether capture is running.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Buffers returns the number of captured buffers.
func (r *Recorder) Buffers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Duration returns the audio length captured so far.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	bps := r.format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(r.bytes) * int64(time.Second) / int64(bps))
}

// Tap returns a live reader of captured PCM. The tap is closed by Stop.
func (r *Recorder) Tap() *Tap {
	t := newTap(r, 256)
	r.mu.Lock()
	r.taps = append(r.taps, t)
	r.mu.Unlock()
	return t
}

func (r *Recorder) onData(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.frames = append(r.frames, buf)
	r.bytes += len(buf)
	r.metrics.RecordAudioCaptured(len(buf))

	for _, t := range r.taps {
		if !t.send(buf) {
			r.metrics.RecordBufferDropped()
		}
	}
}

func (r *Recorder) detach(t *Tap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.taps {
		if candidate == t {
			r.taps = append(r.taps[:i], r.taps[i+1:]...)
			break
		}
	}
	t.closeLocked()
}

func (r *Recorder) closeTapsLocked() {
	for _, t := range r.taps {
		t.closeLocked()
	}
	r.taps = nil
}

// Save writes the captured audio to path as a PCM WAV file.
// It returns false without error when nothing was captured.
func (r *Recorder) Save(path string) (bool, error) {
	r.mu.Lock()
	if len(r.frames) == 0 {
		r.mu.Unlock()
		r.metrics.RecordRecordingSaved("empty")
		return false, nil
	}
	samples := make([]int, 0, r.bytes/2)
	for _, frame := range r.frames {
		for i := 0; i+1 < len(frame); i += 2 {
			samples = append(samples, int(int16(binary.LittleEndian.Uint16(frame[i:]))))
		}
	}
	format := r.format
	r.mu.Unlock()

	if err := writeWAV(path, samples, format); err != nil {
		r.metrics.RecordRecordingSaved("error")
		return false, err
	}

	r.metrics.RecordRecordingSaved("saved")
	log.Info().Str("path", path).Int("samples", len(samples)).Msg("Recording saved")
	return true, nil
}

func writeWAV(path string, samples []int, format Format) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, format.SampleRateHz, BitDepth, format.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRateHz,
		},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("write recording: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize recording: %w", err)
	}
	return nil
}

// RecordingName returns the file name of a recording started at t.
func RecordingName(t time.Time) string {
	return fmt.Sprintf("recording_%s.wav", t.Format("20060102_150405"))
}
