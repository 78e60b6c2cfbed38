package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

// fakeDevice delivers a fixed set of buffers synchronously on Start.
type fakeDevice struct {
	mu       sync.Mutex
	buffers  [][]byte
	startErr error
	started  int
	stopped  int
	onData   func([]byte)
}

func (d *fakeDevice) Start(onData func([]byte)) error {
	d.mu.Lock()
	d.started++
	d.onData = onData
	buffers := d.buffers
	err := d.startErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, b := range buffers {
		onData(b)
	}
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *fakeDevice) emit(b []byte) {
	d.mu.Lock()
	cb := d.onData
	d.mu.Unlock()
	cb(b)
}

func pcm(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestRecorder_SaveWithoutFramesFails(t *testing.T) {
	rec := NewRecorder(&fakeDevice{}, DefaultFormat())
	path := filepath.Join(t.TempDir(), "empty.wav")

	saved, err := rec.Save(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved {
		t.Error("expected save to report failure for empty recording")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file written for empty recording")
	}
}

func TestRecorder_StartStopSaveWritesValidWAV(t *testing.T) {
	dev := &fakeDevice{buffers: [][]byte{pcm(0, 1000, -1000, 32767, -32768)}}
	rec := NewRecorder(dev, DefaultFormat())

	if err := rec.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	path := filepath.Join(t.TempDir(), RecordingName(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)))
	saved, err := rec.Save(path)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved {
		t.Fatal("expected save to succeed")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open saved file: %v", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("expected a valid WAV container")
	}
	if d.NumChans != 1 {
		t.Errorf("expected 1 channel, got %d", d.NumChans)
	}
	if d.SampleRate != 44100 {
		t.Errorf("expected 44100 Hz, got %d", d.SampleRate)
	}
	if d.BitDepth != 16 {
		t.Errorf("expected 16-bit samples, got %d", d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("read PCM: %v", err)
	}
	want := []int{0, 1000, -1000, 32767, -32768}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], buf.Data[i])
		}
	}
}

func TestRecorder_StartResetsFrames(t *testing.T) {
	dev := &fakeDevice{buffers: [][]byte{pcm(1, 2)}}
	rec := NewRecorder(dev, DefaultFormat())

	rec.Start()
	rec.Stop()
	rec.Start()
	rec.Stop()

	if rec.Buffers() != 1 {
		t.Errorf("expected frames from the latest recording only, got %d buffers", rec.Buffers())
	}
}

func TestRecorder_StartIsIdempotentWhileRecording(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, DefaultFormat())

	rec.Start()
	rec.Start()
	if dev.started != 1 {
		t.Errorf("expected device started once, got %d", dev.started)
	}
	if !rec.IsRecording() {
		t.Error("expected recorder to be recording")
	}

	rec.Stop()
	rec.Stop()
	if dev.stopped != 1 {
		t.Errorf("expected device stopped once, got %d", dev.stopped)
	}
}

func TestRecorder_DeviceStartFailure(t *testing.T) {
	rec := NewRecorder(&fakeDevice{startErr: errors.New("no microphone")}, DefaultFormat())

	err := rec.Start()
	if !errors.Is(err, ErrDeviceStart) {
		t.Fatalf("expected ErrDeviceStart, got %v", err)
	}
	if rec.IsRecording() {
		t.Error("expected recorder not recording after failed start")
	}
}

func TestRecorder_IgnoresDataAfterStop(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, DefaultFormat())

	rec.Start()
	dev.emit(pcm(1))
	rec.Stop()
	dev.emit(pcm(2))

	if rec.Buffers() != 1 {
		t.Errorf("expected 1 buffer, got %d", rec.Buffers())
	}
}

func TestRecorder_Duration(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, Format{SampleRateHz: 8000, Channels: 1})

	rec.Start()
	dev.emit(make([]byte, 16000))
	rec.Stop()

	if rec.Duration() != time.Second {
		t.Errorf("expected 1s of audio, got %v", rec.Duration())
	}
}

func TestRecorder_TapReceivesLiveAudioAndEOFOnStop(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, DefaultFormat())
	tap := rec.Tap()

	rec.Start()
	dev.emit(pcm(1, 2))
	dev.emit(pcm(3))
	rec.Stop()

	got, err := io.ReadAll(tap)
	if err != nil {
		t.Fatalf("read tap: %v", err)
	}
	want := append(pcm(1, 2), pcm(3)...)
	if string(got) != string(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRecorder_TapCloseDetaches(t *testing.T) {
	dev := &fakeDevice{}
	rec := NewRecorder(dev, DefaultFormat())
	tap := rec.Tap()
	tap.Close()

	rec.Start()
	dev.emit(pcm(1))
	rec.Stop()

	n, err := tap.Read(make([]byte, 4))
	if n != 0 || err != io.EOF {
		t.Errorf("expected EOF from detached tap, got n=%d err=%v", n, err)
	}
}

func TestRecordingName(t *testing.T) {
	got := RecordingName(time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC))
	if got != "recording_20241231_235901.wav" {
		t.Errorf("unexpected recording name %q", got)
	}
}

func TestOpenWAV_RoundTrip(t *testing.T) {
	dev := &fakeDevice{buffers: [][]byte{pcm(5, -5, 7)}}
	rec := NewRecorder(dev, Format{SampleRateHz: 16000, Channels: 1})
	rec.Start()
	rec.Stop()

	path := filepath.Join(t.TempDir(), "round.wav")
	if _, err := rec.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := OpenWAV(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if f.Format.SampleRateHz != 16000 || f.Format.Channels != 1 {
		t.Errorf("unexpected format %+v", f.Format)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(pcm(5, -5, 7)) {
		t.Errorf("unexpected PCM data %v", data)
	}
}

func TestOpenWAV_RejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenWAV(path); !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestOpenWAV_MissingFile(t *testing.T) {
	if _, err := OpenWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
