package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

var (
	ErrNotWAV            = errors.New("audio: not a WAV file")
	ErrUnsupportedFormat = errors.New("audio: only 16-bit PCM WAV is supported")
)

// PCMFile is an opened WAV file positioned at its PCM data.
type PCMFile struct {
	Format Format
	// DataBytes is the size of the PCM data chunk.
	DataBytes int

	file *os.File
	pcm  io.Reader
}

// OpenWAV opens path and validates that it holds 16-bit PCM audio.
func OpenWAV(path string) (*PCMFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, ErrNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM || d.BitDepth != BitDepth {
		f.Close()
		return nil, fmt.Errorf("%w: format=%d bitDepth=%d", ErrUnsupportedFormat, d.WavAudioFormat, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek to PCM data: %w", err)
	}

	return &PCMFile{
		Format: Format{
			SampleRateHz: int(d.SampleRate),
			Channels:     int(d.NumChans),
		},
		DataBytes: int(d.PCMLen()),
		file:      f,
		pcm:       d.PCMChunk,
	}, nil
}

// Read reads raw little-endian PCM bytes.
func (p *PCMFile) Read(b []byte) (int, error) {
	return p.pcm.Read(b)
}

// Close closes the underlying file.
func (p *PCMFile) Close() error {
	return p.file.Close()
}
