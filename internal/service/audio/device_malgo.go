package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// MalgoDevice captures from the default input device through miniaudio.
type MalgoDevice struct {
	format Format

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewMalgoDevice creates a capture device producing S16 PCM in format.
func NewMalgoDevice(format Format) *MalgoDevice {
	return &MalgoDevice{format: format}
}

// Start opens the default capture device and starts delivering buffers.
func (d *MalgoDevice) Start(onData func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("component", "malgo").Msg(message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.format.Channels)
	cfg.SampleRate = uint32(d.format.SampleRateHz)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	return nil
}

// Stop stops capture and releases the device.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}

	err := d.device.Stop()
	d.device.Uninit()
	d.device = nil

	if uerr := d.ctx.Uninit(); uerr != nil && err == nil {
		err = uerr
	}
	d.ctx.Free()
	d.ctx = nil
	return err
}
